package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Veraticus/pantry/internal/cli"
	"github.com/Veraticus/pantry/internal/confirmation"
	"github.com/Veraticus/pantry/internal/tui"
)

func reviewCmd() *cobra.Command {
	var useTUI bool

	cmd := &cobra.Command{
		Use:   "review",
		Short: "Match unresolved receipt items by hand",
		Long: `Walk through every receipt item pantry could not resolve on its own.
Each answer is remembered: the receipt spelling becomes an alias and a
confirmed mapping, so the same line resolves automatically next time.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			handler := cli.NewInterruptHandler(cmd.OutOrStdout())
			ctx := handler.HandleInterrupts(cmd.Context(), "pantry review")

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			resolver, err := newResolver(store)
			if err != nil {
				return err
			}

			workflow, err := newWorkflow(ctx, store, resolver)
			if err != nil {
				return err
			}
			if workflow.Pending() == 0 {
				cmd.Println(cli.FormatSuccess("Nothing to review"))
				return nil
			}

			prompter := cli.NewCLIPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
			return runReview(ctx, cmd, workflow, prompter, useTUI)
		},
	}

	cmd.Flags().BoolVar(&useTUI, "tui", false, "use the full-screen review interface")
	return cmd
}

func runReview(ctx context.Context, cmd *cobra.Command, workflow *confirmation.Workflow, prompter *cli.Prompter, useTUI bool) error {
	cmd.Println(cli.FormatTitle("Reviewing pending items"))

	if useTUI {
		stats, err := tui.Run(ctx, workflow)
		prompter.ShowReviewSummary(stats)
		return err
	}

	_, err := prompter.Review(ctx, workflow)
	return err
}
