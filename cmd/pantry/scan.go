package main

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/Veraticus/pantry/internal/cli"
	"github.com/Veraticus/pantry/internal/config"
	"github.com/Veraticus/pantry/internal/confirmation"
	"github.com/Veraticus/pantry/internal/llm"
	"github.com/Veraticus/pantry/internal/reconcile"
)

func scanCmd() *cobra.Command {
	var (
		review bool
		useTUI bool
	)

	cmd := &cobra.Command{
		Use:   "scan <image>",
		Short: "Read a receipt photo and save its items",
		Long: `Extract the header and line items of a receipt image, resolve every line
against the catalog, ask you to approve the header and save the purchase.
Lines that could not be resolved are queued for review.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			image, mimeType, err := readImage(args[0])
			if err != nil {
				return err
			}

			handler := cli.NewInterruptHandler(cmd.OutOrStdout())
			ctx := handler.HandleInterrupts(cmd.Context(), "pantry review")

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.WarmMappingCache(ctx); err != nil {
				slog.Warn("Failed to warm mapping cache", "error", err)
			}

			llmConfig, err := config.LoadLLMConfig()
			if err != nil {
				return err
			}
			extractor, err := llm.NewReceiptExtractor(llmConfig, slog.Default())
			if err != nil {
				return fmt.Errorf("failed to create receipt extractor: %w", err)
			}

			resolver, err := newResolver(store)
			if err != nil {
				return err
			}

			workflow := confirmation.NewWorkflow(store, resolver)
			reconciler := reconcile.New(store, resolver,
				reconcile.WithExtractor(extractor),
				reconcile.WithQueue(workflow),
			)
			prompter := cli.NewCLIPrompter(cmd.InOrStdin(), cmd.OutOrStdout())

			cmd.Println(cli.FormatTitle("Scanning " + args[0]))
			raw, err := reconciler.Extract(ctx, image, mimeType)
			if err != nil {
				return err
			}

			draft, err := reconciler.PrepareFunc(ctx, raw, prompter.ResolveProgress(raw.NamedItems()))
			if err != nil {
				return err
			}

			header, err := prompter.ApproveHeader(ctx, draft)
			if err != nil {
				reconciler.Discard(draft)
				return err
			}
			if !header.Approved {
				reconciler.Discard(draft)
				cmd.Println(cli.FormatWarning("Receipt discarded, nothing was saved"))
				return nil
			}

			result, err := reconciler.Commit(ctx, draft, header)
			if err != nil {
				return err
			}
			prompter.ShowCommitResult(result)

			if !review || result.UnresolvedCount == 0 {
				return nil
			}
			return runReview(ctx, cmd, workflow, prompter, useTUI)
		},
	}

	cmd.Flags().BoolVar(&review, "review", true, "review unresolved items right after saving")
	cmd.Flags().BoolVar(&useTUI, "tui", false, "use the full-screen review interface")
	return cmd
}

// detectMimeType sniffs the image format; the oracles only accept a few.
func detectMimeType(data []byte) string {
	switch mimeType := http.DetectContentType(data); mimeType {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		return mimeType
	default:
		return "image/jpeg"
	}
}
