package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Veraticus/pantry/internal/cli"
	"github.com/Veraticus/pantry/internal/common"
	"github.com/Veraticus/pantry/internal/model"
)

func mappingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mappings",
		Short: "Inspect learned receipt mappings",
		Long:  `List the raw receipt names pantry has learned, and forget wrong guesses.`,
	}

	cmd.AddCommand(listMappingsCmd())
	cmd.AddCommand(forgetMappingCmd())

	return cmd
}

func listMappingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List learned mappings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			mappings, err := store.GetAllMappings(ctx)
			if err != nil {
				return fmt.Errorf("failed to list mappings: %w", err)
			}
			if len(mappings) == 0 {
				cmd.Println(cli.InfoStyle.Render("Nothing learned yet. Scan a receipt and review its items."))
				return nil
			}

			names, err := productNames(ctx, store)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			defer func() { _ = w.Flush() }()

			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				cli.TableHeaderStyle.Render("Receipt name"),
				cli.TableHeaderStyle.Render("Product"),
				cli.TableHeaderStyle.Render("Confidence"),
				cli.TableHeaderStyle.Render("Uses"),
				cli.TableHeaderStyle.Render("Source"))

			for _, mapping := range mappings {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
					mapping.Key, names[mapping.ProductID], formatConfidence(mapping), mapping.UseCount, mapping.Source)
			}
			return nil
		},
	}
}

func formatConfidence(mapping model.LearnedMapping) string {
	text := fmt.Sprintf("%.0f%%", mapping.Confidence*100)
	if mapping.Confirmed {
		return text + " " + cli.SuccessIcon
	}
	return text
}

func forgetMappingCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "forget <receipt name>",
		Short: "Forget a learned mapping",
		Long: `Delete a learned mapping so the name is resolved from scratch next time.
Mappings you confirmed yourself are kept unless --force is given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			key := model.NormalizeName(strings.Join(args, " "))

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			mapping, err := store.GetMapping(ctx, key)
			if err != nil {
				return common.NewUserError(fmt.Sprintf("no mapping for %q", key), err)
			}
			if mapping.Confirmed && !force {
				return common.NewUserError(
					fmt.Sprintf("%q was confirmed by you; use --force to forget it", key), nil)
			}

			if err := store.DeleteMapping(ctx, key); err != nil {
				return fmt.Errorf("failed to forget mapping: %w", err)
			}
			cmd.Println(cli.FormatSuccess(fmt.Sprintf("Forgot %q", key)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "also forget confirmed mappings")
	return cmd
}
