package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Veraticus/pantry/internal/cli"
	"github.com/Veraticus/pantry/internal/model"
	"github.com/Veraticus/pantry/internal/service"
)

func resolveCmd() *cobra.Command {
	var batch bool

	cmd := &cobra.Command{
		Use:   "resolve [raw name]",
		Short: "Show how a receipt name would be resolved",
		Long: `Run a raw receipt name through the learned mappings, the catalog and the
semantic oracle without saving a purchase. With --stdin every input line is
resolved as a separate name.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			names := []string{strings.Join(args, " ")}
			if batch {
				var err error
				if names, err = readNames(cmd.InOrStdin()); err != nil {
					return err
				}
			} else if len(args) == 0 {
				return fmt.Errorf("a raw name is required unless --stdin is set")
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.WarmMappingCache(ctx); err != nil {
				return fmt.Errorf("failed to warm mapping cache: %w", err)
			}

			resolver, err := newResolver(store)
			if err != nil {
				return err
			}

			products, err := productNames(ctx, store)
			if err != nil {
				return err
			}

			if !batch {
				resolution, err := resolver.Resolve(ctx, names[0])
				if err != nil {
					return err
				}
				printResolution(cmd.OutOrStdout(), resolution, products)
				return nil
			}

			prompter := cli.NewCLIPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
			resolutions, err := resolver.ResolveAllFunc(ctx, names, prompter.ResolveProgress(len(names)))
			if err != nil {
				return err
			}

			var stats service.ResolveStats
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				cli.TableHeaderStyle.Render("Raw name"),
				cli.TableHeaderStyle.Render("Product"),
				cli.TableHeaderStyle.Render("Tier"),
				cli.TableHeaderStyle.Render("Confidence"))
			for i, resolution := range resolutions {
				stats.Add(resolution)
				fmt.Fprintf(w, "%s\t%s\t%s\t%.0f%%\n",
					names[i], productLabel(resolution, products), resolution.Source, resolution.Confidence*100)
			}
			_ = w.Flush()

			cmd.Println(cli.FormatInfo(fmt.Sprintf("%d names: %d by mapping, %d by catalog, %d by oracle, %d unresolved",
				stats.Total, stats.ByMapping, stats.ByLexical, stats.BySemantic, stats.Unresolved)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&batch, "stdin", false, "resolve one name per input line")
	return cmd
}

func readNames(r io.Reader) ([]string, error) {
	var names []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			names = append(names, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read names: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no names on input")
	}
	return names, nil
}

// productNames maps product IDs to names, disabled products included.
func productNames(ctx context.Context, store service.Storage) (map[string]string, error) {
	products, err := store.ListProducts(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	names := make(map[string]string, len(products))
	for _, product := range products {
		names[product.ID] = product.Name
	}
	return names, nil
}

func productLabel(resolution model.Resolution, products map[string]string) string {
	if !resolution.IsResolved() {
		return cli.StyleSubtle("(unresolved)")
	}
	if name, ok := products[resolution.ProductID]; ok {
		return name
	}
	return resolution.ProductID
}

func printResolution(w io.Writer, resolution model.Resolution, products map[string]string) {
	if resolution.IsResolved() {
		fmt.Fprintln(w, cli.FormatSuccess(fmt.Sprintf("%s → %s", resolution.RawName, productLabel(resolution, products))))
		fmt.Fprintf(w, "  tier: %s, confidence: %.0f%%, confirmed: %t\n",
			resolution.Source, resolution.Confidence*100, resolution.Confirmed)
		return
	}

	fmt.Fprintln(w, cli.FormatWarning(fmt.Sprintf("%s is not resolved", resolution.RawName)))
	if len(resolution.Candidates) == 0 {
		fmt.Fprintln(w, "  no candidates")
		return
	}
	for i, candidate := range resolution.Candidates {
		fmt.Fprintf(w, "  %d. %s\n", i+1, candidate.Name)
	}
}
