package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Veraticus/pantry/internal/cli"
	"github.com/Veraticus/pantry/internal/confirmation"
	"github.com/Veraticus/pantry/internal/model"
)

func productsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "products",
		Short: "Manage the product catalog",
		Long:  `Add, list, alias and disable the products receipt lines are matched against.`,
	}

	cmd.AddCommand(addProductCmd())
	cmd.AddCommand(listProductsCmd())
	cmd.AddCommand(aliasProductCmd())
	cmd.AddCommand(disableProductCmd())

	return cmd
}

func addProductCmd() *cobra.Command {
	var (
		category string
		unit     string
		aliases  []string
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a product to the catalog",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			name := strings.Join(args, " ")

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			product, err := store.CreateProduct(ctx, &model.NewProduct{
				Name:     name,
				Category: optionalString(category),
				Unit:     unit,
			}, aliases...)
			if err != nil {
				return fmt.Errorf("failed to add product: %w", err)
			}

			cmd.Println(cli.FormatSuccess(fmt.Sprintf("Added %s (%s)", product.Name, product.ID)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", confirmation.DefaultCategory, "product category")
	cmd.Flags().StringVarP(&unit, "unit", "u", model.DefaultUnit, "unit of measure")
	cmd.Flags().StringSliceVarP(&aliases, "alias", "a", nil, "known receipt spelling (repeatable)")

	return cmd
}

func listProductsCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog products",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			products, err := store.ListProducts(ctx, all)
			if err != nil {
				return fmt.Errorf("failed to list products: %w", err)
			}

			if len(products) == 0 {
				cmd.Println(cli.InfoStyle.Render("No products yet. Use 'pantry products add' to create one."))
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			defer func() { _ = w.Flush() }()

			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				cli.TableHeaderStyle.Render("Name"),
				cli.TableHeaderStyle.Render("Category"),
				cli.TableHeaderStyle.Render("Unit"),
				cli.TableHeaderStyle.Render("Avg price"),
				cli.TableHeaderStyle.Render("Aliases"))

			for _, product := range products {
				name := product.Name
				if !product.IsActive {
					name = cli.StyleSubtle(name + " (disabled)")
				}
				aliases := strings.Join(product.Aliases, ", ")
				if aliases == "" {
					aliases = cli.StyleSubtle("-")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					name, derefOr(product.Category, "-"), product.Unit, cli.FormatMoney(product.AveragePrice), aliases)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include disabled products")
	return cmd
}

func aliasProductCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "alias <product> <alias>",
		Short: "Teach a receipt spelling for a product",
		Long: `Record another way a product is printed on receipts. The product may be
given by ID or by its exact name.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			product, err := findProduct(ctx, store, args[0])
			if err != nil {
				return err
			}

			added, err := store.AddProductAlias(ctx, product.ID, args[1])
			if err != nil {
				return fmt.Errorf("failed to add alias: %w", err)
			}
			if !added {
				cmd.Println(cli.FormatInfo(fmt.Sprintf("%s already knows %q", product.Name, args[1])))
				return nil
			}
			cmd.Println(cli.FormatSuccess(fmt.Sprintf("%q now resolves to %s", args[1], product.Name)))
			return nil
		},
	}
}

func disableProductCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable <product>",
		Short: "Stop offering a product as a match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			product, err := findProduct(ctx, store, args[0])
			if err != nil {
				return err
			}
			if err := store.DeactivateProduct(ctx, product.ID); err != nil {
				return fmt.Errorf("failed to disable product: %w", err)
			}
			cmd.Println(cli.FormatWarning(fmt.Sprintf("Disabled %s. Existing mappings still point at it until forgotten.", product.Name)))
			return nil
		},
	}
}
