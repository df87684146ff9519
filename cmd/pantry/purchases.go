package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Veraticus/pantry/internal/cli"
	"github.com/Veraticus/pantry/internal/common"
	"github.com/Veraticus/pantry/internal/confirmation"
	"github.com/Veraticus/pantry/internal/model"
	"github.com/Veraticus/pantry/internal/reconcile"
	"github.com/Veraticus/pantry/internal/service"
)

func purchasesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purchases",
		Short: "Manage saved purchases",
		Long:  `List saved receipts and move them between review states.`,
	}

	cmd.AddCommand(listPurchasesCmd())
	cmd.AddCommand(rejectPurchaseCmd())
	cmd.AddCommand(confirmPurchaseCmd())

	return cmd
}

func parseStatus(value string) (*model.PurchaseStatus, error) {
	if value == "" {
		return nil, nil //nolint:nilnil // no filter
	}
	status := model.PurchaseStatus(value)
	if !status.Valid() {
		return nil, common.NewUserError(
			fmt.Sprintf("unknown status %q (pending_review, confirmed, rejected)", value), common.ErrInvalidConfig)
	}
	return &status, nil
}

func listPurchasesCmd() *cobra.Command {
	var (
		status string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List purchases, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			filter := service.PurchaseFilter{Limit: limit}
			var err error
			if filter.Status, err = parseStatus(status); err != nil {
				return err
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			purchases, err := store.ListPurchases(ctx, filter)
			if err != nil {
				return fmt.Errorf("failed to list purchases: %w", err)
			}
			if len(purchases) == 0 {
				cmd.Println(cli.InfoStyle.Render("No purchases yet. Use 'pantry scan <image>' to add one."))
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			defer func() { _ = w.Flush() }()

			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				cli.TableHeaderStyle.Render("ID"),
				cli.TableHeaderStyle.Render("Date"),
				cli.TableHeaderStyle.Render("Supplier"),
				cli.TableHeaderStyle.Render("Total"),
				cli.TableHeaderStyle.Render("Items"),
				cli.TableHeaderStyle.Render("Status"))

			for _, purchase := range purchases {
				date := "-"
				if purchase.Date != nil {
					date = purchase.Date.Format("2006-01-02")
				}
				items := fmt.Sprintf("%d", len(purchase.Items))
				if pending := purchase.UnresolvedCount(); pending > 0 {
					items = fmt.Sprintf("%d (%d pending)", len(purchase.Items), pending)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					purchase.ID, date, derefOr(purchase.Supplier, "-"),
					cli.FormatMoney(purchase.Total), items, purchase.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only show purchases in this status")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum purchases to show (0 for all)")
	return cmd
}

func rejectPurchaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reject <purchase id>",
		Short: "Reject a purchase",
		Long:  `Mark a purchase as rejected. Its unresolved items no longer show up in review.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := reconcile.New(store, nil).RejectPurchase(ctx, args[0]); err != nil {
				return err
			}
			cmd.Println(cli.FormatSuccess("Rejected purchase " + args[0]))
			return nil
		},
	}
}

func confirmPurchaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "confirm <purchase id>",
		Short: "Confirm a purchase awaiting review",
		Long:  `Move a purchase from pending_review to confirmed and queue its unresolved items for review.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			workflow := confirmation.NewWorkflow(store, nil)
			if err := reconcile.New(store, nil, reconcile.WithQueue(workflow)).ConfirmPurchase(ctx, args[0]); err != nil {
				return err
			}

			cmd.Println(cli.FormatSuccess("Confirmed purchase " + args[0]))
			if pending := workflow.Pending(); pending > 0 {
				cmd.Println(cli.FormatInfo(fmt.Sprintf("%d items need review. Run: pantry review", pending)))
			}
			return nil
		},
	}
}
