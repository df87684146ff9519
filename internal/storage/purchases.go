package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Veraticus/pantry/internal/common"
	"github.com/Veraticus/pantry/internal/model"
	"github.com/Veraticus/pantry/internal/service"
)

// SavePurchase persists a purchase header and all of its items in one
// transaction. Missing IDs are generated and written back to purchase.
func (s *SQLiteStorage) SavePurchase(ctx context.Context, purchase *model.Purchase) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePurchase(purchase); err != nil {
		return err
	}

	if purchase.ID == "" {
		purchase.ID = uuid.NewString()
	}
	if purchase.CreatedAt.IsZero() {
		purchase.CreatedAt = time.Now()
	}

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO purchases (id, purchase_date, supplier, invoice_number, total, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, purchase.ID, timePtrValue(purchase.Date), stringPtrValue(purchase.Supplier),
			stringPtrValue(purchase.InvoiceNumber), purchase.Total, string(purchase.Status), purchase.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert purchase: %w", err)
		}

		for i := range purchase.Items {
			item := &purchase.Items[i]
			if item.ID == "" {
				item.ID = uuid.NewString()
			}
			item.PurchaseID = purchase.ID
			item.CreatedAt = purchase.CreatedAt

			unit := item.Unit
			if unit == "" {
				unit = model.DefaultUnit
				item.Unit = unit
			}

			_, err := tx.ExecContext(ctx, `
				INSERT INTO purchase_items (
					id, purchase_id, position, raw_name, quantity, unit, unit_price, total_price,
					product_id, needs_review, resolution_source, confidence, created_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, item.ID, item.PurchaseID, item.Position, item.RawName, item.Quantity, unit,
				item.UnitPrice, item.TotalPrice, stringPtrValue(item.ProductID), item.NeedsReview,
				string(item.ResolutionSource), item.Confidence, item.CreatedAt)
			if err != nil {
				return fmt.Errorf("failed to insert item %d: %w", item.Position, err)
			}
		}
		return nil
	})
}

// GetPurchase retrieves a purchase with its items in receipt order.
func (s *SQLiteStorage) GetPurchase(ctx context.Context, id string) (*model.Purchase, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	var row purchaseRow
	err := sqlx.GetContext(ctx, s.db, &row, `SELECT `+purchaseColumns+` FROM purchases WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("purchase %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get purchase: %w", err)
	}

	items, err := s.itemsForPurchases(ctx, s.db, []string{id})
	if err != nil {
		return nil, err
	}

	purchase := row.toModel(items[id])
	return &purchase, nil
}

// ListPurchases returns purchases, newest first.
func (s *SQLiteStorage) ListPurchases(ctx context.Context, filter service.PurchaseFilter) ([]model.Purchase, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `SELECT ` + purchaseColumns + ` FROM purchases`
	var args []any
	if filter.Status != nil {
		query += ` WHERE status = ?`
		args = append(args, string(*filter.Status))
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	var rows []purchaseRow
	if err := sqlx.SelectContext(ctx, s.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query purchases: %w", err)
	}

	purchases := make([]model.Purchase, 0, len(rows))
	if len(rows) == 0 {
		return purchases, nil
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}

	items, err := s.itemsForPurchases(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		purchases = append(purchases, row.toModel(items[row.ID]))
	}
	return purchases, nil
}

func (s *SQLiteStorage) itemsForPurchases(ctx context.Context, q queryable, ids []string) (map[string][]model.PurchaseItem, error) {
	query, args, err := sqlx.In(`
		SELECT `+itemColumns+` FROM purchase_items WHERE purchase_id IN (?) ORDER BY purchase_id, position
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build item query: %w", err)
	}

	var rows []itemRow
	if err := sqlx.SelectContext(ctx, q, &rows, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query purchase items: %w", err)
	}

	items := make(map[string][]model.PurchaseItem, len(ids))
	for _, row := range rows {
		items[row.PurchaseID] = append(items[row.PurchaseID], row.toModel())
	}
	return items, nil
}

// UpdatePurchaseStatus moves a purchase to a new review status.
func (s *SQLiteStorage) UpdatePurchaseStatus(ctx context.Context, id string, status model.PurchaseStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	result, err := s.db.ExecContext(ctx, `UPDATE purchases SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update purchase status: %w", err)
	}
	return requireAffected(result, "purchase "+id)
}

// GetPurchaseItem retrieves a single purchase item.
func (s *SQLiteStorage) GetPurchaseItem(ctx context.Context, id string) (*model.PurchaseItem, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return s.getPurchaseItemTx(ctx, s.db, id)
}

func (s *SQLiteStorage) getPurchaseItemTx(ctx context.Context, q queryable, id string) (*model.PurchaseItem, error) {
	var row itemRow
	err := sqlx.GetContext(ctx, q, &row, `SELECT `+itemColumns+` FROM purchase_items WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("purchase item %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get purchase item: %w", err)
	}
	item := row.toModel()
	return &item, nil
}

// GetPendingItems returns unresolved items of purchases that were not
// rejected, oldest purchase first and in receipt order within a purchase.
func (s *SQLiteStorage) GetPendingItems(ctx context.Context) ([]model.PurchaseItem, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var rows []itemRow
	err := sqlx.SelectContext(ctx, s.db, &rows, `
		SELECT `+prefixColumns("i", itemColumns)+`
		FROM purchase_items i
		JOIN purchases p ON p.id = i.purchase_id
		WHERE i.product_id IS NULL AND p.status != ?
		ORDER BY p.created_at, p.rowid, i.position
	`, string(model.PurchaseRejected))
	if err != nil {
		return nil, fmt.Errorf("failed to query pending items: %w", err)
	}

	items := make([]model.PurchaseItem, len(rows))
	for i, row := range rows {
		items[i] = row.toModel()
	}
	return items, nil
}

// LinkPurchaseItem records an automatic resolution for an unresolved item.
// No learning happens here; see ApplyConfirmation for human decisions.
func (s *SQLiteStorage) LinkPurchaseItem(ctx context.Context, itemID string, resolution model.Resolution) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(itemID, "itemID"); err != nil {
		return err
	}
	if err := validateResolution(resolution); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		return s.linkItemTx(ctx, tx, itemID, resolution.ProductID, resolution.Source, resolution.Confidence)
	})
}

func (s *SQLiteStorage) linkItemTx(ctx context.Context, q queryable, itemID, productID string, source model.ResolutionSource, confidence float64) error {
	item, err := s.getPurchaseItemTx(ctx, q, itemID)
	if err != nil {
		return err
	}
	if item.ProductID != nil {
		return fmt.Errorf("%w: %s", ErrItemAlreadyResolved, itemID)
	}

	_, err = q.ExecContext(ctx, `
		UPDATE purchase_items
		SET product_id = ?, needs_review = 0, resolution_source = ?, confidence = ?
		WHERE id = ? AND product_id IS NULL
	`, productID, string(source), confidence, itemID)
	if err != nil {
		return fmt.Errorf("failed to link purchase item: %w", err)
	}
	return nil
}
