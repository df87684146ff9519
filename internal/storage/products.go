package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/pantry/internal/common"
	"github.com/Veraticus/pantry/internal/model"
)

// CreateProduct adds a catalog entry. Aliases are normalized and deduplicated.
func (s *SQLiteStorage) CreateProduct(ctx context.Context, product *model.NewProduct, aliases ...string) (*model.Product, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateNewProduct(product); err != nil {
		return nil, err
	}

	var created *model.Product
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		id, err := s.createProductTx(ctx, tx, product)
		if err != nil {
			return err
		}
		for _, alias := range aliases {
			if _, err := s.addAliasTx(ctx, tx, id, alias); err != nil {
				return err
			}
		}
		created, err = s.getProductTx(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *SQLiteStorage) createProductTx(ctx context.Context, q queryable, product *model.NewProduct) (string, error) {
	unit := strings.TrimSpace(product.Unit)
	if unit == "" {
		unit = model.DefaultUnit
	}

	var category any
	if product.Category != nil && strings.TrimSpace(*product.Category) != "" {
		category = strings.TrimSpace(*product.Category)
	}

	id := uuid.NewString()
	_, err := q.ExecContext(ctx, `
		INSERT INTO products (id, name, category, unit, average_price, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, 1, ?)
	`, id, strings.TrimSpace(product.Name), category, unit, decimal.Zero, time.Now())
	if err != nil {
		return "", fmt.Errorf("failed to create product: %w", err)
	}
	return id, nil
}

// GetProduct retrieves a product with its aliases.
func (s *SQLiteStorage) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return s.getProductTx(ctx, s.db, id)
}

func (s *SQLiteStorage) getProductTx(ctx context.Context, q queryable, id string) (*model.Product, error) {
	var row productRow
	err := sqlx.GetContext(ctx, q, &row, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	var aliases []string
	err = sqlx.SelectContext(ctx, q, &aliases, `
		SELECT alias FROM product_aliases WHERE product_id = ? ORDER BY id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get product aliases: %w", err)
	}

	product := row.toModel(aliases)
	return &product, nil
}

// GetProducts returns every active product, ordered by name.
func (s *SQLiteStorage) GetProducts(ctx context.Context) ([]model.Product, error) {
	return s.ListProducts(ctx, false)
}

// ListProducts returns the catalog, optionally including disabled products.
func (s *SQLiteStorage) ListProducts(ctx context.Context, includeInactive bool) ([]model.Product, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `SELECT ` + productColumns + ` FROM products`
	if !includeInactive {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY name COLLATE NOCASE, id`

	var rows []productRow
	if err := sqlx.SelectContext(ctx, s.db, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	return s.attachAliases(ctx, s.db, rows)
}

// SearchProducts finds active products whose name or alias contains term,
// or is contained in it. Matching is case-insensitive for ASCII text.
func (s *SQLiteStorage) SearchProducts(ctx context.Context, term string, limit int) ([]model.Product, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	needle := model.NormalizeName(term)
	if needle == "" {
		return nil, fmt.Errorf("%w: term", ErrEmptyString)
	}
	if limit <= 0 {
		limit = -1
	}

	var rows []productRow
	err := sqlx.SelectContext(ctx, s.db, &rows, `
		SELECT `+prefixColumns("p", productColumns)+`
		FROM products p
		WHERE p.is_active = 1 AND (
			instr(lower(p.name), ?1) > 0 OR instr(?1, lower(p.name)) > 0
			OR EXISTS (
				SELECT 1 FROM product_aliases a
				WHERE a.product_id = p.id AND (instr(a.alias, ?1) > 0 OR instr(?1, a.alias) > 0)
			)
		)
		ORDER BY p.name COLLATE NOCASE, p.id
		LIMIT ?2
	`, needle, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search products: %w", err)
	}
	return s.attachAliases(ctx, s.db, rows)
}

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}

func (s *SQLiteStorage) attachAliases(ctx context.Context, q queryable, rows []productRow) ([]model.Product, error) {
	products := make([]model.Product, 0, len(rows))
	if len(rows) == 0 {
		return products, nil
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}

	query, args, err := sqlx.In(`
		SELECT product_id, alias FROM product_aliases WHERE product_id IN (?) ORDER BY id
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build alias query: %w", err)
	}

	var aliasRows []aliasRow
	if err := sqlx.SelectContext(ctx, q, &aliasRows, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query aliases: %w", err)
	}

	byProduct := make(map[string][]string, len(rows))
	for _, a := range aliasRows {
		byProduct[a.ProductID] = append(byProduct[a.ProductID], a.Alias)
	}

	for _, row := range rows {
		products = append(products, row.toModel(byProduct[row.ID]))
	}
	return products, nil
}

// AddProductAlias appends alias to the product's alias set unless it is
// already known, either as an alias or as the product name. It reports
// whether a new alias was stored.
func (s *SQLiteStorage) AddProductAlias(ctx context.Context, productID, alias string) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateString(productID, "productID"); err != nil {
		return false, err
	}
	if err := validateString(alias, "alias"); err != nil {
		return false, err
	}

	var added bool
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		added, err = s.addAliasTx(ctx, tx, productID, alias)
		return err
	})
	return added, err
}

func (s *SQLiteStorage) addAliasTx(ctx context.Context, q queryable, productID, alias string) (bool, error) {
	normalized := model.NormalizeName(alias)
	if normalized == "" {
		return false, nil
	}

	var name string
	err := sqlx.GetContext(ctx, q, &name, `SELECT name FROM products WHERE id = ?`, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("product %s: %w", productID, common.ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("failed to get product: %w", err)
	}

	if model.NormalizeName(name) == normalized {
		return false, nil
	}

	result, err := q.ExecContext(ctx, `
		INSERT OR IGNORE INTO product_aliases (product_id, alias, created_at)
		VALUES (?, ?, ?)
	`, productID, normalized, time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to add alias: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check alias insert: %w", err)
	}
	return affected == 1, nil
}

// DeactivateProduct soft-disables a product. Referenced products are never deleted.
func (s *SQLiteStorage) DeactivateProduct(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `UPDATE products SET is_active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate product: %w", err)
	}
	return requireAffected(result, "product "+id)
}

// RefreshAveragePrice recomputes a product's average unit price from the
// items linked to it on purchases that were not rejected.
func (s *SQLiteStorage) RefreshAveragePrice(ctx context.Context, productID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(productID, "productID"); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var prices []decimal.Decimal
		err := sqlx.SelectContext(ctx, tx, &prices, `
			SELECT i.unit_price
			FROM purchase_items i
			JOIN purchases p ON p.id = i.purchase_id
			WHERE i.product_id = ? AND p.status != ?
		`, productID, string(model.PurchaseRejected))
		if err != nil {
			return fmt.Errorf("failed to query unit prices: %w", err)
		}

		average := decimal.Zero
		if len(prices) > 0 {
			average = decimal.Avg(prices[0], prices[1:]...).Round(2)
		}

		result, err := tx.ExecContext(ctx, `UPDATE products SET average_price = ? WHERE id = ?`, average, productID)
		if err != nil {
			return fmt.Errorf("failed to update average price: %w", err)
		}
		return requireAffected(result, "product "+productID)
	})
}

func requireAffected(result sql.Result, what string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", what, common.ErrNotFound)
	}
	return nil
}
