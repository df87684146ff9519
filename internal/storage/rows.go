package storage

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/pantry/internal/model"
)

type productRow struct {
	CreatedAt    time.Time       `db:"created_at"`
	Category     sql.NullString  `db:"category"`
	AveragePrice decimal.Decimal `db:"average_price"`
	ID           string          `db:"id"`
	Name         string          `db:"name"`
	Unit         string          `db:"unit"`
	IsActive     bool            `db:"is_active"`
}

func (r productRow) toModel(aliases []string) model.Product {
	p := model.Product{
		ID:           r.ID,
		Name:         r.Name,
		Unit:         r.Unit,
		AveragePrice: r.AveragePrice,
		IsActive:     r.IsActive,
		CreatedAt:    r.CreatedAt,
		Aliases:      aliases,
	}
	if r.Category.Valid {
		category := r.Category.String
		p.Category = &category
	}
	if p.Aliases == nil {
		p.Aliases = []string{}
	}
	return p
}

type aliasRow struct {
	ProductID string `db:"product_id"`
	Alias     string `db:"alias"`
}

type mappingRow struct {
	LastUpdated time.Time `db:"last_updated"`
	Key         string    `db:"key"`
	ProductID   string    `db:"product_id"`
	Source      string    `db:"source"`
	Confidence  float64   `db:"confidence"`
	UseCount    int       `db:"use_count"`
	Confirmed   bool      `db:"confirmed"`
}

func (r mappingRow) toModel() model.LearnedMapping {
	return model.LearnedMapping{
		Key:         r.Key,
		ProductID:   r.ProductID,
		Confidence:  r.Confidence,
		Confirmed:   r.Confirmed,
		UseCount:    r.UseCount,
		Source:      model.MappingSource(r.Source),
		LastUpdated: r.LastUpdated,
	}
}

type purchaseRow struct {
	CreatedAt     time.Time       `db:"created_at"`
	PurchaseDate  sql.NullTime    `db:"purchase_date"`
	Supplier      sql.NullString  `db:"supplier"`
	InvoiceNumber sql.NullString  `db:"invoice_number"`
	Total         decimal.Decimal `db:"total"`
	ID            string          `db:"id"`
	Status        string          `db:"status"`
}

func (r purchaseRow) toModel(items []model.PurchaseItem) model.Purchase {
	p := model.Purchase{
		ID:        r.ID,
		Total:     r.Total,
		Status:    model.PurchaseStatus(r.Status),
		CreatedAt: r.CreatedAt,
		Items:     items,
	}
	if r.PurchaseDate.Valid {
		date := r.PurchaseDate.Time
		p.Date = &date
	}
	p.Supplier = nullStringPtr(r.Supplier)
	p.InvoiceNumber = nullStringPtr(r.InvoiceNumber)
	if p.Items == nil {
		p.Items = []model.PurchaseItem{}
	}
	return p
}

type itemRow struct {
	CreatedAt        time.Time       `db:"created_at"`
	ProductID        sql.NullString  `db:"product_id"`
	Quantity         decimal.Decimal `db:"quantity"`
	UnitPrice        decimal.Decimal `db:"unit_price"`
	TotalPrice       decimal.Decimal `db:"total_price"`
	ID               string          `db:"id"`
	PurchaseID       string          `db:"purchase_id"`
	RawName          string          `db:"raw_name"`
	Unit             string          `db:"unit"`
	ResolutionSource string          `db:"resolution_source"`
	Position         int             `db:"position"`
	Confidence       float64         `db:"confidence"`
	NeedsReview      bool            `db:"needs_review"`
}

func (r itemRow) toModel() model.PurchaseItem {
	return model.PurchaseItem{
		ID:               r.ID,
		PurchaseID:       r.PurchaseID,
		Position:         r.Position,
		RawName:          r.RawName,
		ProductID:        nullStringPtr(r.ProductID),
		Quantity:         r.Quantity,
		Unit:             r.Unit,
		UnitPrice:        r.UnitPrice,
		TotalPrice:       r.TotalPrice,
		NeedsReview:      r.NeedsReview,
		ResolutionSource: model.ResolutionSource(r.ResolutionSource),
		Confidence:       r.Confidence,
		CreatedAt:        r.CreatedAt,
	}
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func stringPtrValue(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func timePtrValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

const (
	productColumns  = `id, name, category, unit, average_price, is_active, created_at`
	mappingColumns  = `key, product_id, confidence, confirmed, source, use_count, last_updated`
	purchaseColumns = `id, purchase_date, supplier, invoice_number, total, status, created_at`
	itemColumns     = `id, purchase_id, position, raw_name, quantity, unit, unit_price, total_price,
		product_id, needs_review, resolution_source, confidence, created_at`
)
