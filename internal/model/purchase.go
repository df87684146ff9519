package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseStatus is the review state of a scanned receipt.
type PurchaseStatus string

// Purchase status constants.
const (
	PurchasePendingReview PurchaseStatus = "pending_review"
	PurchaseConfirmed     PurchaseStatus = "confirmed"
	PurchaseRejected      PurchaseStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s PurchaseStatus) Valid() bool {
	switch s {
	case PurchasePendingReview, PurchaseConfirmed, PurchaseRejected:
		return true
	}
	return false
}

// Purchase groups the line items of one scanned document.
type Purchase struct {
	CreatedAt     time.Time
	Date          *time.Time
	Supplier      *string
	InvoiceNumber *string
	Total         decimal.Decimal
	ID            string
	Status        PurchaseStatus
	Items         []PurchaseItem
}

// UnresolvedCount returns how many items still lack a product.
func (p *Purchase) UnresolvedCount() int {
	count := 0
	for _, item := range p.Items {
		if item.ProductID == nil {
			count++
		}
	}
	return count
}

// PurchaseItem is one line from a receipt.
type PurchaseItem struct {
	CreatedAt        time.Time
	ProductID        *string
	Quantity         decimal.Decimal
	UnitPrice        decimal.Decimal
	TotalPrice       decimal.Decimal
	ID               string
	PurchaseID       string
	RawName          string
	Unit             string
	ResolutionSource ResolutionSource
	Position         int
	Confidence       float64
	NeedsReview      bool
}

// RawReceipt is the best-effort output of the OCR oracle. Any field may be nil.
type RawReceipt struct {
	Date          *time.Time
	Supplier      *string
	InvoiceNumber *string
	Total         *decimal.Decimal
	Items         []RawItem
}

// NamedItems counts the lines whose name survived extraction.
func (r *RawReceipt) NamedItems() int {
	count := 0
	for _, item := range r.Items {
		if strings.TrimSpace(item.Name) != "" {
			count++
		}
	}
	return count
}

// RawItem is one extracted line. Any field except Name may be nil.
type RawItem struct {
	Quantity   *decimal.Decimal
	UnitPrice  *decimal.Decimal
	TotalPrice *decimal.Decimal
	Unit       *string
	Name       string
}
