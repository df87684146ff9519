// Package model defines the core domain models used throughout the application.
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultUnit is the unit of measure assigned when none is known.
const DefaultUnit = "un"

// Product represents a canonical catalog entry for one real-world item.
type Product struct {
	CreatedAt    time.Time
	Category     *string
	AveragePrice decimal.Decimal
	ID           string
	Name         string
	Unit         string
	Aliases      []string
	IsActive     bool
}

// NormalizeName turns a raw OCR description into the key used for
// learned mappings and aliases.
func NormalizeName(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// CategoryName returns the category or an empty string when unset.
func (p *Product) CategoryName() string {
	if p.Category == nil {
		return ""
	}
	return *p.Category
}

// NewProduct describes a product to be created from the review workflow.
type NewProduct struct {
	Category *string
	Name     string
	Unit     string
}
