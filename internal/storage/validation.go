package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/pantry/internal/model"
)

// Validation errors.
var (
	ErrNilContext          = errors.New("context cannot be nil")
	ErrEmptyString         = errors.New("string parameter cannot be empty")
	ErrNilParameter        = errors.New("parameter cannot be nil")
	ErrEmptySlice          = errors.New("slice cannot be empty")
	ErrInvalidStatus       = errors.New("invalid purchase status")
	ErrInvalidMapping      = errors.New("invalid learned mapping")
	ErrInvalidProduct      = errors.New("invalid product")
	ErrInvalidPurchase     = errors.New("invalid purchase")
	ErrInvalidResolution   = errors.New("invalid resolution")
	ErrItemAlreadyResolved = errors.New("purchase item already resolved")
)

func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateNewProduct(p *model.NewProduct) error {
	if p == nil {
		return fmt.Errorf("%w: product", ErrNilParameter)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidProduct)
	}
	return nil
}

func validateMapping(m *model.LearnedMapping) error {
	if m == nil {
		return fmt.Errorf("%w: mapping", ErrNilParameter)
	}
	if model.NormalizeName(m.Key) == "" {
		return fmt.Errorf("%w: missing key", ErrInvalidMapping)
	}
	if m.ProductID == "" {
		return fmt.Errorf("%w: missing product ID", ErrInvalidMapping)
	}
	if m.Confidence < 0 || m.Confidence > 1 {
		return fmt.Errorf("%w: confidence %.2f out of range", ErrInvalidMapping, m.Confidence)
	}
	switch m.Source {
	case model.SourceAISuggested, model.SourceUserConfirmed:
	default:
		return fmt.Errorf("%w: unknown source %q", ErrInvalidMapping, m.Source)
	}
	return nil
}

func validatePurchase(p *model.Purchase) error {
	if p == nil {
		return fmt.Errorf("%w: purchase", ErrNilParameter)
	}
	if !p.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, p.Status)
	}
	if len(p.Items) == 0 {
		return fmt.Errorf("%w: items", ErrEmptySlice)
	}
	for i, item := range p.Items {
		if strings.TrimSpace(item.RawName) == "" {
			return fmt.Errorf("%w: item at index %d has no name", ErrInvalidPurchase, i)
		}
		if item.NeedsReview != (item.ProductID == nil) {
			return fmt.Errorf("%w: item at index %d has inconsistent review flag", ErrInvalidPurchase, i)
		}
	}
	return nil
}

func validateResolution(r model.Resolution) error {
	if !r.IsResolved() {
		return fmt.Errorf("%w: no product", ErrInvalidResolution)
	}
	return nil
}
