package engine

import (
	"context"

	"github.com/Veraticus/pantry/internal/model"
)

// SemanticMatcher is the AI oracle consulted when lexical matching finds
// nothing. It returns the IDs of catalog products rawName may refer to.
// Errors mean the oracle was unavailable or replied with garbage; callers
// degrade to "no candidates".
type SemanticMatcher interface {
	MatchProducts(ctx context.Context, rawName string, catalog []model.Product) ([]string, error)
}
