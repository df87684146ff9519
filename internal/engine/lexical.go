package engine

import (
	"sort"
	"strings"

	"github.com/Veraticus/pantry/internal/model"
)

type lexicalMatch struct {
	product model.Product
	order   int
	exact   bool
}

// lexicalMatches returns the catalog products whose name or any alias
// contains rawName or is contained in it. Exact matches sort first; the
// rest keep catalog order.
func lexicalMatches(rawName string, catalog []model.Product) []lexicalMatch {
	query := fold(rawName)
	if query == "" {
		return nil
	}

	var matches []lexicalMatch
	for i, product := range catalog {
		matched, exact := false, false
		for _, term := range append([]string{product.Name}, product.Aliases...) {
			t := fold(term)
			if t == "" {
				continue
			}
			if t == query {
				matched, exact = true, true
				break
			}
			if strings.Contains(t, query) || strings.Contains(query, t) {
				matched = true
			}
		}
		if matched {
			matches = append(matches, lexicalMatch{product: product, exact: exact, order: i})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].exact != matches[j].exact {
			return matches[i].exact
		}
		return matches[i].order < matches[j].order
	})
	return matches
}

func capCandidates(matches []lexicalMatch, limit int) []model.Product {
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	products := make([]model.Product, len(matches))
	for i, m := range matches {
		products[i] = m.product
	}
	return products
}
