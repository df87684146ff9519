package model

// ResolutionSource names the tier that resolved an item.
type ResolutionSource string

// Resolution tiers, in the order they are tried.
const (
	SourceNone           ResolutionSource = ""
	SourceLearnedMapping ResolutionSource = "learned_mapping"
	SourceLexical        ResolutionSource = "lexical"
	SourceSemantic       ResolutionSource = "semantic"
	SourceUser           ResolutionSource = "user"
)

// Resolution is the outcome of resolving one raw item name. It is either
// resolved (ProductID set) or unresolved with zero or more candidates.
type Resolution struct {
	RawName    string
	Key        string
	ProductID  string
	Source     ResolutionSource
	Candidates []Product
	Confidence float64
	// Confirmed is true when the match came from a human-confirmed mapping
	// or an exact catalog name/alias.
	Confirmed bool
}

// Resolved builds a resolved result.
func Resolved(rawName, productID string, confidence float64, source ResolutionSource, confirmed bool) Resolution {
	return Resolution{
		RawName:    rawName,
		Key:        NormalizeName(rawName),
		ProductID:  productID,
		Confidence: confidence,
		Source:     source,
		Confirmed:  confirmed,
	}
}

// Unresolved builds an unresolved result carrying candidates for a human.
func Unresolved(rawName string, candidates []Product) Resolution {
	return Resolution{
		RawName:    rawName,
		Key:        NormalizeName(rawName),
		Candidates: candidates,
	}
}

// IsResolved reports whether a product was chosen.
func (r Resolution) IsResolved() bool {
	return r.ProductID != ""
}
