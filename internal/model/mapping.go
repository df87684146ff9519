package model

import "time"

// MappingSource indicates how a learned mapping was created.
type MappingSource string

const (
	// SourceAISuggested indicates the semantic oracle proposed the mapping.
	SourceAISuggested MappingSource = "AI_SUGGESTED"
	// SourceUserConfirmed indicates a human confirmed the mapping.
	SourceUserConfirmed MappingSource = "USER_CONFIRMED"
)

// Confidence levels written by the resolution pipeline.
const (
	ConfidenceCertain   = 1.0
	ConfidenceAIGuess   = 0.7
	ConfidenceFloorBase = 0.6
)

// LearnedMapping associates a normalized raw OCR string with a catalog product.
type LearnedMapping struct {
	LastUpdated time.Time
	Key         string
	ProductID   string
	Source      MappingSource
	Confidence  float64
	UseCount    int
	Confirmed   bool
}

// Supersedes reports whether writing m over existing should replace the
// stored target. Confirmed mappings are never replaced by unconfirmed ones,
// a confirmed write always replaces, and among unconfirmed writes the higher
// or equal confidence wins.
func (m *LearnedMapping) Supersedes(existing *LearnedMapping) bool {
	if existing == nil {
		return true
	}
	if m.Confirmed {
		return true
	}
	if existing.Confirmed {
		return false
	}
	return m.Confidence >= existing.Confidence
}
