package triage

import "math"

// Tier is the advisory triage bucket derived from extraction confidence
type Tier string

const (
	High   Tier = "high"
	Medium Tier = "medium"
	Low    Tier = "low"
)

// Default thresholds
const (
	DefaultHighThreshold   = 90.0
	DefaultMediumThreshold = 70.0
)

// Label returns the advisory text shown next to a tier
func (t Tier) Label() string {
	switch t {
	case High:
		return "auto-approve ready"
	case Medium:
		return "needs review"
	default:
		return "low confidence"
	}
}

// Classifier maps confidence scores to tiers with configurable thresholds
type Classifier struct {
	highThreshold   float64
	mediumThreshold float64
}

// NewClassifier creates a new classifier with the specified thresholds
func NewClassifier(highThreshold, mediumThreshold float64) *Classifier {
	return &Classifier{
		highThreshold:   highThreshold,
		mediumThreshold: mediumThreshold,
	}
}

var defaultClassifier = NewClassifier(DefaultHighThreshold, DefaultMediumThreshold)

// Classify maps a confidence score to a tier using the default thresholds
func Classify(confidence float64) Tier {
	return defaultClassifier.Classify(confidence)
}

// Classify is total: NaN and out-of-range values never fail, they land in Low
// or High like any other number would.
func (c *Classifier) Classify(confidence float64) Tier {
	if math.IsNaN(confidence) {
		return Low
	}
	if confidence >= c.highThreshold {
		return High
	}
	if confidence >= c.mediumThreshold {
		return Medium
	}
	return Low
}
