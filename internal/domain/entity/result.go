package entity

// ReasonCode explains why a frame pair could not be classified reliably.
type ReasonCode string

const (
	ReasonNone                 ReasonCode = ""
	ReasonInsufficientFeatures ReasonCode = "insufficient_features"
	ReasonInsufficientMatches  ReasonCode = "insufficient_matches"
	ReasonDegenerateGeometry   ReasonCode = "degenerate_geometry"
	ReasonLowConfidenceFit     ReasonCode = "low_confidence_fit"
)

// ScoreWeights combines the three movement components into one scalar.
type ScoreWeights struct {
	Translation float64 `json:"translation"`
	Rotation    float64 `json:"rotation"`
	Scale       float64 `json:"scale"`
}

// MovementScore is the decomposed movement of one frame pair. Components
// are raw magnitudes; Value is the weighted combination on a 0-100 scale.
type MovementScore struct {
	Translation    float64      `json:"translation"`     // fraction of frame diagonal
	Rotation       float64      `json:"rotation"`        // radians, absolute
	ScaleDeviation float64      `json:"scale_deviation"` // |scale factor - 1|
	Weights        ScoreWeights `json:"weights"`
	Value          float64      `json:"value"`
}

// ClassificationResult is the outcome for one consecutive frame pair.
// PairIndex i covers frames (i, i+1). Significant is nil when the pair
// could not be classified; Reason then carries the cause.
type ClassificationResult struct {
	PairIndex   int            `json:"pair_index"`
	Score       *MovementScore `json:"score,omitempty"`
	Significant *bool          `json:"significant,omitempty"`
	Confidence  float64        `json:"confidence"`
	Matches     int            `json:"matches"`
	Inliers     int            `json:"inliers"`
	Reason      ReasonCode     `json:"reason,omitempty"`
}

// Undetermined reports whether classification was skipped for this pair.
func (r *ClassificationResult) Undetermined() bool {
	return r.Significant == nil
}

// IsSignificant is a nil-safe accessor for the label.
func (r *ClassificationResult) IsSignificant() bool {
	return r.Significant != nil && *r.Significant
}
