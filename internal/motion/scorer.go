package motion

import (
	"math"

	"github.com/AltanTamer/ATPCaseMovement/internal/domain/entity"
)

// Scorer decomposes a homography into translation, rotation and scale
// components and combines them into a single 0-100 movement score.
//
// Translation is the norm of the translation column divided by the frame
// diagonal, so the score is resolution independent. Rotation is the angle
// of the upper-left 2x2 block after removing scale. Scale deviation is the
// distance of the block's scale factor from 1. Each component saturates at
// its cap before weighting.
type Scorer struct {
	weights        entity.ScoreWeights
	translationCap float64
	rotationCap    float64
	scaleCap       float64
}

func NewScorer(cfg Config) *Scorer {
	cfg.applyDefaults()
	return &Scorer{
		weights:        cfg.Weights,
		translationCap: cfg.TranslationCap,
		rotationCap:    cfg.RotationCap,
		scaleCap:       cfg.ScaleCap,
	}
}

// Score converts a valid homography into a MovementScore. diagonal is the
// source frame diagonal in pixels.
func (s *Scorer) Score(h *entity.Homography, diagonal float64) *entity.MovementScore {
	translation := 0.0
	if diagonal > 0 {
		translation = math.Hypot(h.M[0][2], h.M[1][2]) / diagonal
	}

	// The first column of the linear block carries the combined rotation
	// and scale; atan2 of its entries isolates the angle.
	a, c := h.M[0][0], h.M[1][0]
	scale := math.Hypot(a, c)
	rotation := 0.0
	if scale > 1e-12 {
		rotation = math.Abs(math.Atan2(c, a))
	}
	scaleDeviation := math.Abs(scale - 1)

	value := 100 * (s.weights.Translation*saturate(translation, s.translationCap) +
		s.weights.Rotation*saturate(rotation, s.rotationCap) +
		s.weights.Scale*saturate(scaleDeviation, s.scaleCap))

	return &entity.MovementScore{
		Translation:    translation,
		Rotation:       rotation,
		ScaleDeviation: scaleDeviation,
		Weights:        s.weights,
		Value:          value,
	}
}

func saturate(v, cap float64) float64 {
	if cap <= 0 {
		return 0
	}
	if v >= cap {
		return 1
	}
	return v / cap
}
