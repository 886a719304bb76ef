package motion

import "github.com/AltanTamer/ATPCaseMovement/internal/domain/entity"

// Classifier turns a movement score into a discrete label. Confidence is
// the inlier ratio of the fit. Pairs whose fit failed upstream go through
// Undetermined instead, keeping the two outcomes distinguishable: a
// confident "no movement" carries a label, an unreliable pair does not.
type Classifier struct {
	threshold float64
}

func NewClassifier(cfg Config) *Classifier {
	cfg.applyDefaults()
	return &Classifier{threshold: cfg.MovementThreshold}
}

func (c *Classifier) Classify(pairIndex int, score *entity.MovementScore, h *entity.Homography, matches int) entity.ClassificationResult {
	significant := score.Value > c.threshold
	reason := entity.ReasonNone
	if h.LowConfidence {
		reason = entity.ReasonLowConfidenceFit
	}
	return entity.ClassificationResult{
		PairIndex:   pairIndex,
		Score:       score,
		Significant: &significant,
		Confidence:  h.InlierRatio(),
		Matches:     matches,
		Inliers:     h.InlierCount,
		Reason:      reason,
	}
}

// Undetermined builds the result for a pair that could not be classified.
func (c *Classifier) Undetermined(pairIndex int, matches int, reason entity.ReasonCode) entity.ClassificationResult {
	return entity.ClassificationResult{
		PairIndex: pairIndex,
		Matches:   matches,
		Reason:    reason,
	}
}
