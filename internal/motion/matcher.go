package motion

import (
	"math"

	"github.com/AltanTamer/ATPCaseMovement/internal/domain/entity"
)

// HammingMatcher pairs every source descriptor with its nearest destination
// descriptor by Hamming distance. Ties go to the lowest destination index.
// With the ratio test enabled, a match is dropped when the best distance is
// not clearly smaller than the second-best, which rejects ambiguous matches
// in repetitive texture.
type HammingMatcher struct {
	ratioEnabled bool
	ratio        float64
}

func NewHammingMatcher(cfg Config) *HammingMatcher {
	cfg.applyDefaults()
	return &HammingMatcher{
		ratioEnabled: cfg.RatioTestEnabled,
		ratio:        cfg.RatioTestThreshold,
	}
}

// Match returns best-candidate matches ordered by source index. Each source
// index appears at most once. Either set being empty yields no matches.
func (m *HammingMatcher) Match(src, dst *entity.FeatureSet) []entity.Match {
	if src.Len() == 0 || dst.Len() == 0 {
		return nil
	}

	matches := make([]entity.Match, 0, src.Len())
	for i := range src.Descriptors {
		best := math.MaxInt
		second := math.MaxInt
		bestJ := -1
		for j := range dst.Descriptors {
			dist := src.Descriptors[i].HammingTo(dst.Descriptors[j])
			if dist < best {
				second = best
				best = dist
				bestJ = j
			} else if dist < second {
				second = dist
			}
		}
		if m.ratioEnabled && second != math.MaxInt &&
			float64(best) > m.ratio*float64(second) {
			continue
		}
		matches = append(matches, entity.Match{
			SrcIndex: i,
			DstIndex: bestJ,
			Distance: best,
		})
	}
	return matches
}
