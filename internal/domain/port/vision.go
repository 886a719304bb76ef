package port

import "github.com/AltanTamer/ATPCaseMovement/internal/domain/entity"

// FeatureExtractor detects keypoints and computes binary descriptors for
// one frame. Pure: deterministic for a fixed frame and configuration. A
// frame with no detectable structure yields an empty set, not an error.
type FeatureExtractor interface {
	Extract(frame *entity.Frame) *entity.FeatureSet
}

// DescriptorMatcher finds, for each descriptor of src, the best candidate
// in dst by Hamming distance. Output is ordered by source index and each
// source index appears at most once. Empty input yields empty output.
type DescriptorMatcher interface {
	Match(src, dst *entity.FeatureSet) []entity.Match
}

// RobustEstimator fits a projective transform to matched keypoints,
// tolerating outliers. It refuses degenerate inputs (too few matches,
// collinear points, singular fits) with an error instead of returning a
// meaningless matrix.
type RobustEstimator interface {
	Estimate(src, dst *entity.FeatureSet, matches []entity.Match) (*entity.Homography, error)
}
