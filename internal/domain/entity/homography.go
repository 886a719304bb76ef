package entity

import "math"

// Homography is a 3x3 projective transform mapping points of the source
// frame onto the destination frame, normalized so M[2][2] == 1. Inliers is
// aligned with the match list the transform was fitted to.
type Homography struct {
	M             [3][3]float64
	Inliers       []bool
	InlierCount   int
	MeanError     float64 // mean inlier reprojection error, pixels
	LowConfidence bool    // fit succeeded but inlier ratio was below the sanity floor
}

// Apply maps (x, y) through the transform. ok is false when the point
// projects to infinity (homogeneous w ~ 0).
func (h *Homography) Apply(x, y float64) (px, py float64, ok bool) {
	w := h.M[2][0]*x + h.M[2][1]*y + h.M[2][2]
	if math.Abs(w) < 1e-12 {
		return 0, 0, false
	}
	px = (h.M[0][0]*x + h.M[0][1]*y + h.M[0][2]) / w
	py = (h.M[1][0]*x + h.M[1][1]*y + h.M[1][2]) / w
	return px, py, true
}

// InlierRatio is the fraction of input matches consistent with the fit.
func (h *Homography) InlierRatio() float64 {
	if len(h.Inliers) == 0 {
		return 0
	}
	return float64(h.InlierCount) / float64(len(h.Inliers))
}
