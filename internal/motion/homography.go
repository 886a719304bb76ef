package motion

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/AltanTamer/ATPCaseMovement/internal/domain/entity"
)

// Fit-failure kinds. Callers map these onto result reason codes; they never
// abort a frame sequence.
var (
	ErrInsufficientMatches = errors.New("insufficient matches for homography")
	ErrDegenerateGeometry  = errors.New("degenerate geometry")
)

const minimalSampleSize = 4

// point is a 2D keypoint location during estimation.
type point struct {
	x, y float64
}

// RANSACEstimator fits a homography to matched keypoints by repeatedly
// sampling minimal 4-point subsets, fitting with the normalized direct
// linear transform, and keeping the candidate with the most inliers under
// the reprojection threshold (ties broken by lower mean inlier error). The
// winner is refit on its full inlier set. Sampling uses an injectable seed
// so runs are reproducible under test.
type RANSACEstimator struct {
	reprojThreshold float64
	maxIterations   int
	confidence      float64
	minMatches      int
	minInlierRatio  float64

	// rng is shared across concurrent Estimate calls.
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRANSACEstimator(cfg Config) *RANSACEstimator {
	cfg.applyDefaults()
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	return &RANSACEstimator{
		reprojThreshold: cfg.RANSACReprojThreshold,
		maxIterations:   cfg.RANSACMaxIterations,
		confidence:      cfg.RANSACConfidence,
		minMatches:      cfg.MinMatches,
		minInlierRatio:  cfg.MinInlierRatio,
		rng:             rand.New(rand.NewSource(seed)),
	}
}

// Estimate fits the transform mapping src keypoints onto dst keypoints.
// It returns ErrInsufficientMatches below the configured minimum and
// ErrDegenerateGeometry when the points carry no usable 2D structure or
// no invertible fit exists.
func (e *RANSACEstimator) Estimate(src, dst *entity.FeatureSet, matches []entity.Match) (*entity.Homography, error) {
	n := len(matches)
	if n < e.minMatches || n < minimalSampleSize {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientMatches, n, e.minMatches)
	}

	srcPts := make([]point, n)
	dstPts := make([]point, n)
	for i, m := range matches {
		kp := src.Keypoints[m.SrcIndex]
		srcPts[i] = point{kp.X, kp.Y}
		kq := dst.Keypoints[m.DstIndex]
		dstPts[i] = point{kq.X, kq.Y}
	}

	if nearCollinear(srcPts) || nearCollinear(dstPts) {
		return nil, fmt.Errorf("%w: matched points are collinear or coincident", ErrDegenerateGeometry)
	}

	thresholdSq := e.reprojThreshold * e.reprojThreshold

	var (
		bestM       [3][3]float64
		bestCount   int
		bestMeanErr = math.Inf(1)
		found       bool
	)

	maxIters := e.maxIterations
	for iter := 0; iter < maxIters; iter++ {
		sample := e.sampleIndices(n)
		if degenerateSample(srcPts, sample) || degenerateSample(dstPts, sample) {
			continue
		}

		candM, err := fitDLT(pick(srcPts, sample), pick(dstPts, sample))
		if err != nil {
			continue
		}

		count, meanErr := countInliers(candM, srcPts, dstPts, thresholdSq)
		if count > bestCount || (count == bestCount && meanErr < bestMeanErr) {
			bestM = candM
			bestCount = count
			bestMeanErr = meanErr
			found = true

			// Adaptive termination: once the inlier ratio implies enough
			// iterations have been seen to hit the confidence target, stop.
			if needed := adaptiveIterations(e.confidence, float64(count)/float64(n)); needed < maxIters {
				maxIters = needed
			}
		}
	}

	if !found || bestCount < minimalSampleSize {
		return nil, fmt.Errorf("%w: no consensus transform", ErrDegenerateGeometry)
	}

	// Refit on the full inlier set of the winning candidate.
	inlierIdx := inlierIndices(bestM, srcPts, dstPts, thresholdSq)
	if refit, err := fitDLT(pick(srcPts, inlierIdx), pick(dstPts, inlierIdx)); err == nil {
		if c, m := countInliers(refit, srcPts, dstPts, thresholdSq); c >= bestCount {
			bestM, bestCount, bestMeanErr = refit, c, m
		}
	}

	if math.Abs(det3(bestM)) < 1e-10 {
		return nil, fmt.Errorf("%w: fitted matrix is singular", ErrDegenerateGeometry)
	}

	finalIdx := inlierIndices(bestM, srcPts, dstPts, thresholdSq)
	h := &entity.Homography{
		M:           bestM,
		Inliers:     make([]bool, n),
		InlierCount: len(finalIdx),
		MeanError:   bestMeanErr,
	}
	for _, idx := range finalIdx {
		h.Inliers[idx] = true
	}
	h.LowConfidence = h.InlierRatio() < e.minInlierRatio
	return h, nil
}

// sampleIndices draws 4 distinct match indices.
func (e *RANSACEstimator) sampleIndices(n int) []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := make([]int, 0, minimalSampleSize)
	for len(s) < minimalSampleSize {
		c := e.rng.Intn(n)
		dup := false
		for _, prev := range s {
			if prev == c {
				dup = true
				break
			}
		}
		if !dup {
			s = append(s, c)
		}
	}
	return s
}

func pick(pts []point, idx []int) []point {
	out := make([]point, len(idx))
	for i, j := range idx {
		out[i] = pts[j]
	}
	return out
}

func adaptiveIterations(confidence, inlierRatio float64) int {
	if inlierRatio <= 0 {
		return math.MaxInt32
	}
	if inlierRatio >= 1 {
		return 1
	}
	denom := math.Log(1 - math.Pow(inlierRatio, minimalSampleSize))
	if denom >= 0 {
		return 1
	}
	iters := math.Log(1-confidence) / denom
	if iters > float64(math.MaxInt32) {
		return math.MaxInt32
	}
	return int(math.Ceil(iters))
}

// degenerateSample reports whether any three of the four sampled points are
// (near-)collinear, which would make the minimal fit unstable.
func degenerateSample(pts []point, sample []int) bool {
	const minArea = 1.0 // px^2, twice the triangle area
	for a := 0; a < len(sample); a++ {
		for b := a + 1; b < len(sample); b++ {
			for c := b + 1; c < len(sample); c++ {
				p, q, r := pts[sample[a]], pts[sample[b]], pts[sample[c]]
				cross := (q.x-p.x)*(r.y-p.y) - (q.y-p.y)*(r.x-p.x)
				if math.Abs(cross) < minArea {
					return true
				}
			}
		}
	}
	return false
}

// nearCollinear reports whether the whole point set is effectively one
// dimensional (all points on or near a single line, or coincident), using
// the eigenvalues of the 2x2 covariance.
func nearCollinear(pts []point) bool {
	n := float64(len(pts))
	var cx, cy float64
	for _, p := range pts {
		cx += p.x
		cy += p.y
	}
	cx /= n
	cy /= n

	var sxx, sxy, syy float64
	for _, p := range pts {
		dx, dy := p.x-cx, p.y-cy
		sxx += dx * dx
		sxy += dx * dy
		syy += dy * dy
	}
	sxx /= n
	sxy /= n
	syy /= n

	tr := sxx + syy
	detC := sxx*syy - sxy*sxy
	disc := math.Sqrt(math.Max(0, tr*tr/4-detC))
	lambdaMin := tr/2 - disc
	lambdaMax := tr/2 + disc
	if lambdaMax < 1e-9 {
		return true // all points coincident
	}
	return lambdaMin < 1e-6*lambdaMax || lambdaMin < 1e-6
}

func countInliers(m [3][3]float64, src, dst []point, thresholdSq float64) (int, float64) {
	count := 0
	errSum := 0.0
	for i := range src {
		d, ok := reprojErrorSq(m, src[i], dst[i])
		if ok && d < thresholdSq {
			count++
			errSum += math.Sqrt(d)
		}
	}
	if count == 0 {
		return 0, math.Inf(1)
	}
	return count, errSum / float64(count)
}

func inlierIndices(m [3][3]float64, src, dst []point, thresholdSq float64) []int {
	var idx []int
	for i := range src {
		if d, ok := reprojErrorSq(m, src[i], dst[i]); ok && d < thresholdSq {
			idx = append(idx, i)
		}
	}
	return idx
}

func reprojErrorSq(m [3][3]float64, s, d point) (float64, bool) {
	w := m[2][0]*s.x + m[2][1]*s.y + m[2][2]
	if math.Abs(w) < 1e-12 {
		return 0, false
	}
	px := (m[0][0]*s.x + m[0][1]*s.y + m[0][2]) / w
	py := (m[1][0]*s.x + m[1][1]*s.y + m[1][2]) / w
	dx := px - d.x
	dy := py - d.y
	return dx*dx + dy*dy, true
}

// fitDLT solves for the homography with the normalized direct linear
// transform: Hartley-normalize both point sets, solve the homogeneous
// system by SVD, and denormalize.
func fitDLT(src, dst []point) ([3][3]float64, error) {
	var zero [3][3]float64
	if len(src) < minimalSampleSize || len(src) != len(dst) {
		return zero, fmt.Errorf("%w: need %d point pairs", ErrDegenerateGeometry, minimalSampleSize)
	}

	srcN, tSrc, err := normalizePoints(src)
	if err != nil {
		return zero, err
	}
	dstN, tDst, err := normalizePoints(dst)
	if err != nil {
		return zero, err
	}

	n := len(srcN)
	a := mat.NewDense(2*n, 9, nil)
	for i := 0; i < n; i++ {
		x, y := srcN[i].x, srcN[i].y
		u, v := dstN[i].x, dstN[i].y
		a.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		a.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return zero, fmt.Errorf("%w: SVD failed to converge", ErrDegenerateGeometry)
	}
	var v mat.Dense
	svd.VTo(&v)

	// Null-space solution: right singular vector of the smallest singular
	// value (gonum orders singular values descending).
	var hn [3][3]float64
	for i := 0; i < 9; i++ {
		hn[i/3][i%3] = v.At(i, 8)
	}

	// H = inv(Tdst) * Hn * Tsrc
	h := mul3(mul3(invSimilarity(tDst), hn), tSrc.matrix())
	if math.Abs(h[2][2]) < 1e-12 {
		return zero, fmt.Errorf("%w: homogeneous scale vanished", ErrDegenerateGeometry)
	}
	s := 1 / h[2][2]
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			h[i][j] *= s
		}
	}
	return h, nil
}

// similarity is the Hartley normalization transform: translate the centroid
// to the origin, scale so the mean distance from it is sqrt(2).
type similarity struct {
	scale  float64
	cx, cy float64
}

func (t similarity) matrix() [3][3]float64 {
	return [3][3]float64{
		{t.scale, 0, -t.scale * t.cx},
		{0, t.scale, -t.scale * t.cy},
		{0, 0, 1},
	}
}

func invSimilarity(t similarity) [3][3]float64 {
	return [3][3]float64{
		{1 / t.scale, 0, t.cx},
		{0, 1 / t.scale, t.cy},
		{0, 0, 1},
	}
}

func normalizePoints(pts []point) ([]point, similarity, error) {
	n := float64(len(pts))
	var cx, cy float64
	for _, p := range pts {
		cx += p.x
		cy += p.y
	}
	cx /= n
	cy /= n

	var meanDist float64
	for _, p := range pts {
		meanDist += math.Hypot(p.x-cx, p.y-cy)
	}
	meanDist /= n
	if meanDist < 1e-9 {
		return nil, similarity{}, fmt.Errorf("%w: coincident points", ErrDegenerateGeometry)
	}

	t := similarity{scale: math.Sqrt2 / meanDist, cx: cx, cy: cy}
	out := make([]point, len(pts))
	for i, p := range pts {
		out[i] = point{(p.x - cx) * t.scale, (p.y - cy) * t.scale}
	}
	return out, t, nil
}

func mul3(a, b [3][3]float64) [3][3]float64 {
	var c [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			c[i][j] = a[i][0]*b[0][j] + a[i][1]*b[1][j] + a[i][2]*b[2][j]
		}
	}
	return c
}

func det3(m [3][3]float64) float64 {
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}
