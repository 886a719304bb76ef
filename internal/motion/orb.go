package motion

import (
	"math"
	"math/rand"
	"sort"

	"github.com/AltanTamer/ATPCaseMovement/internal/domain/entity"
)

const (
	// Geometry of the descriptor sampling pattern. Pattern points live in a
	// disc of patternRadius so any rotation keeps them inside the patch;
	// together with the blur window this bounds the minimum border margin.
	patternRadius    = 13
	blurRadius       = 2
	minEdgeThreshold = patternRadius + blurRadius + 1

	fastArcLength     = 9 // contiguous circle pixels required for a corner
	orientationRadius = 7

	// Fixed seed for the descriptor sampling pattern. The pattern is part
	// of the descriptor definition: it must be identical across runs and
	// across both frames of a pair.
	patternSeed = 0x0b5a7c91
)

// Bresenham circle of radius 3 around the candidate pixel, in clockwise
// order starting from twelve o'clock.
var fastCircle = [16][2]int{
	{0, -3}, {1, -3}, {2, -2}, {3, -1},
	{3, 0}, {3, 1}, {2, 2}, {1, 3},
	{0, 3}, {-1, 3}, {-2, 2}, {-3, 1},
	{-3, 0}, {-3, -1}, {-2, -2}, {-1, -3},
}

type grayImage struct {
	w, h int
	pix  []uint8
}

func (g grayImage) at(x, y int) uint8 {
	return g.pix[y*g.w+x]
}

// Extractor detects FAST corners over a scale pyramid, assigns each an
// intensity-centroid orientation, and computes a steered 256-bit binary
// descriptor from pairwise intensity comparisons on a blurred patch.
// Extraction is a pure function of the frame and the configuration.
type Extractor struct {
	maxFeatures int
	levels      int
	scaleFactor float64
	threshold   int
	edge        int

	pattern    [entity.DescriptorBits][4]int8
	orientDisc [][2]int
}

func NewExtractor(cfg Config) *Extractor {
	cfg.applyDefaults()
	e := &Extractor{
		maxFeatures: cfg.MaxFeatures,
		levels:      cfg.PyramidLevels,
		scaleFactor: cfg.ScaleFactor,
		threshold:   cfg.FASTThreshold,
		edge:        cfg.EdgeThreshold,
	}
	e.buildPattern()
	e.buildOrientationDisc()
	return e
}

func (e *Extractor) buildPattern() {
	rng := rand.New(rand.NewSource(patternSeed))
	sample := func() (int8, int8) {
		for {
			x := rng.Intn(2*patternRadius+1) - patternRadius
			y := rng.Intn(2*patternRadius+1) - patternRadius
			if x*x+y*y <= patternRadius*patternRadius {
				return int8(x), int8(y)
			}
		}
	}
	for i := range e.pattern {
		x1, y1 := sample()
		x2, y2 := sample()
		for x1 == x2 && y1 == y2 {
			x2, y2 = sample()
		}
		e.pattern[i] = [4]int8{x1, y1, x2, y2}
	}
}

func (e *Extractor) buildOrientationDisc() {
	r := orientationRadius
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy <= r*r {
				e.orientDisc = append(e.orientDisc, [2]int{dx, dy})
			}
		}
	}
}

type cornerPoint struct {
	x, y  int
	score float64
}

// Extract produces the frame's feature set, strongest keypoints first.
// Frames without detectable corners yield an empty set, never an error.
func (e *Extractor) Extract(frame *entity.Frame) *entity.FeatureSet {
	fs := &entity.FeatureSet{FrameIndex: frame.Index}
	base := grayImage{w: frame.Width, h: frame.Height, pix: frame.Pix}

	type candidate struct {
		kp   entity.Keypoint
		desc entity.Descriptor
	}
	var cands []candidate

	scale := 1.0
	for level := 0; level < e.levels; level++ {
		img := base
		if level > 0 {
			scale *= e.scaleFactor
			nw := int(float64(base.w)/scale + 0.5)
			nh := int(float64(base.h)/scale + 0.5)
			if nw < 2*e.edge+4 || nh < 2*e.edge+4 {
				break
			}
			img = resizeBilinear(base, nw, nh)
		} else if base.w < 2*e.edge+4 || base.h < 2*e.edge+4 {
			break
		}

		corners := e.detectCorners(img)
		if len(corners) == 0 {
			continue
		}
		blurred := boxBlur(img, blurRadius)
		for _, c := range corners {
			angle := e.orientation(img, c.x, c.y)
			cands = append(cands, candidate{
				kp: entity.Keypoint{
					X:        float64(c.x) * scale,
					Y:        float64(c.y) * scale,
					Angle:    angle,
					Response: c.score,
					Level:    level,
				},
				desc: e.describe(blurred, c.x, c.y, angle),
			})
		}
	}

	// Strongest first; fully deterministic tie-break so the ordering is
	// stable for index-based back-references from matches.
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i].kp, cands[j].kp
		if a.Response != b.Response {
			return a.Response > b.Response
		}
		if a.Level != b.Level {
			return a.Level < b.Level
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
	if len(cands) > e.maxFeatures {
		cands = cands[:e.maxFeatures]
	}

	fs.Keypoints = make([]entity.Keypoint, len(cands))
	fs.Descriptors = make([]entity.Descriptor, len(cands))
	for i, c := range cands {
		fs.Keypoints[i] = c.kp
		fs.Descriptors[i] = c.desc
	}
	return fs
}

// detectCorners runs segment-test corner detection with non-maximum
// suppression over a 3x3 neighborhood of the response map.
func (e *Extractor) detectCorners(img grayImage) []cornerPoint {
	scores := make([]float64, img.w*img.h)
	t := e.threshold
	found := false

	for y := e.edge; y < img.h-e.edge; y++ {
		for x := e.edge; x < img.w-e.edge; x++ {
			p := int(img.at(x, y))

			// Cheap reject on the four compass points: a corner needs at
			// least three of them on the same side of the threshold.
			bright, dark := 0, 0
			for _, k := range [4]int{0, 4, 8, 12} {
				v := int(img.at(x+fastCircle[k][0], y+fastCircle[k][1]))
				if v >= p+t {
					bright++
				} else if v <= p-t {
					dark++
				}
			}
			if bright < 3 && dark < 3 {
				continue
			}

			var brightMask, darkMask uint16
			score := 0.0
			for k, off := range fastCircle {
				v := int(img.at(x+off[0], y+off[1]))
				d := v - p
				if d >= t {
					brightMask |= 1 << uint(k)
					score += float64(d - t)
				} else if d <= -t {
					darkMask |= 1 << uint(k)
					score += float64(-d - t)
				}
			}
			if !hasContiguousArc(brightMask) && !hasContiguousArc(darkMask) {
				continue
			}
			scores[y*img.w+x] = score
			found = true
		}
	}
	if !found {
		return nil
	}

	var out []cornerPoint
	for y := e.edge; y < img.h-e.edge; y++ {
		for x := e.edge; x < img.w-e.edge; x++ {
			s := scores[y*img.w+x]
			if s == 0 {
				continue
			}
			// Strictly greater than already-scanned neighbors, at least as
			// great as the rest: deterministic and plateau-free.
			if s <= scores[(y-1)*img.w+x-1] || s <= scores[(y-1)*img.w+x] ||
				s <= scores[(y-1)*img.w+x+1] || s <= scores[y*img.w+x-1] {
				continue
			}
			if s < scores[y*img.w+x+1] || s < scores[(y+1)*img.w+x-1] ||
				s < scores[(y+1)*img.w+x] || s < scores[(y+1)*img.w+x+1] {
				continue
			}
			out = append(out, cornerPoint{x: x, y: y, score: s})
		}
	}
	return out
}

// hasContiguousArc reports whether the 16-bit circle mask contains a run
// of at least fastArcLength set bits, treating the mask as circular.
func hasContiguousArc(mask uint16) bool {
	if mask == 0 {
		return false
	}
	extended := uint32(mask)<<16 | uint32(mask)
	run := 0
	for i := 0; i < 32; i++ {
		if extended&(1<<uint(i)) != 0 {
			run++
			if run >= fastArcLength {
				return true
			}
		} else {
			run = 0
		}
	}
	return false
}

// orientation is the intensity-centroid angle of the patch around (x, y).
func (e *Extractor) orientation(img grayImage, x, y int) float64 {
	var m10, m01 float64
	for _, off := range e.orientDisc {
		v := float64(img.at(x+off[0], y+off[1]))
		m10 += float64(off[0]) * v
		m01 += float64(off[1]) * v
	}
	if m10 == 0 && m01 == 0 {
		return 0
	}
	return math.Atan2(m01, m10)
}

// describe samples the fixed point-pair pattern, steered by the keypoint
// angle, on the blurred image and packs the comparisons into 256 bits.
func (e *Extractor) describe(blurred grayImage, x, y int, angle float64) entity.Descriptor {
	sin, cos := math.Sincos(angle)
	var d entity.Descriptor
	for i, pp := range e.pattern {
		x1 := float64(pp[0])
		y1 := float64(pp[1])
		x2 := float64(pp[2])
		y2 := float64(pp[3])
		rx1 := x + int(math.Round(cos*x1-sin*y1))
		ry1 := y + int(math.Round(sin*x1+cos*y1))
		rx2 := x + int(math.Round(cos*x2-sin*y2))
		ry2 := y + int(math.Round(sin*x2+cos*y2))
		if blurred.at(rx1, ry1) < blurred.at(rx2, ry2) {
			d.SetBit(i)
		}
	}
	return d
}

// boxBlur is a mean filter of radius r computed with a summed-area table.
func boxBlur(img grayImage, r int) grayImage {
	w, h := img.w, img.h
	integral := make([]uint64, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		var rowSum uint64
		for x := 0; x < w; x++ {
			rowSum += uint64(img.pix[y*w+x])
			integral[(y+1)*(w+1)+x+1] = integral[y*(w+1)+x+1] + rowSum
		}
	}

	out := grayImage{w: w, h: h, pix: make([]uint8, w*h)}
	for y := 0; y < h; y++ {
		y0 := y - r
		if y0 < 0 {
			y0 = 0
		}
		y1 := y + r + 1
		if y1 > h {
			y1 = h
		}
		for x := 0; x < w; x++ {
			x0 := x - r
			if x0 < 0 {
				x0 = 0
			}
			x1 := x + r + 1
			if x1 > w {
				x1 = w
			}
			sum := integral[y1*(w+1)+x1] - integral[y0*(w+1)+x1] -
				integral[y1*(w+1)+x0] + integral[y0*(w+1)+x0]
			out.pix[y*w+x] = uint8(sum / uint64((y1-y0)*(x1-x0)))
		}
	}
	return out
}

// resizeBilinear downsamples src to nw x nh.
func resizeBilinear(src grayImage, nw, nh int) grayImage {
	out := grayImage{w: nw, h: nh, pix: make([]uint8, nw*nh)}
	sx := float64(src.w) / float64(nw)
	sy := float64(src.h) / float64(nh)
	for y := 0; y < nh; y++ {
		fy := (float64(y)+0.5)*sy - 0.5
		if fy < 0 {
			fy = 0
		}
		iy := int(fy)
		if iy > src.h-2 {
			iy = src.h - 2
		}
		wy := fy - float64(iy)
		for x := 0; x < nw; x++ {
			fx := (float64(x)+0.5)*sx - 0.5
			if fx < 0 {
				fx = 0
			}
			ix := int(fx)
			if ix > src.w-2 {
				ix = src.w - 2
			}
			wx := fx - float64(ix)

			tl := float64(src.at(ix, iy))
			tr := float64(src.at(ix+1, iy))
			bl := float64(src.at(ix, iy+1))
			br := float64(src.at(ix+1, iy+1))
			top := tl + (tr-tl)*wx
			bot := bl + (br-bl)*wx
			out.pix[y*nw+x] = uint8(top + (bot-top)*wy + 0.5)
		}
	}
	return out
}
