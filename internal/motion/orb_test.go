package motion

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltanTamer/ATPCaseMovement/internal/domain/entity"
)

// texturePix paints dark blocks on a light background. Block corners are
// strong, repeatable interest points for the detector.
func texturePix(w, h int, seed int64) []uint8 {
	rng := rand.New(rand.NewSource(seed))
	pix := make([]uint8, w*h)
	for i := range pix {
		pix[i] = 200
	}
	blocks := w * h / 800
	for n := 0; n < blocks; n++ {
		bw := 5 + rng.Intn(10)
		bh := 5 + rng.Intn(10)
		x0 := rng.Intn(w - bw)
		y0 := rng.Intn(h - bh)
		shade := uint8(20 + rng.Intn(80))
		for y := y0; y < y0+bh; y++ {
			for x := x0; x < x0+bw; x++ {
				pix[y*w+x] = shade
			}
		}
	}
	return pix
}

func textureFrame(t *testing.T, index, w, h int, seed int64) *entity.Frame {
	t.Helper()
	f, err := entity.NewFrame(index, w, h, texturePix(w, h, seed))
	require.NoError(t, err)
	return f
}

// cropFrame cuts a w x h window at (ox, oy) out of a larger pixel field.
func cropFrame(t *testing.T, index int, field []uint8, fieldW int, ox, oy, w, h int) *entity.Frame {
	t.Helper()
	pix := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		copy(pix[y*w:(y+1)*w], field[(oy+y)*fieldW+ox:(oy+y)*fieldW+ox+w])
	}
	f, err := entity.NewFrame(index, w, h, pix)
	require.NoError(t, err)
	return f
}

func uniformFrame(t *testing.T, index, w, h int, value uint8) *entity.Frame {
	t.Helper()
	pix := make([]uint8, w*h)
	for i := range pix {
		pix[i] = value
	}
	f, err := entity.NewFrame(index, w, h, pix)
	require.NoError(t, err)
	return f
}

func TestExtractUniformFrameHasNoFeatures(t *testing.T) {
	e := NewExtractor(DefaultConfig())
	fs := e.Extract(uniformFrame(t, 0, 160, 120, 128))
	assert.Zero(t, fs.Len())
}

func TestExtractFindsFeaturesOnTexture(t *testing.T) {
	e := NewExtractor(DefaultConfig())
	frame := textureFrame(t, 0, 320, 240, 11)

	fs := e.Extract(frame)
	require.Greater(t, fs.Len(), 20)
	assert.Len(t, fs.Descriptors, fs.Len())

	for i, kp := range fs.Keypoints {
		assert.GreaterOrEqual(t, kp.X, 0.0, "keypoint %d", i)
		assert.GreaterOrEqual(t, kp.Y, 0.0, "keypoint %d", i)
		assert.Less(t, kp.X, float64(frame.Width), "keypoint %d", i)
		assert.Less(t, kp.Y, float64(frame.Height), "keypoint %d", i)
	}
}

func TestExtractOrderedByResponse(t *testing.T) {
	e := NewExtractor(DefaultConfig())
	fs := e.Extract(textureFrame(t, 0, 320, 240, 12))
	require.Greater(t, fs.Len(), 1)

	for i := 1; i < fs.Len(); i++ {
		assert.GreaterOrEqual(t, fs.Keypoints[i-1].Response, fs.Keypoints[i].Response)
	}
}

func TestExtractDeterministic(t *testing.T) {
	e := NewExtractor(DefaultConfig())
	frame := textureFrame(t, 0, 320, 240, 13)

	a := e.Extract(frame)
	b := e.Extract(frame)

	assert.Equal(t, a.Keypoints, b.Keypoints)
	assert.Equal(t, a.Descriptors, b.Descriptors)

	// A second extractor built from the same configuration agrees too.
	c := NewExtractor(DefaultConfig()).Extract(frame)
	assert.Equal(t, a.Descriptors, c.Descriptors)
}

func TestExtractRespectsMaxFeatures(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxFeatures = 25
	e := NewExtractor(cfg)

	fs := e.Extract(textureFrame(t, 0, 320, 240, 14))
	assert.LessOrEqual(t, fs.Len(), 25)
	assert.Equal(t, 25, fs.Len())
}

func TestExtractTinyFrameIsEmpty(t *testing.T) {
	e := NewExtractor(DefaultConfig())
	fs := e.Extract(textureFrame(t, 0, 20, 20, 15))
	assert.Zero(t, fs.Len())
}

func TestExtractShiftedFramesMatchWell(t *testing.T) {
	const fieldW, fieldH = 320, 260
	field := texturePix(fieldW, fieldH, 16)

	a := cropFrame(t, 0, field, fieldW, 40, 40, 200, 160)
	b := cropFrame(t, 1, field, fieldW, 46, 44, 200, 160)

	e := NewExtractor(DefaultConfig())
	fa := e.Extract(a)
	fb := e.Extract(b)
	require.Greater(t, fa.Len(), 20)
	require.Greater(t, fb.Len(), 20)

	matches := NewHammingMatcher(DefaultConfig()).Match(fa, fb)
	require.Greater(t, len(matches), 10)

	// The overwhelming majority of matched keypoints should be displaced
	// by roughly the crop offset (-6, -4).
	consistent := 0
	for _, m := range matches {
		dx := fb.Keypoints[m.DstIndex].X - fa.Keypoints[m.SrcIndex].X
		dy := fb.Keypoints[m.DstIndex].Y - fa.Keypoints[m.SrcIndex].Y
		if dx > -9 && dx < -3 && dy > -7 && dy < -1 {
			consistent++
		}
	}
	assert.Greater(t, float64(consistent)/float64(len(matches)), 0.5)
}
