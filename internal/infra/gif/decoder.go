package gif

import (
	"context"
	"fmt"
	"image"
	"image/gif"
	"os"
	"path/filepath"
	"strings"

	xdraw "golang.org/x/image/draw"

	"github.com/AltanTamer/ATPCaseMovement/internal/domain/entity"
)

// Decoder turns an animated GIF into grayscale frames. GIF frames can be
// partial updates of the logical screen, so each frame is composited onto
// a persistent canvas honoring the disposal method before conversion.
type Decoder struct{}

func NewDecoder() *Decoder {
	return &Decoder{}
}

func (d *Decoder) Supports(mediaPath string) bool {
	return strings.ToLower(filepath.Ext(mediaPath)) == ".gif"
}

func (d *Decoder) DecodeFrames(ctx context.Context, mediaPath string, yield func(*entity.Frame) bool) (float64, error) {
	f, err := os.Open(mediaPath)
	if err != nil {
		return 0, fmt.Errorf("open gif: %w", err)
	}
	defer f.Close()

	g, err := gif.DecodeAll(f)
	if err != nil {
		return 0, fmt.Errorf("decode gif: %w", err)
	}
	if len(g.Image) == 0 {
		return 0, fmt.Errorf("gif contains no frames")
	}

	width, height := logicalSize(g)
	bounds := image.Rect(0, 0, width, height)
	canvas := image.NewRGBA(bounds)

	duration := 0.0
	for _, delay := range g.Delay {
		duration += float64(delay) / 100 // delays are in 1/100s
	}

	for i, paletted := range g.Image {
		select {
		case <-ctx.Done():
			return duration, ctx.Err()
		default:
		}

		var snapshot *image.RGBA
		if i < len(g.Disposal) && g.Disposal[i] == gif.DisposalPrevious {
			snapshot = image.NewRGBA(bounds)
			copy(snapshot.Pix, canvas.Pix)
		}

		xdraw.Draw(canvas, paletted.Bounds(), paletted, paletted.Bounds().Min, xdraw.Over)

		frame, err := entity.NewFrame(i, width, height, grayscale(canvas))
		if err != nil {
			return duration, err
		}
		if !yield(frame) {
			return duration, nil
		}

		if i < len(g.Disposal) {
			switch g.Disposal[i] {
			case gif.DisposalBackground:
				clear := image.Rect(0, 0, 0, 0).Union(paletted.Bounds())
				xdraw.Draw(canvas, clear, image.Transparent, image.Point{}, xdraw.Src)
			case gif.DisposalPrevious:
				copy(canvas.Pix, snapshot.Pix)
			}
		}
	}

	return duration, nil
}

func logicalSize(g *gif.GIF) (int, int) {
	if g.Config.Width > 0 && g.Config.Height > 0 {
		return g.Config.Width, g.Config.Height
	}
	b := g.Image[0].Bounds()
	return b.Dx(), b.Dy()
}

// grayscale converts the canvas to a fresh luma buffer (BT.601 weights).
func grayscale(img *image.RGBA) []uint8 {
	b := img.Bounds()
	out := make([]uint8, b.Dx()*b.Dy())
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[(y-b.Min.Y)*img.Stride : (y-b.Min.Y)*img.Stride+b.Dx()*4]
		for x := 0; x < b.Dx(); x++ {
			r := int(row[x*4])
			g := int(row[x*4+1])
			bl := int(row[x*4+2])
			out[i] = uint8((299*r + 587*g + 114*bl) / 1000)
			i++
		}
	}
	return out
}
