package ffmpeg

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/AltanTamer/ATPCaseMovement/internal/domain/entity"
)

var videoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".avi":  true,
	".mkv":  true,
	".webm": true,
}

// Decoder streams a video file as grayscale frames through an ffmpeg
// rawvideo pipe, probing dimensions and duration with ffprobe first. It
// never materializes the whole sequence: one frame buffer is read at a
// time and handed to the caller.
type Decoder struct {
	fps    int // 0 keeps the container's native frame rate
	logger *zap.Logger
}

func NewDecoder(fps int, logger *zap.Logger) *Decoder {
	return &Decoder{fps: fps, logger: logger}
}

func (d *Decoder) Supports(mediaPath string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(mediaPath))]
}

func (d *Decoder) DecodeFrames(ctx context.Context, mediaPath string, yield func(*entity.Frame) bool) (float64, error) {
	width, height, err := d.probeDimensions(ctx, mediaPath)
	if err != nil {
		return 0, err
	}

	duration, err := d.probeDuration(ctx, mediaPath)
	if err != nil {
		d.logger.Warn("could not probe media duration", zap.Error(err))
	}

	args := []string{"-i", mediaPath}
	if d.fps > 0 {
		args = append(args, "-vf", fmt.Sprintf("fps=%d", d.fps))
	}
	args = append(args, "-f", "rawvideo", "-pix_fmt", "gray", "-")

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return duration, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return duration, fmt.Errorf("start ffmpeg: %w", err)
	}

	frameSize := width * height
	index := 0
	stopped := false
	for {
		buf := make([]uint8, frameSize)
		if _, err := io.ReadFull(stdout, buf); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
			return duration, fmt.Errorf("read frame %d: %w", index, err)
		}

		frame, err := entity.NewFrame(index, width, height, buf)
		if err != nil {
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
			return duration, err
		}
		index++

		if !yield(frame) {
			stopped = true
			break
		}
	}

	if stopped {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return duration, nil
	}
	if err := cmd.Wait(); err != nil {
		return duration, fmt.Errorf("ffmpeg: %w", err)
	}

	d.logger.Info("media decoded",
		zap.Int("frames", index),
		zap.Int("width", width),
		zap.Int("height", height),
		zap.Float64("duration", duration),
	)
	return duration, nil
}

func (d *Decoder) probeDimensions(ctx context.Context, mediaPath string) (int, int, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "csv=s=x:p=0",
		mediaPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, 0, fmt.Errorf("ffprobe dimensions: %w", err)
	}

	parts := strings.Split(strings.TrimSpace(string(output)), "x")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("unexpected ffprobe dimensions output %q", string(output))
	}
	width, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("parse width: %w", err)
	}
	height, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("parse height: %w", err)
	}
	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("media has invalid dimensions %dx%d", width, height)
	}
	return width, height, nil
}

func (d *Decoder) probeDuration(ctx context.Context, mediaPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		mediaPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}

	durationStr := strings.TrimSpace(string(output))
	duration, err := strconv.ParseFloat(durationStr, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}
	return duration, nil
}
