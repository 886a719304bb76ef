package port

import (
	"context"

	"github.com/AltanTamer/ATPCaseMovement/internal/domain/entity"
)

// FrameDecoder turns a media file into an ordered stream of grayscale
// frames. Decoders call yield for every frame in sequence order and stop
// when yield returns false or the context is cancelled. Duration is in
// seconds and may be zero when the container does not carry it.
type FrameDecoder interface {
	Supports(mediaPath string) bool
	DecodeFrames(ctx context.Context, mediaPath string, yield func(*entity.Frame) bool) (duration float64, err error)
}
