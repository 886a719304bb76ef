package port

import (
	"context"
	"io"
)

// MediaStorage abstracts the object store holding uploaded media and
// produced analysis reports.
type MediaStorage interface {
	DownloadMedia(ctx context.Context, objectKey string, destPath string) error
	UploadReport(ctx context.Context, objectKey string, reader io.Reader, size int64) error
}
