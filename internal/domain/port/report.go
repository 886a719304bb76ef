package port

import (
	"context"

	"github.com/AltanTamer/ATPCaseMovement/internal/domain/entity"
)

// ReportBundler writes the analysis report archive for a completed job.
type ReportBundler interface {
	Bundle(ctx context.Context, job *entity.AnalysisJob, results []entity.ClassificationResult, outputPath string) error
}
