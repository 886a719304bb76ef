package port

import (
	"context"

	"github.com/AltanTamer/ATPCaseMovement/internal/domain/entity"
	"github.com/google/uuid"
)

type JobRepository interface {
	Create(ctx context.Context, job *entity.AnalysisJob) error
	Update(ctx context.Context, job *entity.AnalysisJob) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.AnalysisJob, error)
}

// ResultRepository persists the per-pair classification results of a job.
type ResultRepository interface {
	SaveResults(ctx context.Context, jobID uuid.UUID, results []entity.ClassificationResult) error
}
