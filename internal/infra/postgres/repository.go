package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AltanTamer/ATPCaseMovement/internal/domain/entity"
)

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) Create(ctx context.Context, job *entity.AnalysisJob) error {
	query := `
		INSERT INTO analysis_jobs (
			id, user_id, media_key, report_key, status, file_size,
			frame_count, pair_count, movement_pairs, undetermined_pairs,
			max_score, mean_score, media_duration,
			attempt, max_attempts, error_message,
			created_at, updated_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`

	_, err := r.pool.Exec(ctx, query,
		job.ID, job.UserID, job.MediaKey, job.ReportKey, string(job.Status), job.FileSize,
		job.Summary.FrameCount, job.Summary.PairCount, job.Summary.MovementPairs,
		job.Summary.Undetermined, job.Summary.MaxScore, job.Summary.MeanScore,
		job.Summary.MediaDuration,
		job.Attempt, job.MaxAttempts, job.ErrorMessage,
		job.CreatedAt, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepository) Update(ctx context.Context, job *entity.AnalysisJob) error {
	query := `
		UPDATE analysis_jobs SET
			status=$2, report_key=$3, frame_count=$4, pair_count=$5,
			movement_pairs=$6, undetermined_pairs=$7, max_score=$8,
			mean_score=$9, media_duration=$10, attempt=$11,
			error_message=$12, updated_at=$13, completed_at=$14
		WHERE id=$1`

	_, err := r.pool.Exec(ctx, query,
		job.ID, string(job.Status), job.ReportKey,
		job.Summary.FrameCount, job.Summary.PairCount, job.Summary.MovementPairs,
		job.Summary.Undetermined, job.Summary.MaxScore, job.Summary.MeanScore,
		job.Summary.MediaDuration, job.Attempt,
		job.ErrorMessage, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

func (r *JobRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.AnalysisJob, error) {
	query := `
		SELECT id, user_id, media_key, report_key, status, file_size,
			frame_count, pair_count, movement_pairs, undetermined_pairs,
			max_score, mean_score, media_duration,
			attempt, max_attempts, error_message,
			created_at, updated_at, completed_at
		FROM analysis_jobs WHERE id=$1`

	job := &entity.AnalysisJob{}
	var status string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.UserID, &job.MediaKey, &job.ReportKey, &status, &job.FileSize,
		&job.Summary.FrameCount, &job.Summary.PairCount, &job.Summary.MovementPairs,
		&job.Summary.Undetermined, &job.Summary.MaxScore, &job.Summary.MeanScore,
		&job.Summary.MediaDuration,
		&job.Attempt, &job.MaxAttempts, &job.ErrorMessage,
		&job.CreatedAt, &job.UpdatedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("find job by id: %w", err)
	}
	job.Status = entity.JobStatus(status)
	return job, nil
}

// ResultRepository stores the per-pair classification rows for a job.
type ResultRepository struct {
	pool *pgxpool.Pool
}

func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

func (r *ResultRepository) SaveResults(ctx context.Context, jobID uuid.UUID, results []entity.ClassificationResult) error {
	if len(results) == 0 {
		return nil
	}

	rows := make([][]interface{}, len(results))
	for i, res := range results {
		var score, translation, rotation, scaleDev interface{}
		if res.Score != nil {
			score = res.Score.Value
			translation = res.Score.Translation
			rotation = res.Score.Rotation
			scaleDev = res.Score.ScaleDeviation
		}
		rows[i] = []interface{}{
			jobID, res.PairIndex, score, translation, rotation, scaleDev,
			res.Significant, res.Confidence, res.Matches, res.Inliers, string(res.Reason),
		}
	}

	_, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"movement_results"},
		[]string{
			"job_id", "pair_index", "score", "translation", "rotation",
			"scale_deviation", "significant", "confidence", "matches",
			"inliers", "reason",
		},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("copy movement results: %w", err)
	}
	return nil
}
