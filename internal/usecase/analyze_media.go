package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/AltanTamer/ATPCaseMovement/internal/domain/entity"
	"github.com/AltanTamer/ATPCaseMovement/internal/domain/port"
	"github.com/AltanTamer/ATPCaseMovement/internal/infra/metrics"
	"github.com/AltanTamer/ATPCaseMovement/internal/motion"
)

// AnalyzeMediaUseCase consumes analysis jobs: it downloads the media
// object, streams its frames through the movement detection pipeline,
// persists the per-pair results, and uploads a report archive.
type AnalyzeMediaUseCase struct {
	repo      port.JobRepository
	results   port.ResultRepository
	storage   port.MediaStorage
	decoders  []port.FrameDecoder
	runner    *motion.Runner
	bundler   port.ReportBundler
	publisher port.StatusPublisher
	dlq       port.DLQPublisher
	notifier  port.FailureNotifier
	logger    *zap.Logger
	tempDir   string
	maxRetry  int
}

type AnalyzeMediaConfig struct {
	TempDir    string
	MaxRetries int
}

func NewAnalyzeMediaUseCase(
	repo port.JobRepository,
	results port.ResultRepository,
	storage port.MediaStorage,
	decoders []port.FrameDecoder,
	runner *motion.Runner,
	bundler port.ReportBundler,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg AnalyzeMediaConfig,
) *AnalyzeMediaUseCase {
	return &AnalyzeMediaUseCase{
		repo:      repo,
		results:   results,
		storage:   storage,
		decoders:  decoders,
		runner:    runner,
		bundler:   bundler,
		publisher: publisher,
		dlq:       dlq,
		notifier:  notifier,
		logger:    logger,
		tempDir:   cfg.TempDir,
		maxRetry:  cfg.MaxRetries,
	}
}

func (uc *AnalyzeMediaUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "AnalyzeMediaUseCase.Execute")
	defer span.End()

	totalTimer := time.Now()

	var msg entity.MovementAnalysisMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}

	span.SetAttributes(
		attribute.String("job.id", msg.JobID.String()),
		attribute.String("job.media_key", msg.MediaKey),
	)

	log := uc.logger.With(zap.String("job_id", msg.JobID.String()), zap.String("media_key", msg.MediaKey))

	job, err := uc.repo.FindByID(ctx, msg.JobID)
	if err != nil {
		job = entity.NewAnalysisJob(msg.UserID, msg.MediaKey, msg.FileSize, uc.maxRetry)
		job.ID = msg.JobID
		if err := uc.repo.Create(ctx, job); err != nil {
			log.Error("failed to create job record", zap.Error(err))
			return fmt.Errorf("create job: %w", err)
		}
	}

	if !job.CanRetry() {
		log.Warn("job exhausted retries, sending to DLQ")
		_ = uc.handlePermanentFailure(ctx, job, msg, rawMsg, "max retries exceeded")
		return nil
	}

	job.MarkProcessing()
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to PROCESSING", zap.Error(err))
		return fmt.Errorf("update job: %w", err)
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	if err := uc.analysisPipeline(ctx, job, msg, rawMsg, log); err != nil {
		return err
	}

	metrics.JobStageDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())

	return nil
}

func (uc *AnalyzeMediaUseCase) analysisPipeline(
	ctx context.Context,
	job *entity.AnalysisJob,
	msg entity.MovementAnalysisMessage,
	rawMsg []byte,
	log *zap.Logger,
) error {
	tracer := otel.Tracer("usecase")

	decoder := uc.decoderFor(msg.MediaKey)
	if decoder == nil {
		log.Warn("unsupported media type", zap.String("media_key", msg.MediaKey))
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, "unsupported media type: "+msg.MediaKey)
	}

	workDir := filepath.Join(uc.tempDir, job.ID.String())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	// Download media object
	dlStart := time.Now()
	ctx2, spanDl := tracer.Start(ctx, "download_media")
	mediaPath := filepath.Join(workDir, "input"+filepath.Ext(msg.MediaKey))
	if err := uc.storage.DownloadMedia(ctx2, msg.MediaKey, mediaPath); err != nil {
		spanDl.End()
		log.Error("failed to download media", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "download_media: "+err.Error(), log)
	}
	spanDl.End()
	metrics.JobStageDuration.WithLabelValues("download").Observe(time.Since(dlStart).Seconds())

	// Decode frames and classify pairs in one streaming pass
	anStart := time.Now()
	ctx3, spanAn := tracer.Start(ctx, "analyze_frames")
	results, frameCount, duration, err := uc.runAnalysis(ctx3, decoder, mediaPath)
	spanAn.End()
	if err != nil {
		log.Error("movement analysis failed", zap.Error(err))
		if errors.Is(err, motion.ErrShortSequence) {
			// Deterministic contract violation; retrying cannot help.
			return uc.handlePermanentFailure(ctx, job, msg, rawMsg, "analyze_frames: "+err.Error())
		}
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "analyze_frames: "+err.Error(), log)
	}
	metrics.JobStageDuration.WithLabelValues("analyze").Observe(time.Since(anStart).Seconds())
	metrics.FramesDecodedTotal.Add(float64(frameCount))
	observeResults(results)

	summary := summarize(results, frameCount, duration)

	// Persist per-pair results
	ctx4, spanDb := tracer.Start(ctx, "persist_results")
	err = uc.results.SaveResults(ctx4, job.ID, results)
	spanDb.End()
	if err != nil {
		log.Error("failed to persist results", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "persist_results: "+err.Error(), log)
	}

	// Bundle and upload the report archive
	upStart := time.Now()
	ctx5, spanUp := tracer.Start(ctx, "upload_report")
	reportPath := filepath.Join(workDir, "report.zip")
	job.Summary = summary
	if err := uc.bundler.Bundle(ctx5, job, results, reportPath); err != nil {
		spanUp.End()
		log.Error("report bundling failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "bundle_report: "+err.Error(), log)
	}
	reportKey := fmt.Sprintf("%s/movement_%s.zip", msg.UserID, job.ID.String())
	reportFile, err := os.Open(reportPath)
	if err != nil {
		spanUp.End()
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "open_report: "+err.Error(), log)
	}
	reportStat, _ := reportFile.Stat()
	if err := uc.storage.UploadReport(ctx5, reportKey, reportFile, reportStat.Size()); err != nil {
		reportFile.Close()
		spanUp.End()
		log.Error("report upload failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "upload_report: "+err.Error(), log)
	}
	reportFile.Close()
	spanUp.End()
	metrics.JobStageDuration.WithLabelValues("upload").Observe(time.Since(upStart).Seconds())

	job.MarkCompleted(reportKey, summary)
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to COMPLETED", zap.Error(err))
		return fmt.Errorf("update job completed: %w", err)
	}

	uc.publishStatus(ctx, job, log)
	metrics.JobsProcessedTotal.WithLabelValues("completed").Inc()

	log.Info("job completed successfully",
		zap.Int("frame_count", summary.FrameCount),
		zap.Int("pair_count", summary.PairCount),
		zap.Int("movement_pairs", summary.MovementPairs),
		zap.Int("undetermined_pairs", summary.Undetermined),
		zap.Float64("max_score", summary.MaxScore),
		zap.String("report_key", reportKey),
	)

	return nil
}

// runAnalysis bridges the decoder's push-style frame stream into the
// runner, which keeps a single frame of lookback.
func (uc *AnalyzeMediaUseCase) runAnalysis(ctx context.Context, decoder port.FrameDecoder, mediaPath string) ([]entity.ClassificationResult, int, float64, error) {
	// Cancelling unblocks the decoder if the runner stops consuming early.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames := make(chan *entity.Frame, 2)

	var (
		duration   float64
		decodeErr  error
		frameCount int
	)
	decodeDone := make(chan struct{})
	go func() {
		defer close(decodeDone)
		defer close(frames)
		duration, decodeErr = decoder.DecodeFrames(ctx, mediaPath, func(f *entity.Frame) bool {
			select {
			case frames <- f:
				frameCount++
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()

	results, runErr := uc.runner.RunAll(ctx, frames)
	cancel()
	<-decodeDone

	// A real decode failure explains any secondary runner error (a stream
	// truncated mid-decode also looks short).
	if decodeErr != nil && !errors.Is(decodeErr, context.Canceled) {
		return nil, frameCount, duration, fmt.Errorf("decode: %w", decodeErr)
	}
	if runErr != nil {
		return nil, frameCount, duration, runErr
	}
	return results, frameCount, duration, nil
}

func (uc *AnalyzeMediaUseCase) decoderFor(mediaKey string) port.FrameDecoder {
	for _, d := range uc.decoders {
		if d.Supports(mediaKey) {
			return d
		}
	}
	return nil
}

func summarize(results []entity.ClassificationResult, frameCount int, duration float64) entity.AnalysisSummary {
	s := entity.AnalysisSummary{
		FrameCount:    frameCount,
		PairCount:     len(results),
		MediaDuration: duration,
	}
	scoreSum := 0.0
	scored := 0
	for _, r := range results {
		if r.Undetermined() {
			s.Undetermined++
			continue
		}
		if r.IsSignificant() {
			s.MovementPairs++
		}
		scoreSum += r.Score.Value
		scored++
		if r.Score.Value > s.MaxScore {
			s.MaxScore = r.Score.Value
		}
	}
	if scored > 0 {
		s.MeanScore = scoreSum / float64(scored)
	}
	return s
}

func observeResults(results []entity.ClassificationResult) {
	for _, r := range results {
		switch {
		case r.Undetermined():
			metrics.PairsClassifiedTotal.WithLabelValues("undetermined").Inc()
			metrics.FitFailuresTotal.WithLabelValues(string(r.Reason)).Inc()
		case r.IsSignificant():
			metrics.PairsClassifiedTotal.WithLabelValues("significant").Inc()
		default:
			metrics.PairsClassifiedTotal.WithLabelValues("static").Inc()
		}
	}
}

func (uc *AnalyzeMediaUseCase) handleRetryableFailure(
	ctx context.Context,
	job *entity.AnalysisJob,
	msg entity.MovementAnalysisMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	if !job.CanRetry() {
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, errMsg)
	}

	metrics.RetryTotal.WithLabelValues(strconv.Itoa(job.Attempt)).Inc()
	uc.publishStatus(ctx, job, log)

	return fmt.Errorf("retryable failure (attempt %d/%d): %s", job.Attempt, job.MaxAttempts, errMsg)
}

func (uc *AnalyzeMediaUseCase) handlePermanentFailure(
	ctx context.Context,
	job *entity.AnalysisJob,
	msg entity.MovementAnalysisMessage,
	rawMsg []byte,
	errMsg string,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	_ = uc.dlq.PublishToDLQ(ctx, rawMsg, errMsg)

	uc.publishStatus(ctx, job, uc.logger)

	metrics.JobsProcessedTotal.WithLabelValues("dlq").Inc()

	if msg.UserEmail != "" {
		_ = uc.notifier.NotifyFailure(ctx, msg.UserEmail, job.ID.String(), msg.MediaKey, errMsg)
	}

	return nil
}

func (uc *AnalyzeMediaUseCase) publishStatus(ctx context.Context, job *entity.AnalysisJob, log *zap.Logger) {
	statusMsg := entity.MovementStatusMessage{
		JobID:         job.ID,
		UserID:        job.UserID,
		Status:        job.Status,
		MediaKey:      job.MediaKey,
		ReportKey:     job.ReportKey,
		FrameCount:    job.Summary.FrameCount,
		PairCount:     job.Summary.PairCount,
		MovementPairs: job.Summary.MovementPairs,
		Undetermined:  job.Summary.Undetermined,
		MaxScore:      job.Summary.MaxScore,
		MeanScore:     job.Summary.MeanScore,
		Duration:      job.Summary.MediaDuration,
		ErrorMessage:  job.ErrorMessage,
		Attempt:       job.Attempt,
		MaxAttempts:   job.MaxAttempts,
	}
	data, _ := json.Marshal(statusMsg)
	if err := uc.publisher.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}
