package integration

import (
	"archive/zip"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/gif"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcrabbitmq "github.com/testcontainers/testcontainers-go/modules/rabbitmq"

	"github.com/AltanTamer/ATPCaseMovement/internal/domain/entity"
	"github.com/AltanTamer/ATPCaseMovement/internal/domain/port"
	"github.com/AltanTamer/ATPCaseMovement/internal/infra/email"
	"github.com/AltanTamer/ATPCaseMovement/internal/infra/ffmpeg"
	gifdecoder "github.com/AltanTamer/ATPCaseMovement/internal/infra/gif"
	miniostorage "github.com/AltanTamer/ATPCaseMovement/internal/infra/minio"
	"github.com/AltanTamer/ATPCaseMovement/internal/infra/postgres"
	"github.com/AltanTamer/ATPCaseMovement/internal/infra/rabbitmq"
	"github.com/AltanTamer/ATPCaseMovement/internal/infra/report"
	"github.com/AltanTamer/ATPCaseMovement/internal/motion"
	"github.com/AltanTamer/ATPCaseMovement/internal/usecase"
	"github.com/AltanTamer/ATPCaseMovement/pkg/logger"
)

// writePanningGIF renders a textured scene panning across the logical
// screen: every frame pair should classify as significant movement.
func writePanningGIF(t *testing.T, path string, frames int) {
	t.Helper()

	const fieldW, fieldH = 400, 320
	const w, h = 240, 200

	field := make([]uint8, fieldW*fieldH)
	for i := range field {
		field[i] = 200
	}
	rng := rand.New(rand.NewSource(77))
	for b := 0; b < 150; b++ {
		bw := 5 + rng.Intn(10)
		bh := 5 + rng.Intn(10)
		x0 := rng.Intn(fieldW - bw)
		y0 := rng.Intn(fieldH - bh)
		shade := uint8(20 + rng.Intn(80))
		for y := y0; y < y0+bh; y++ {
			for x := x0; x < x0+bw; x++ {
				field[y*fieldW+x] = shade
			}
		}
	}

	palette := make(color.Palette, 256)
	for i := range palette {
		palette[i] = color.Gray{Y: uint8(i)}
	}

	g := &gif.GIF{Config: image.Config{Width: w, Height: h}}
	for i := 0; i < frames; i++ {
		ox, oy := 20+i*12, 20+i*10
		img := image.NewPaletted(image.Rect(0, 0, w, h), palette)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				img.SetColorIndex(x, y, field[(oy+y)*fieldW+ox+x])
			}
		}
		g.Image = append(g.Image, img)
		g.Delay = append(g.Delay, 10)
		g.Disposal = append(g.Disposal, gif.DisposalNone)
	}

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, gif.EncodeAll(f, g))
}

func TestAnalyzeMediaEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// Start PostgreSQL container
	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("motion"),
		tcpostgres.WithUsername("motion_user"),
		tcpostgres.WithPassword("motion_pass"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	defer pgContainer.Terminate(ctx)

	pgConnStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Start RabbitMQ container
	rmqContainer, err := tcrabbitmq.Run(ctx,
		"rabbitmq:3.12-management-alpine",
	)
	require.NoError(t, err)
	defer rmqContainer.Terminate(ctx)

	rmqURL, err := rmqContainer.AmqpURL(ctx)
	require.NoError(t, err)

	// Start MinIO container
	minioContainer, err := tcminio.Run(ctx,
		"minio/minio:latest",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	defer minioContainer.Terminate(ctx)

	minioEndpoint, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err)

	// Run migrations
	err = postgres.RunMigrations(pgConnStr, "../../migrations")
	require.NoError(t, err)

	// Setup MinIO storage
	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:     minioEndpoint,
		AccessKey:    "minioadmin",
		SecretKey:    "minioadmin",
		UseSSL:       false,
		MediaBucket:  "media",
		ReportBucket: "reports",
	})
	require.NoError(t, err)
	require.NoError(t, storage.EnsureBuckets(ctx))

	// Generate and upload a panning clip
	gifPath := filepath.Join(t.TempDir(), "pan.gif")
	writePanningGIF(t, gifPath, 5)

	minioClient, err := miniogo.New(minioEndpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	require.NoError(t, err)

	mediaKey := "testuser/pan.gif"
	_, err = minioClient.FPutObject(ctx, "media", mediaKey, gifPath, miniogo.PutObjectOptions{
		ContentType: "image/gif",
	})
	require.NoError(t, err)

	// Setup RabbitMQ publisher connection
	rmqConn, err := amqp.Dial(rmqURL)
	require.NoError(t, err)
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, "atp.motion")
	require.NoError(t, err)

	statusPub := rabbitmq.NewStatusPublisher(pub)
	dlqPub := rabbitmq.NewDLQPublisher(pub, "motion.analysis.dlq")

	// Setup DB pool
	pool, err := pgxpool.New(ctx, pgConnStr)
	require.NoError(t, err)
	defer pool.Close()

	// Setup use case
	log, _ := logger.New("debug")
	jobRepo := postgres.NewJobRepository(pool)
	resultRepo := postgres.NewResultRepository(pool)
	notifier := email.NewSMTPNotifier("localhost", 1025, "test@test.local", log)

	detectorCfg := motion.DefaultConfig()
	detectorCfg.Seed = 42
	runner := motion.NewRunner(motion.NewPipeline(detectorCfg, motion.WithLogger(log)))

	uc := usecase.NewAnalyzeMediaUseCase(
		jobRepo, resultRepo, storage,
		[]port.FrameDecoder{ffmpeg.NewDecoder(0, log), gifdecoder.NewDecoder()},
		runner,
		report.NewZipBundler(),
		statusPub, dlqPub, notifier,
		log,
		usecase.AnalyzeMediaConfig{
			TempDir:    t.TempDir(),
			MaxRetries: 3,
		},
	)

	// Setup consumer
	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         rmqURL,
		Queue:       "motion.analysis",
		Exchange:    "atp.motion",
		DLQ:         "motion.analysis.dlq",
		StatusQueue: "motion.status",
		Prefetch:    1,
		WorkerCount: 1,
		BaseDelayMs: 100,
	}, uc.Execute, log)
	require.NoError(t, err)
	defer consumer.Close()

	consumerCtx, consumerCancel := context.WithCancel(ctx)
	defer consumerCancel()

	go func() {
		consumer.Start(consumerCtx)
	}()

	// Give consumer time to start
	time.Sleep(500 * time.Millisecond)

	// Publish analysis message
	jobID := uuid.New()
	gifInfo, _ := os.Stat(gifPath)
	analysisMsg := entity.MovementAnalysisMessage{
		JobID:     jobID,
		UserID:    "testuser",
		MediaKey:  mediaKey,
		FileSize:  gifInfo.Size(),
		UserEmail: "test@test.local",
	}
	msgBody, err := json.Marshal(analysisMsg)
	require.NoError(t, err)

	pubCh, err := rmqConn.Channel()
	require.NoError(t, err)
	err = pubCh.PublishWithContext(ctx,
		"atp.motion",
		"motion.analysis",
		false, false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        msgBody,
		},
	)
	require.NoError(t, err)
	pubCh.Close()

	// Wait for status message on motion.status queue
	statusCh, err := rmqConn.Channel()
	require.NoError(t, err)
	defer statusCh.Close()

	statusMsgs, err := statusCh.Consume("motion.status", "", true, false, false, false, nil)
	require.NoError(t, err)

	var statusMsg entity.MovementStatusMessage
	select {
	case delivery := <-statusMsgs:
		err = json.Unmarshal(delivery.Body, &statusMsg)
		require.NoError(t, err)
	case <-time.After(2 * time.Minute):
		t.Fatal("timeout waiting for status message")
	}

	// Assert status
	assert.Equal(t, jobID, statusMsg.JobID)
	assert.Equal(t, entity.JobStatusCompleted, statusMsg.Status)
	assert.Equal(t, 5, statusMsg.FrameCount)
	assert.Equal(t, 4, statusMsg.PairCount)
	assert.Equal(t, 4, statusMsg.MovementPairs, "every pair of a panning clip should be significant")
	assert.NotEmpty(t, statusMsg.ReportKey)

	// Verify report archive exists in MinIO and is well formed
	reportObj, err := minioClient.GetObject(ctx, "reports", statusMsg.ReportKey, miniogo.GetObjectOptions{})
	require.NoError(t, err)

	tmpZip := filepath.Join(t.TempDir(), "report.zip")
	tmpFile, err := os.Create(tmpZip)
	require.NoError(t, err)
	_, err = tmpFile.ReadFrom(reportObj)
	require.NoError(t, err)
	tmpFile.Close()

	zipReader, err := zip.OpenReader(tmpZip)
	require.NoError(t, err)
	defer zipReader.Close()

	names := map[string]bool{}
	for _, f := range zipReader.File {
		names[f.Name] = true
	}
	assert.True(t, names["report.json"], "archive should contain report.json")
	assert.True(t, names["pairs.csv"], "archive should contain pairs.csv")

	// Verify job record and per-pair rows in the database
	var dbStatus string
	var dbPairCount int
	err = pool.QueryRow(ctx,
		"SELECT status, pair_count FROM analysis_jobs WHERE id=$1", jobID,
	).Scan(&dbStatus, &dbPairCount)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", dbStatus)
	assert.Equal(t, 4, dbPairCount)

	var dbResults int
	err = pool.QueryRow(ctx,
		"SELECT count(*) FROM movement_results WHERE job_id=$1", jobID,
	).Scan(&dbResults)
	require.NoError(t, err)
	assert.Equal(t, 4, dbResults)

	consumerCancel()

	t.Logf("Test passed: %d/%d pairs significant, report at %s",
		statusMsg.MovementPairs, statusMsg.PairCount, statusMsg.ReportKey)
}

func TestAnalyzeMediaMalformedMessage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// Start PostgreSQL
	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("motion"),
		tcpostgres.WithUsername("motion_user"),
		tcpostgres.WithPassword("motion_pass"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	defer pgContainer.Terminate(ctx)

	pgConnStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Start RabbitMQ
	rmqContainer, err := tcrabbitmq.Run(ctx,
		"rabbitmq:3.12-management-alpine",
	)
	require.NoError(t, err)
	defer rmqContainer.Terminate(ctx)

	rmqURL, err := rmqContainer.AmqpURL(ctx)
	require.NoError(t, err)

	err = postgres.RunMigrations(pgConnStr, "../../migrations")
	require.NoError(t, err)

	// MinIO (no media upload needed for this test)
	minioContainer, err := tcminio.Run(ctx,
		"minio/minio:latest",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	defer minioContainer.Terminate(ctx)

	minioEndpoint, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err)

	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:     minioEndpoint,
		AccessKey:    "minioadmin",
		SecretKey:    "minioadmin",
		UseSSL:       false,
		MediaBucket:  "media",
		ReportBucket: "reports",
	})
	require.NoError(t, err)
	require.NoError(t, storage.EnsureBuckets(ctx))

	pool, err := pgxpool.New(ctx, pgConnStr)
	require.NoError(t, err)
	defer pool.Close()

	log, _ := logger.New("debug")
	rmqConn, err := amqp.Dial(rmqURL)
	require.NoError(t, err)
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, "atp.motion")
	require.NoError(t, err)

	statusPub := rabbitmq.NewStatusPublisher(pub)
	dlqPub := rabbitmq.NewDLQPublisher(pub, "motion.analysis.dlq")

	jobRepo := postgres.NewJobRepository(pool)
	resultRepo := postgres.NewResultRepository(pool)
	notifier := email.NewSMTPNotifier("localhost", 1025, "test@test.local", log)
	runner := motion.NewRunner(motion.NewPipeline(motion.DefaultConfig()))

	uc := usecase.NewAnalyzeMediaUseCase(
		jobRepo, resultRepo, storage,
		[]port.FrameDecoder{gifdecoder.NewDecoder()},
		runner,
		report.NewZipBundler(),
		statusPub, dlqPub, notifier,
		log,
		usecase.AnalyzeMediaConfig{
			TempDir:    t.TempDir(),
			MaxRetries: 3,
		},
	)

	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         rmqURL,
		Queue:       "motion.analysis",
		Exchange:    "atp.motion",
		DLQ:         "motion.analysis.dlq",
		StatusQueue: "motion.status",
		Prefetch:    1,
		WorkerCount: 1,
		BaseDelayMs: 100,
	}, uc.Execute, log)
	require.NoError(t, err)
	defer consumer.Close()

	consumerCtx, consumerCancel := context.WithCancel(ctx)
	defer consumerCancel()

	go func() {
		consumer.Start(consumerCtx)
	}()
	time.Sleep(500 * time.Millisecond)

	// Publish malformed message
	pubCh, err := rmqConn.Channel()
	require.NoError(t, err)
	err = pubCh.PublishWithContext(ctx,
		"atp.motion",
		"motion.analysis",
		false, false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        []byte(`{invalid json`),
		},
	)
	require.NoError(t, err)
	pubCh.Close()

	// Wait and verify message landed in DLQ
	time.Sleep(2 * time.Second)

	dlqCh, err := rmqConn.Channel()
	require.NoError(t, err)
	defer dlqCh.Close()

	dlqMsg, ok, err := dlqCh.Get("motion.analysis.dlq", true)
	require.NoError(t, err)
	assert.True(t, ok, "malformed message should be in DLQ")
	assert.Equal(t, `{invalid json`, string(dlqMsg.Body))

	consumerCancel()
	t.Log("Test passed: malformed message sent to DLQ")
}
