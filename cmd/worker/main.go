package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/AltanTamer/ATPCaseMovement/internal/domain/entity"
	"github.com/AltanTamer/ATPCaseMovement/internal/domain/port"
	"github.com/AltanTamer/ATPCaseMovement/internal/infra/config"
	"github.com/AltanTamer/ATPCaseMovement/internal/infra/email"
	"github.com/AltanTamer/ATPCaseMovement/internal/infra/ffmpeg"
	"github.com/AltanTamer/ATPCaseMovement/internal/infra/gif"
	"github.com/AltanTamer/ATPCaseMovement/internal/infra/metrics"
	miniostore "github.com/AltanTamer/ATPCaseMovement/internal/infra/minio"
	"github.com/AltanTamer/ATPCaseMovement/internal/infra/postgres"
	"github.com/AltanTamer/ATPCaseMovement/internal/infra/rabbitmq"
	"github.com/AltanTamer/ATPCaseMovement/internal/infra/report"
	"github.com/AltanTamer/ATPCaseMovement/internal/infra/tracing"
	"github.com/AltanTamer/ATPCaseMovement/internal/motion"
	"github.com/AltanTamer/ATPCaseMovement/internal/usecase"
	"github.com/AltanTamer/ATPCaseMovement/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	log.Info("starting atp-motion-service worker")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tp, err := tracing.InitTracer(ctx, cfg.JaegerEndpoint)
	if err != nil {
		log.Warn("tracing disabled", zap.Error(err))
	} else {
		defer tp.Shutdown(context.Background())
	}

	if err := postgres.RunMigrations(cfg.DatabaseURL, "migrations"); err != nil {
		fatalOnErr(log, "run migrations", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	fatalOnErr(log, "connect to postgres", err)
	defer pool.Close()

	jobRepo := postgres.NewJobRepository(pool)
	resultRepo := postgres.NewResultRepository(pool)

	storage, err := miniostore.NewStorage(miniostore.StorageConfig{
		Endpoint:     cfg.MinIOEndpoint,
		AccessKey:    cfg.MinIOAccessKey,
		SecretKey:    cfg.MinIOSecretKey,
		UseSSL:       cfg.MinIOUseSSL,
		MediaBucket:  cfg.MinIOMediaBucket,
		ReportBucket: cfg.MinIOReportBucket,
	})
	fatalOnErr(log, "connect to minio", err)
	fatalOnErr(log, "ensure buckets", storage.EnsureBuckets(ctx))

	amqpConn, err := amqp.Dial(cfg.RabbitMQURL)
	fatalOnErr(log, "connect to rabbitmq", err)
	defer amqpConn.Close()

	publisher, err := rabbitmq.NewPublisher(amqpConn, cfg.RabbitMQExchange)
	fatalOnErr(log, "create publisher", err)
	statusPublisher := rabbitmq.NewStatusPublisher(publisher)
	dlqPublisher := rabbitmq.NewDLQPublisher(publisher, cfg.RabbitMQDLQ)

	pipeline := motion.NewPipeline(motion.Config{
		MaxFeatures:           cfg.MaxFeatures,
		PyramidLevels:         cfg.PyramidLevels,
		ScaleFactor:           cfg.ScaleFactor,
		FASTThreshold:         cfg.FASTThreshold,
		RatioTestEnabled:      cfg.RatioTestEnabled,
		RatioTestThreshold:    cfg.RatioTestThreshold,
		MinMatches:            cfg.MinMatches,
		RANSACReprojThreshold: cfg.RANSACReprojThreshold,
		RANSACMaxIterations:   cfg.RANSACMaxIterations,
		RANSACConfidence:      cfg.RANSACConfidence,
		MinInlierRatio:        cfg.MinInlierRatio,
		Weights: entity.ScoreWeights{
			Translation: cfg.WeightTranslation,
			Rotation:    cfg.WeightRotation,
			Scale:       cfg.WeightScale,
		},
		MovementThreshold: cfg.MovementThreshold,
		Workers:           cfg.PairWorkers,
	}, motion.WithLogger(log.Named("motion")))
	runner := motion.NewRunner(pipeline)

	decoders := []port.FrameDecoder{
		ffmpeg.NewDecoder(cfg.FFmpegFPS, log.Named("ffmpeg")),
		gif.NewDecoder(),
	}

	notifier := email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log.Named("email"))

	uc := usecase.NewAnalyzeMediaUseCase(
		jobRepo,
		resultRepo,
		storage,
		decoders,
		runner,
		report.NewZipBundler(),
		statusPublisher,
		dlqPublisher,
		notifier,
		log.Named("usecase"),
		usecase.AnalyzeMediaConfig{
			TempDir:    cfg.TempDir,
			MaxRetries: cfg.MaxRetries,
		},
	)

	metricsServer := metrics.StartMetricsServer(ctx, cfg.MetricsPort, log.Named("metrics"))
	defer metricsServer.Shutdown(context.Background())

	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitMQURL,
		Queue:       cfg.RabbitMQAnalysisQueue,
		Exchange:    cfg.RabbitMQExchange,
		DLQ:         cfg.RabbitMQDLQ,
		StatusQueue: cfg.RabbitMQStatusQueue,
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: cfg.WorkerCount,
		BaseDelayMs: cfg.RetryBaseDelayMs,
	}, uc.Execute, log.Named("consumer"))
	fatalOnErr(log, "create consumer", err)
	defer consumer.Close()

	log.Info("worker ready",
		zap.String("queue", cfg.RabbitMQAnalysisQueue),
		zap.Int("workers", cfg.WorkerCount),
		zap.Int("metrics_port", cfg.MetricsPort),
	)

	if err := consumer.Start(ctx); err != nil {
		fatalOnErr(log, "consumer stopped", err)
	}

	log.Info("worker shut down cleanly")
}

func fatalOnErr(log *zap.Logger, msg string, err error) {
	if err != nil {
		log.Fatal(msg, zap.Error(err))
	}
}
