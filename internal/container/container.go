package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/prometheus/client_golang/prometheus"

	"plate-ingest/config"
	app "plate-ingest/internal/application"
	"plate-ingest/internal/domain/port"
	"plate-ingest/internal/infrastructure/imagecodec"
	"plate-ingest/internal/infrastructure/logging"
	"plate-ingest/internal/infrastructure/metrics"
	"plate-ingest/internal/infrastructure/storage"
	"plate-ingest/internal/infrastructure/vision"
)

// Deps долгоживущие адаптеры, которые разделяют все запросы.
type Deps struct {
	Codec     port.ImageCodec
	Detector  port.RegionDetector
	Extractor port.TextExtractor
	Plates    port.PlateRepository
	Blobs     port.BlobStore
	Retry     port.BlobRetryQueue
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Container собранные сервисы приложения и ресурсы, которые нужно закрыть.
type Container struct {
	Plates   port.PlateRepository
	Gate     *app.DeduplicationGate
	Gateway  *app.PersistenceGateway
	Pipeline *app.IngestionPipeline
	Metrics  *metrics.Metrics
	Logger   *slog.Logger

	closers []func() error
}

// New связывает сервисы приложения поверх готовых адаптеров.
func New(deps Deps, cfg *config.Config) *Container {
	log := logging.OrDiscard(deps.Logger)

	gate := app.NewDeduplicationGate(deps.Plates, app.GateOptions{
		StoreTimeout: cfg.StoreTimeout,
		KnownTTL:     cfg.KnownPlateTTL,
		// без фоновой очистки: просроченные записи отбрасываются при чтении,
		// а у janitor нет остановки из Close
		KnownCleanup: 0,
		Metrics:      deps.Metrics,
		Logger:       log,
	})
	gateway := app.NewPersistenceGateway(gate, deps.Blobs, deps.Retry, deps.Codec, app.PersistenceOptions{
		BlobPrefix:  cfg.BlobPrefix,
		BlobFormat:  cfg.BlobFormat,
		BlobTimeout: cfg.BlobTimeout,
		Metrics:     deps.Metrics,
		Logger:      log,
	})
	pipeline := app.NewIngestionPipeline(deps.Codec, deps.Detector, deps.Extractor, gateway, app.PipelineOptions{
		MinRegionConfidence: cfg.MinRegionConfidence,
		RegionWorkers:       cfg.RegionWorkers,
		DetectTimeout:       cfg.DetectTimeout,
		ExtractTimeout:      cfg.ExtractTimeout,
		BlobSource:          cfg.BlobSource,
		DefaultSource:       cfg.DefaultSource,
		Metrics:             deps.Metrics,
		Logger:              log,
	})

	return &Container{
		Plates:   deps.Plates,
		Gate:     gate,
		Gateway:  gateway,
		Pipeline: pipeline,
		Metrics:  deps.Metrics,
		Logger:   log,
	}
}

// Build открывает хранилища и адаптеры по конфигурации и собирает контейнер.
// При ошибке уже открытые ресурсы закрываются.
func Build(ctx context.Context, cfg *config.Config, log *slog.Logger) (c *Container, err error) {
	log = logging.OrDiscard(log)
	var closers []func() error
	defer func() {
		if err != nil {
			closeAll(closers)
		}
	}()

	m, err := metrics.New(prometheus.NewRegistry())
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	codec := imagecodec.New()
	codec.MaxPixels = cfg.MaxImagePixels
	deps := Deps{Codec: codec, Metrics: m, Logger: log}

	plates, err := storage.OpenGormPlateRepository(cfg.StoreDriver, cfg.StoreDSN)
	if err != nil {
		return nil, err
	}
	closers = append(closers, plates.Close)
	deps.Plates = plates

	var aws *awsClients
	if cfg.NeedsAWS() {
		if aws, err = loadAWS(ctx, cfg.AWSRegion); err != nil {
			return nil, err
		}
	}

	var sidecar *vision.SidecarClient
	if cfg.DetectorBackend == "sidecar" || cfg.ExtractorBackend == "sidecar" {
		sidecar = vision.NewSidecarClient(cfg.SidecarURL, codec, nil)
	}

	switch cfg.DetectorBackend {
	case "yolo":
		det, err := vision.NewYOLODetector(vision.YOLOOptions{
			ModelPath:      cfg.ModelPath,
			InputSize:      cfg.DetectorInputSize,
			ScoreThreshold: float32(cfg.DetectorScoreThreshold),
			NMSThreshold:   float32(cfg.DetectorNMSThreshold),
		})
		if err != nil {
			return nil, fmt.Errorf("yolo detector: %w", err)
		}
		closers = append(closers, det.Close)
		deps.Detector = det
	default:
		deps.Detector = sidecar
	}

	switch cfg.ExtractorBackend {
	case "rekognition":
		deps.Extractor = vision.NewRekognitionExtractor(aws.rekognition, codec)
	default:
		deps.Extractor = sidecar
	}

	switch cfg.BlobDriver {
	case "memory":
		deps.Blobs = storage.NewMemoryBlobStore()
	case "s3":
		deps.Blobs = storage.NewS3BlobStore(aws.s3, cfg.BlobBucket)
	default:
		if deps.Blobs, err = storage.NewFSBlobStore(cfg.BlobDir); err != nil {
			return nil, err
		}
	}

	if cfg.BlobRetryQueueURL != "" {
		deps.Retry = storage.NewSQSRetryQueue(aws.sqs, cfg.BlobRetryQueueURL)
	} else {
		deps.Retry = storage.NewLogRetryQueue(log)
	}

	c = New(deps, cfg)
	c.closers = closers
	log.Info("container ready",
		"store", cfg.StoreDriver,
		"blobs", cfg.BlobDriver,
		"detector", cfg.DetectorBackend,
		"extractor", cfg.ExtractorBackend)
	return c, nil
}

// Close освобождает ресурсы в порядке, обратном открытию.
func (c *Container) Close() error {
	return closeAll(c.closers)
}

func closeAll(closers []func() error) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type awsClients struct {
	s3          *s3.Client
	rekognition *rekognition.Client
	sqs         *sqs.Client
}

func loadAWS(ctx context.Context, region string) (*awsClients, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &awsClients{
		s3:          s3.NewFromConfig(awsCfg),
		rekognition: rekognition.NewFromConfig(awsCfg),
		sqs:         sqs.NewFromConfig(awsCfg),
	}, nil
}
