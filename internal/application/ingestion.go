package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"plate-ingest/internal/domain/entity"
	"plate-ingest/internal/domain/port"
	"plate-ingest/internal/infrastructure/logging"
	"plate-ingest/internal/infrastructure/metrics"
)

// Источник снимка, который сохраняется в объектное хранилище.
const (
	BlobSourceCrop = "crop"
	BlobSourceFull = "full"
)

// PipelineOptions параметры IngestionPipeline
type PipelineOptions struct {
	MinRegionConfidence float64       // области ниже порога пропускаются; 0 отключает порог
	RegionWorkers       int           // сколько областей обрабатывать одновременно
	DetectTimeout       time.Duration // лимит на вызов детектора
	ExtractTimeout      time.Duration // лимит на распознавание одной области
	BlobSource          string        // crop или full
	DefaultSource       string        // значение Source, если вызывающий его не передал
	Metrics             *metrics.Metrics
	Logger              *slog.Logger
}

// IngestionPipeline проводит снимок через детектор, распознавание текста,
// дедупликацию и сохранение.
type IngestionPipeline struct {
	codec     port.ImageCodec
	detector  port.RegionDetector
	extractor port.TextExtractor
	gateway   *PersistenceGateway
	opts      PipelineOptions
	metrics   *metrics.Metrics
	log       *slog.Logger
}

// NewIngestionPipeline создаёт конвейер. Все зависимости долгоживущие и
// разделяются между запросами.
func NewIngestionPipeline(codec port.ImageCodec, detector port.RegionDetector, extractor port.TextExtractor, gateway *PersistenceGateway, opts PipelineOptions) *IngestionPipeline {
	if opts.RegionWorkers <= 0 {
		opts.RegionWorkers = 4
	}
	if opts.DetectTimeout <= 0 {
		opts.DetectTimeout = 30 * time.Second
	}
	if opts.ExtractTimeout <= 0 {
		opts.ExtractTimeout = 15 * time.Second
	}
	if opts.BlobSource != BlobSourceFull {
		opts.BlobSource = BlobSourceCrop
	}
	if opts.DefaultSource == "" {
		opts.DefaultSource = entity.DefaultSource
	}
	return &IngestionPipeline{
		codec:     codec,
		detector:  detector,
		extractor: extractor,
		gateway:   gateway,
		opts:      opts,
		metrics:   opts.Metrics,
		log:       logging.OrDiscard(opts.Logger).With("component", "pipeline"),
	}
}

// Ingest обрабатывает снимок с источником по умолчанию.
func (p *IngestionPipeline) Ingest(ctx context.Context, imageBytes []byte) (*entity.IngestionResult, error) {
	return p.IngestFromSource(ctx, "", imageBytes)
}

// IngestFromSource обрабатывает снимок и помечает созданные записи источником source.
// Ошибка декодирования, детектора или рамки вне снимка прерывает весь запрос;
// в этом случае результат nil и записи не создаются. Остальные сбои попадают
// в итог соответствующей области.
func (p *IngestionPipeline) IngestFromSource(ctx context.Context, source string, imageBytes []byte) (*entity.IngestionResult, error) {
	if source == "" {
		source = p.opts.DefaultSource
	}
	requestID := uuid.NewString()
	log := p.log.With("request_id", requestID, "source", source)

	res, err := p.run(ctx, log, requestID, source, imageBytes)
	if err != nil {
		kind := entity.KindOf(err)
		p.metrics.ObserveRequest("failed", string(kind))
		if kind == entity.KindBounds {
			log.Error("detector returned region outside image", "error", err)
		} else {
			log.Warn("ingestion failed", "kind", kind, "error", err)
		}
		return nil, err
	}

	p.metrics.ObserveRequest("completed", "")
	log.Info("ingestion completed",
		"regions", len(res.Outcomes),
		"persisted", res.Count(entity.OutcomePersisted),
		"duplicate", res.Count(entity.OutcomeDuplicate),
		"skipped", res.Count(entity.OutcomeSkipped))
	return res, nil
}

func (p *IngestionPipeline) run(ctx context.Context, log *slog.Logger, requestID, source string, imageBytes []byte) (*entity.IngestionResult, error) {
	start := time.Now()
	img, err := p.codec.Decode(imageBytes)
	p.metrics.ObserveStage("decode", start)
	if err != nil {
		return nil, err
	}
	defer img.Release()

	regions, err := p.detect(ctx, img)
	if err != nil {
		return nil, err
	}

	for i, r := range regions {
		if !r.Box.Within(img.Width(), img.Height()) {
			return nil, fmt.Errorf("%w: region %d (%d,%d)-(%d,%d) in %dx%d image",
				entity.ErrBounds, i, r.Box.X1, r.Box.Y1, r.Box.X2, r.Box.Y2, img.Width(), img.Height())
		}
	}
	log.Debug("regions detected", "count", len(regions))

	res := &entity.IngestionResult{
		RequestID:   requestID,
		ImageWidth:  img.Width(),
		ImageHeight: img.Height(),
		Outcomes:    make([]entity.RegionOutcome, len(regions)),
	}

	var g errgroup.Group
	g.SetLimit(p.opts.RegionWorkers)
	for i, r := range regions {
		g.Go(func() error {
			res.Outcomes[i] = p.processRegion(ctx, log, requestID, source, i, r, img)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range res.Outcomes {
		p.metrics.ObserveOutcome(string(o.Status), string(o.SkipReason))
	}
	return res, nil
}

func (p *IngestionPipeline) detect(ctx context.Context, img *entity.RawImage) ([]entity.Region, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, p.opts.DetectTimeout)
	defer cancel()

	regions, err := p.detector.Detect(ctx, img)
	p.metrics.ObserveStage("detect", start)
	if err != nil {
		if !errors.Is(err, entity.ErrDetectionUnavailable) {
			err = fmt.Errorf("%w: %w", entity.ErrDetectionUnavailable, err)
		}
		return nil, err
	}
	return regions, nil
}

func (p *IngestionPipeline) extract(ctx context.Context, crop *entity.RawImage) ([]entity.TextHypothesis, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, p.opts.ExtractTimeout)
	defer cancel()

	hyps, err := p.extractor.Extract(ctx, crop)
	p.metrics.ObserveStage("extract", start)
	if err != nil {
		if !errors.Is(err, entity.ErrExtractionUnavailable) {
			err = fmt.Errorf("%w: %w", entity.ErrExtractionUnavailable, err)
		}
		return nil, err
	}
	return hyps, nil
}

// processRegion никогда не возвращает ошибку: любой сбой становится итогом Skipped.
func (p *IngestionPipeline) processRegion(ctx context.Context, log *slog.Logger, requestID, source string, index int, region entity.Region, img *entity.RawImage) entity.RegionOutcome {
	outcome := entity.RegionOutcome{Index: index, Region: region}
	log = log.With("region", index)

	if region.Confidence < p.opts.MinRegionConfidence {
		return skipped(outcome, entity.ErrBelowConfidenceThreshold)
	}

	crop, err := p.codec.Crop(img, region.Box)
	if err != nil {
		return skipped(outcome, err)
	}
	defer crop.Release()

	hyps, err := p.extract(ctx, crop)
	if err != nil {
		log.Warn("text extraction failed", "error", err)
		return skipped(outcome, err)
	}

	candidate, ok := SelectCandidate(region, hyps)
	if !ok {
		return skipped(outcome, entity.ErrNoTextDetected)
	}
	outcome.Candidate = &candidate

	blobImage := crop
	if p.opts.BlobSource == BlobSourceFull {
		blobImage = img
	}

	saved, err := p.gateway.Persist(ctx, PersistRequest{
		RequestID: requestID,
		Index:     index,
		Source:    source,
		Candidate: candidate,
		Image:     blobImage,
	})
	if err != nil {
		log.Error("plate not persisted", "plate", candidate.CanonicalText, "error", err)
		return skipped(outcome, err)
	}

	outcome.Status = saved.Status
	outcome.PlateID = saved.Record.ID
	outcome.BlobRef = saved.BlobRef
	outcome.BlobMissing = saved.BlobMissing
	return outcome
}

func skipped(o entity.RegionOutcome, err error) entity.RegionOutcome {
	o.Status = entity.OutcomeSkipped
	o.SkipReason = entity.KindOf(err)
	if !errors.Is(err, entity.ErrNoTextDetected) && !errors.Is(err, entity.ErrBelowConfidenceThreshold) {
		o.Detail = err.Error()
	}
	return o
}
