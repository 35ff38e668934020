package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"plate-ingest/internal/domain/entity"
	"plate-ingest/internal/domain/port"
	"plate-ingest/internal/infrastructure/imagecodec"
	"plate-ingest/internal/infrastructure/logging"
	"plate-ingest/internal/infrastructure/metrics"
)

// PersistenceOptions параметры PersistenceGateway
type PersistenceOptions struct {
	BlobPrefix  string        // префикс ключей, например "plates"
	BlobFormat  string        // jpeg или png
	BlobTimeout time.Duration // лимит на одну загрузку
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// PersistRequest намерение сохранить кандидата вместе со снимком.
type PersistRequest struct {
	RequestID string
	Index     int
	Source    string
	Candidate entity.PlateCandidate
	Image     *entity.RawImage // вырезка или исходный кадр
}

// PersistResult итог сохранения
type PersistResult struct {
	Status      entity.OutcomeStatus // persisted или duplicate
	Record      entity.PlateRecord
	BlobRef     string
	BlobMissing bool
}

// PersistenceGateway сохраняет снимок в объектное хранилище и запись в реляционное.
// Снимок загружается до вставки; сбой загрузки не мешает вставке, запись помечается
// BlobMissing, а закодированные байты уходят в очередь повторов.
type PersistenceGateway struct {
	gate    *DeduplicationGate
	blobs   port.BlobStore
	retry   port.BlobRetryQueue
	codec   port.ImageCodec
	opts    PersistenceOptions
	metrics *metrics.Metrics
	log     *slog.Logger
}

// NewPersistenceGateway создаёт шлюз сохранения
func NewPersistenceGateway(gate *DeduplicationGate, blobs port.BlobStore, retry port.BlobRetryQueue, codec port.ImageCodec, opts PersistenceOptions) *PersistenceGateway {
	if opts.BlobPrefix == "" {
		opts.BlobPrefix = "plates"
	}
	if opts.BlobFormat == "" {
		opts.BlobFormat = "jpeg"
	}
	if opts.BlobTimeout <= 0 {
		opts.BlobTimeout = 5 * time.Second
	}
	return &PersistenceGateway{
		gate:    gate,
		blobs:   blobs,
		retry:   retry,
		codec:   codec,
		opts:    opts,
		metrics: opts.Metrics,
		log:     logging.OrDiscard(opts.Logger).With("component", "persistence"),
	}
}

// Persist проводит кандидата через дедупликацию и сохраняет его.
// Ошибка возвращается только при сбое реляционного хранилища.
func (p *PersistenceGateway) Persist(ctx context.Context, req PersistRequest) (PersistResult, error) {
	text := req.Candidate.CanonicalText
	log := p.log.With("request_id", req.RequestID, "region", req.Index, "plate", text)

	known, err := p.gate.Lookup(ctx, text)
	if err != nil {
		log.Warn("advisory plate lookup failed, relying on insert", "error", err)
	}
	if known != nil {
		return PersistResult{Status: entity.OutcomeDuplicate, Record: *known}, nil
	}

	key := BlobKey(p.opts.BlobPrefix, text, req.RequestID, req.Index, p.opts.BlobFormat)
	data, ref, blobErr := p.uploadBlob(ctx, key, req.Image)

	draft := entity.NewPlateRecord(req.Candidate, req.Source, req.RequestID)
	if blobErr != nil {
		draft.BlobMissing = true
	} else {
		draft.BlobRef = ref
	}

	res, err := p.gate.Admit(ctx, draft)
	if err != nil {
		if blobErr == nil {
			log.Warn("blob stored without record", "blob_ref", ref)
		}
		return PersistResult{}, err
	}

	if !res.Created {
		if blobErr == nil {
			log.Info("lost insert race, blob left orphaned", "blob_ref", ref, "existing_id", res.Record.ID)
		}
		return PersistResult{Status: entity.OutcomeDuplicate, Record: res.Record}, nil
	}

	if blobErr != nil {
		p.metrics.ObserveBlobFailure()
		log.Warn("plate persisted without blob", "plate_id", res.Record.ID, "error", blobErr)
		// без закодированных байтов повторять нечего
		if len(data) > 0 {
			p.enqueueRetry(ctx, port.BlobRetryTask{
				PlateID:       res.Record.ID,
				CanonicalText: text,
				Key:           key,
				ContentType:   imagecodec.ContentType(p.opts.BlobFormat),
				Data:          data,
				RequestID:     req.RequestID,
				Reason:        blobErr.Error(),
				FailedAt:      time.Now().UTC(),
			}, log)
		}
	}

	return PersistResult{
		Status:      entity.OutcomePersisted,
		Record:      res.Record,
		BlobRef:     res.Record.BlobRef,
		BlobMissing: res.Record.BlobMissing,
	}, nil
}

// uploadBlob кодирует снимок и загружает его. Закодированные данные возвращаются
// и при сбое загрузки, чтобы их можно было передать в очередь повторов.
func (p *PersistenceGateway) uploadBlob(ctx context.Context, key string, img *entity.RawImage) ([]byte, string, error) {
	data, err := p.codec.Encode(img, p.opts.BlobFormat)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", entity.ErrBlobStore, err)
	}

	start := time.Now()
	putCtx, cancel := context.WithTimeout(ctx, p.opts.BlobTimeout)
	defer cancel()

	ref, err := p.blobs.Put(putCtx, key, data, imagecodec.ContentType(p.opts.BlobFormat))
	p.metrics.ObserveStage("blob_put", start)
	if err != nil {
		return data, "", fmt.Errorf("%w: %w", entity.ErrBlobStore, err)
	}
	return data, ref, nil
}

func (p *PersistenceGateway) enqueueRetry(ctx context.Context, task port.BlobRetryTask, log *slog.Logger) {
	if p.retry == nil {
		return
	}
	retryCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.BlobTimeout)
	defer cancel()

	err := p.retry.Enqueue(retryCtx, task)
	p.metrics.ObserveRetryEnqueue(err == nil)
	if err != nil {
		log.Error("blob retry enqueue failed", "plate_id", task.PlateID, "error", err)
	}
}

// BlobKey строит детерминированный ключ снимка: prefix/TEXT/request-index.ext.
// Символы номера вне [A-Z0-9_-] заменяются на '_'.
func BlobKey(prefix, canonicalText, requestID string, index int, format string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, canonicalText)
	return fmt.Sprintf("%s/%s/%s-%d.%s", strings.Trim(prefix, "/"), safe, requestID, index, imagecodec.Extension(format))
}
