package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"

	"plate-ingest/internal/domain/entity"
	"plate-ingest/internal/domain/port"
	"plate-ingest/internal/infrastructure/logging"
	"plate-ingest/internal/infrastructure/metrics"
)

// DeduplicationGate решает, создавать ли запись для номера. Окончательное решение
// принимает уникальный индекс хранилища; кэш и предварительный поиск только
// экономят вставки.
type DeduplicationGate struct {
	repo    port.PlateRepository
	known   *cache.Cache
	timeout time.Duration
	metrics *metrics.Metrics
	log     *slog.Logger
}

// GateOptions параметры DeduplicationGate
type GateOptions struct {
	StoreTimeout time.Duration // лимит на один вызов хранилища
	KnownTTL     time.Duration // сколько помнить уже сохранённые номера
	KnownCleanup time.Duration // период очистки кэша; 0 отключает фоновую очистку
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

// NewDeduplicationGate создаёт шлюз дедупликации поверх репозитория.
func NewDeduplicationGate(repo port.PlateRepository, opts GateOptions) *DeduplicationGate {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	if opts.KnownTTL <= 0 {
		opts.KnownTTL = 10 * time.Minute
	}
	return &DeduplicationGate{
		repo:    repo,
		known:   cache.New(opts.KnownTTL, opts.KnownCleanup),
		timeout: opts.StoreTimeout,
		metrics: opts.Metrics,
		log:     logging.OrDiscard(opts.Logger).With("component", "dedup"),
	}
}

// Lookup проверяет, известен ли номер. Результат рекомендательный: отсутствие записи
// не гарантирует, что вставка пройдёт.
func (g *DeduplicationGate) Lookup(ctx context.Context, canonicalText string) (*entity.PlateRecord, error) {
	if id, ok := g.known.Get(canonicalText); ok {
		g.metrics.ObserveDedup("cache")
		return &entity.PlateRecord{ID: id.(uint), CanonicalText: canonicalText}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	rec, err := g.repo.FindByText(ctx, canonicalText)
	if errors.Is(err, entity.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: lookup %s: %w", entity.ErrRelationalStore, canonicalText, err)
	}

	g.remember(rec.CanonicalText, rec.ID)
	g.metrics.ObserveDedup("lookup")
	return rec, nil
}

// Admit пытается вставить запись. Проигрыш гонки за уникальный индекс даёт
// AdmitResult{Created: false} с идентификатором существующей записи, а не ошибку.
func (g *DeduplicationGate) Admit(ctx context.Context, draft entity.PlateRecord) (entity.AdmitResult, error) {
	if draft.CanonicalText == "" {
		return entity.AdmitResult{}, fmt.Errorf("%w: empty canonical text", entity.ErrRelationalStore)
	}

	insertCtx, cancel := context.WithTimeout(ctx, g.timeout)
	stored, created, err := g.repo.InsertIfAbsent(insertCtx, draft)
	cancel()
	if err != nil {
		return entity.AdmitResult{}, fmt.Errorf("%w: insert %s: %w", entity.ErrRelationalStore, draft.CanonicalText, err)
	}

	if created {
		g.remember(stored.CanonicalText, stored.ID)
		g.metrics.ObserveDedup("insert")
		return entity.AdmitResult{Created: true, Record: stored}, nil
	}

	g.metrics.ObserveDedup("conflict")
	if stored.ID == 0 {
		lookupCtx, cancel := context.WithTimeout(ctx, g.timeout)
		existing, err := g.repo.FindByText(lookupCtx, draft.CanonicalText)
		cancel()
		if err != nil {
			g.log.Warn("existing plate id unavailable after conflict",
				"plate", draft.CanonicalText, "error", err)
			return entity.AdmitResult{Record: entity.PlateRecord{CanonicalText: draft.CanonicalText}}, nil
		}
		stored = *existing
	}

	g.remember(stored.CanonicalText, stored.ID)
	return entity.AdmitResult{Record: stored}, nil
}

func (g *DeduplicationGate) remember(canonicalText string, id uint) {
	if id == 0 {
		return
	}
	g.known.SetDefault(canonicalText, id)
}
