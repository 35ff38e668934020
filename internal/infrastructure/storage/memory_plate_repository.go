package storage

import (
	"context"
	"sync"
	"time"

	"plate-ingest/internal/domain/entity"
	"plate-ingest/internal/domain/port"
)

// MemoryPlateRepository in-memory хранилище номеров. Уникальность номера
// обеспечивается проверкой и вставкой под одной блокировкой.
type MemoryPlateRepository struct {
	mu     sync.RWMutex
	plates map[string]*entity.PlateRecord
	nextID uint
}

// NewMemoryPlateRepository создаёт новое in-memory хранилище
func NewMemoryPlateRepository() *MemoryPlateRepository {
	return &MemoryPlateRepository{
		plates: make(map[string]*entity.PlateRecord),
	}
}

// FindByText возвращает запись по нормализованному номеру
func (r *MemoryPlateRepository) FindByText(ctx context.Context, canonicalText string) (*entity.PlateRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	rec, exists := r.plates[canonicalText]
	r.mu.RUnlock()

	if !exists {
		return nil, entity.ErrNotFound
	}
	out := *rec
	return &out, nil
}

// InsertIfAbsent вставляет запись, если номера ещё нет
func (r *MemoryPlateRepository) InsertIfAbsent(ctx context.Context, rec entity.PlateRecord) (entity.PlateRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return entity.PlateRecord{}, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.plates[rec.CanonicalText]; exists {
		return *existing, false, nil
	}

	r.nextID++
	rec.ID = r.nextID
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.Source == "" {
		rec.Source = entity.DefaultSource
	}
	stored := rec
	r.plates[rec.CanonicalText] = &stored

	return rec, true, nil
}

// Count возвращает число сохранённых записей
func (r *MemoryPlateRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plates)
}

// Close ничего не делает
func (r *MemoryPlateRepository) Close() error {
	return nil
}

// Проверка реализации интерфейса
var _ port.PlateRepository = (*MemoryPlateRepository)(nil)
