package port

import (
	"context"

	"plate-ingest/internal/domain/entity"
)

// PlateRepository интерфейс реляционного хранилища номеров
type PlateRepository interface {
	// FindByText возвращает запись по нормализованному номеру или entity.ErrNotFound
	FindByText(ctx context.Context, canonicalText string) (*entity.PlateRecord, error)

	// InsertIfAbsent вставляет запись, опираясь на уникальность CanonicalText.
	// При конфликте возвращает created=false без ошибки.
	InsertIfAbsent(ctx context.Context, rec entity.PlateRecord) (stored entity.PlateRecord, created bool, err error)

	// Close освобождает соединения
	Close() error
}
