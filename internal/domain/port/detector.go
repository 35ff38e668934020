package port

import (
	"context"

	"plate-ingest/internal/domain/entity"
)

// RegionDetector интерфейс детектора номерных знаков
type RegionDetector interface {
	// Detect возвращает области с предполагаемыми номерами. Пустой результат не ошибка.
	// Сбой модели оборачивается в entity.ErrDetectionUnavailable.
	Detect(ctx context.Context, img *entity.RawImage) ([]entity.Region, error)
}
