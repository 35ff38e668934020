package port

import (
	"context"

	"plate-ingest/internal/domain/entity"
)

// TextExtractor интерфейс OCR-движка
type TextExtractor interface {
	// Extract возвращает варианты прочтения вырезанной области в произвольном порядке.
	// Сбой движка оборачивается в entity.ErrExtractionUnavailable.
	Extract(ctx context.Context, crop *entity.RawImage) ([]entity.TextHypothesis, error)
}
