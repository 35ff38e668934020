//go:build !gocv
// +build !gocv

package vision

import (
	"context"
	"fmt"

	"plate-ingest/internal/domain/entity"
	"plate-ingest/internal/domain/port"
)

// YOLODetector заглушка для сборки без OpenCV.
type YOLODetector struct {
	opts YOLOOptions
}

// NewYOLODetector создаёт детектор-заглушку (без OpenCV).
func NewYOLODetector(opts YOLOOptions) (*YOLODetector, error) {
	return &YOLODetector{opts: opts.withDefaults()}, nil
}

// Detect возвращает ошибку, если сборка без тега gocv.
func (d *YOLODetector) Detect(ctx context.Context, img *entity.RawImage) ([]entity.Region, error) {
	_ = ctx
	_ = img
	return nil, fmt.Errorf("%w: gocv build tag is not enabled", entity.ErrDetectionUnavailable)
}

// Close ничего не делает
func (d *YOLODetector) Close() error {
	return nil
}

var _ port.RegionDetector = (*YOLODetector)(nil)
