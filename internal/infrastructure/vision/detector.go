//go:build gocv
// +build gocv

package vision

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"plate-ingest/internal/domain/entity"
	"plate-ingest/internal/domain/port"
)

// YOLODetector ищет номерные знаки ONNX-моделью YOLO через OpenCV DNN.
// gocv.Net не потокобезопасен, поэтому прогоны сериализуются.
type YOLODetector struct {
	mu   sync.Mutex
	net  gocv.Net
	opts YOLOOptions
}

// NewYOLODetector загружает модель и настраивает бэкенд.
func NewYOLODetector(opts YOLOOptions) (*YOLODetector, error) {
	opts = opts.withDefaults()
	if _, err := os.Stat(opts.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %w", err)
	}

	net := gocv.ReadNetFromONNX(opts.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load network from %s", opts.ModelPath)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, fmt.Errorf("set backend: %w", err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, fmt.Errorf("set target: %w", err)
	}
	return &YOLODetector{net: net, opts: opts}, nil
}

type detectResult struct {
	regions []entity.Region
	err     error
}

// Detect прогоняет сеть. Сам вызов Forward не прерывается, поэтому при
// истечении ctx результат отбрасывается, а прогон дорабатывает в фоне.
func (d *YOLODetector) Detect(ctx context.Context, img *entity.RawImage) ([]entity.Region, error) {
	if img.Empty() {
		return nil, fmt.Errorf("%w: empty image", entity.ErrDetectionUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", entity.ErrDetectionUnavailable, err)
	}

	src := img.Image()
	done := make(chan detectResult, 1)
	go func() {
		regions, err := d.run(src)
		done <- detectResult{regions: regions, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", entity.ErrDetectionUnavailable, ctx.Err())
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("%w: %w", entity.ErrDetectionUnavailable, res.err)
		}
		return res.regions, nil
	}
}

func (d *YOLODetector) run(src image.Image) ([]entity.Region, error) {
	mat, err := gocv.ImageToMatRGB(src)
	if err != nil {
		return nil, fmt.Errorf("convert image: %w", err)
	}
	defer mat.Close()

	size := d.opts.InputSize
	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.mu.Lock()
	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	d.mu.Unlock()
	defer output.Close()

	dims := output.Size()
	if len(dims) != 3 || dims[0] != 1 {
		return nil, fmt.Errorf("unexpected output shape %v", dims)
	}
	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}

	scaleX := float64(mat.Cols()) / float64(size)
	scaleY := float64(mat.Rows()) / float64(size)
	cands := decodeYOLOOutput(data, dims[1], dims[2], scaleX, scaleY, mat.Cols(), mat.Rows(), d.opts.ScoreThreshold)
	if len(cands) == 0 {
		return []entity.Region{}, nil
	}

	boxes := make([]image.Rectangle, len(cands))
	scores := make([]float32, len(cands))
	for i, c := range cands {
		boxes[i] = c.box
		scores[i] = c.score
	}
	keep := gocv.NMSBoxes(boxes, scores, d.opts.ScoreThreshold, d.opts.NMSThreshold)
	return toRegions(cands, keep), nil
}

// Close освобождает сеть
func (d *YOLODetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

var _ port.RegionDetector = (*YOLODetector)(nil)
