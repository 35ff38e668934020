package app

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"plate-ingest/internal/domain/entity"
	"plate-ingest/internal/domain/port"
)

type fakeDetector struct {
	regions []entity.Region
	err     error
	calls   atomic.Int32
}

func (d *fakeDetector) Detect(ctx context.Context, img *entity.RawImage) ([]entity.Region, error) {
	d.calls.Add(1)
	return d.regions, d.err
}

// fakeExtractor отвечает по ширине вырезки, поэтому у областей в тесте разная ширина.
type fakeExtractor struct {
	byWidth    map[int][]entity.TextHypothesis
	errByWidth map[int]error
	block      bool
	calls      atomic.Int32
}

func (e *fakeExtractor) Extract(ctx context.Context, crop *entity.RawImage) ([]entity.TextHypothesis, error) {
	e.calls.Add(1)
	if e.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := e.errByWidth[crop.Width()]; err != nil {
		return nil, err
	}
	return e.byWidth[crop.Width()], nil
}

type failingBlobStore struct {
	calls atomic.Int32
}

func (s *failingBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	s.calls.Add(1)
	return "", errors.New("bucket unreachable")
}

type recordingQueue struct {
	mu    sync.Mutex
	tasks []port.BlobRetryTask
}

func (q *recordingQueue) Enqueue(ctx context.Context, task port.BlobRetryTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *recordingQueue) Tasks() []port.BlobRetryTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]port.BlobRetryTask(nil), q.tasks...)
}

// brokenRepo имитирует недоступную базу.
type brokenRepo struct{}

func (brokenRepo) FindByText(ctx context.Context, canonicalText string) (*entity.PlateRecord, error) {
	return nil, errors.New("connection refused")
}

func (brokenRepo) InsertIfAbsent(ctx context.Context, rec entity.PlateRecord) (entity.PlateRecord, bool, error) {
	return entity.PlateRecord{}, false, errors.New("connection refused")
}

func (brokenRepo) Close() error { return nil }

// blindRepo скрывает существующие записи от предварительного поиска,
// чтобы решение принимала только вставка.
type blindRepo struct {
	port.PlateRepository
	lookups atomic.Int32
}

func (r *blindRepo) FindByText(ctx context.Context, canonicalText string) (*entity.PlateRecord, error) {
	r.lookups.Add(1)
	return nil, entity.ErrNotFound
}

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func plateRegion(x1, y1, x2, y2 int, conf float64) entity.Region {
	return entity.Region{Box: entity.BoundingBox{X1: x1, Y1: y1, X2: x2, Y2: y2}, Confidence: conf}
}
