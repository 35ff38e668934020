package container

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"plate-ingest/config"
	"plate-ingest/internal/domain/entity"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		DetectorBackend:  "sidecar",
		ExtractorBackend: "sidecar",
		SidecarURL:       "http://127.0.0.1:1",
		RegionWorkers:    2,
		DetectTimeout:    time.Second,
		ExtractTimeout:   time.Second,
		BlobTimeout:      time.Second,
		StoreTimeout:     time.Second,
		StoreDriver:      "sqlite",
		StoreDSN:         filepath.Join(dir, "plates.db") + "?_busy_timeout=5000",
		BlobDriver:       "fs",
		BlobDir:          filepath.Join(dir, "blobs"),
		BlobPrefix:       "plates",
		BlobSource:       "crop",
		BlobFormat:       "jpeg",
		DefaultSource:    "unknown",
		KnownPlateTTL:    time.Minute,
		MaxImagePixels:   1_000_000,
	}
}

func TestBuild(t *testing.T) {
	// после Close не должно оставаться фоновых горутин, в том числе janitor кэша номеров
	defer goleak.VerifyNone(t)
	cfg := testConfig(t)

	c, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, c.Pipeline)
	require.NotNil(t, c.Metrics.Registry())

	_, err = c.Plates.FindByText(context.Background(), "ABC1234")
	require.ErrorIs(t, err, entity.ErrNotFound)

	require.NoError(t, c.Close())
}

func TestBuild_UnreachableSidecarFailsDetection(t *testing.T) {
	cfg := testConfig(t)
	c, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 32, 16))))

	res, err := c.Pipeline.Ingest(context.Background(), buf.Bytes())
	require.Nil(t, res)
	require.ErrorIs(t, err, entity.ErrDetectionUnavailable)
}

func TestBuild_UnknownStoreDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.StoreDriver = "oracle"

	_, err := Build(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestBuild_OversizedImageIsDecodeError(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxImagePixels = 100
	c, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 32, 16))))

	res, err := c.Pipeline.Ingest(context.Background(), buf.Bytes())
	require.Nil(t, res)
	require.ErrorIs(t, err, entity.ErrDecode)
}
