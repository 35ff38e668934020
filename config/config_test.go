package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Equal(t, "sqlite", cfg.StoreDriver)
	require.Equal(t, "sidecar", cfg.DetectorBackend)
	require.Equal(t, 4, cfg.RegionWorkers)
	require.Equal(t, 30*time.Second, cfg.DetectTimeout)
	require.Equal(t, 10*time.Minute, cfg.KnownPlateTTL)
	require.Equal(t, "unknown", cfg.DefaultSource)
	require.Equal(t, int64(50_000_000), cfg.MaxImagePixels)
	require.Equal(t, 4, cfg.TelegramWorkers)
	require.False(t, cfg.NeedsAWS())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "123:abc")
	t.Setenv("STORE_DRIVER", "POSTGRES")
	t.Setenv("STORE_DSN", "postgres://plates@localhost/plates")
	t.Setenv("BLOB_DRIVER", "s3")
	t.Setenv("BLOB_BUCKET", "plate-crops")
	t.Setenv("EXTRACT_TIMEOUT", "2500ms")
	t.Setenv("MIN_REGION_CONFIDENCE", "0.4")
	t.Setenv("REGION_WORKERS", "8")
	t.Setenv("MAX_IMAGE_PIXELS", "12000000")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "123:abc", cfg.TelegramToken)
	require.Equal(t, "postgres", cfg.StoreDriver)
	require.Equal(t, "plate-crops", cfg.BlobBucket)
	require.Equal(t, 2500*time.Millisecond, cfg.ExtractTimeout)
	require.InDelta(t, 0.4, cfg.MinRegionConfidence, 1e-9)
	require.Equal(t, 8, cfg.RegionWorkers)
	require.Equal(t, int64(12_000_000), cfg.MaxImagePixels)
	require.True(t, cfg.NeedsAWS())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("BLOB_DRIVER", "ftp")
	t.Setenv("DETECT_TIMEOUT", "0s")
	t.Setenv("MIN_REGION_CONFIDENCE", "1.5")
	t.Setenv("MAX_IMAGE_PIXELS", "0")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "BLOB_DRIVER")
	require.Contains(t, err.Error(), "DETECT_TIMEOUT")
	require.Contains(t, err.Error(), "MIN_REGION_CONFIDENCE")
	require.Contains(t, err.Error(), "MAX_IMAGE_PIXELS")
}

func TestValidateS3NeedsBucket(t *testing.T) {
	t.Setenv("BLOB_DRIVER", "s3")

	_, err := Load()
	require.ErrorContains(t, err, "BLOB_BUCKET")
}
