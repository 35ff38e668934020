package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config настройки сервиса. Значения читаются из окружения (и .env),
// имя переменной совпадает с ключом в верхнем регистре: HTTP_ADDR, STORE_DSN и т.д.
type Config struct {
	HTTPAddr        string
	MaxUploadBytes  int64
	MaxImagePixels  int64 // предел площади кадра до декодирования
	TelegramToken   string
	TelegramWorkers int // одновременно обрабатываемые сообщения бота

	LogLevel  string
	LogFormat string

	DetectorBackend        string // yolo или sidecar
	ModelPath              string
	DetectorInputSize      int
	DetectorScoreThreshold float64
	DetectorNMSThreshold   float64
	ExtractorBackend       string // rekognition или sidecar
	SidecarURL             string

	MinRegionConfidence float64
	RegionWorkers       int
	DetectTimeout       time.Duration
	ExtractTimeout      time.Duration
	BlobTimeout         time.Duration
	StoreTimeout        time.Duration

	StoreDriver string // sqlite или postgres
	StoreDSN    string

	BlobDriver        string // memory, fs или s3
	BlobBucket        string
	BlobDir           string
	BlobPrefix        string
	BlobSource        string // crop или full
	BlobFormat        string // jpeg или png
	BlobRetryQueueURL string
	AWSRegion         string

	DefaultSource string
	KnownPlateTTL time.Duration
}

var defaults = map[string]any{
	"http_addr":                ":8080",
	"max_upload_bytes":         10 << 20,
	"max_image_pixels":         50_000_000,
	"telegram_workers":         4,
	"log_level":                "info",
	"log_format":               "text",
	"detector_backend":         "sidecar",
	"model_path":               "models/plates.onnx",
	"detector_input_size":      640,
	"detector_score_threshold": 0.25,
	"detector_nms_threshold":   0.45,
	"extractor_backend":        "sidecar",
	"sidecar_url":              "http://localhost:8000",
	"min_region_confidence":    0.0,
	"region_workers":           4,
	"detect_timeout":           "30s",
	"extract_timeout":          "15s",
	"blob_timeout":             "10s",
	"store_timeout":            "5s",
	"store_driver":             "sqlite",
	"store_dsn":                "plates.db?_journal_mode=WAL&_busy_timeout=5000",
	"blob_driver":              "fs",
	"blob_dir":                 "blobs",
	"blob_prefix":              "plates",
	"blob_source":              "crop",
	"blob_format":              "jpeg",
	"default_source":           "unknown",
	"known_plate_ttl":          "10m",
}

// Load читает .env (если он есть) и окружение, затем проверяет значения.
func Load() (*Config, error) {
	// Загружаем .env файл (игнорируем ошибку если файла нет)
	_ = godotenv.Load()

	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	// Ключи без значения по умолчанию тоже должны читаться из окружения.
	for _, key := range []string{"telegram_token", "blob_bucket", "blob_retry_queue_url", "aws_region"} {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}
	v.AutomaticEnv()

	cfg := &Config{
		HTTPAddr:        v.GetString("http_addr"),
		MaxUploadBytes:  v.GetInt64("max_upload_bytes"),
		MaxImagePixels:  v.GetInt64("max_image_pixels"),
		TelegramToken:   v.GetString("telegram_token"),
		TelegramWorkers: v.GetInt("telegram_workers"),

		LogLevel:  v.GetString("log_level"),
		LogFormat: v.GetString("log_format"),

		DetectorBackend:        strings.ToLower(v.GetString("detector_backend")),
		ModelPath:              v.GetString("model_path"),
		DetectorInputSize:      v.GetInt("detector_input_size"),
		DetectorScoreThreshold: v.GetFloat64("detector_score_threshold"),
		DetectorNMSThreshold:   v.GetFloat64("detector_nms_threshold"),
		ExtractorBackend:       strings.ToLower(v.GetString("extractor_backend")),
		SidecarURL:             v.GetString("sidecar_url"),

		MinRegionConfidence: v.GetFloat64("min_region_confidence"),
		RegionWorkers:       v.GetInt("region_workers"),
		DetectTimeout:       v.GetDuration("detect_timeout"),
		ExtractTimeout:      v.GetDuration("extract_timeout"),
		BlobTimeout:         v.GetDuration("blob_timeout"),
		StoreTimeout:        v.GetDuration("store_timeout"),

		StoreDriver: strings.ToLower(v.GetString("store_driver")),
		StoreDSN:    v.GetString("store_dsn"),

		BlobDriver:        strings.ToLower(v.GetString("blob_driver")),
		BlobBucket:        v.GetString("blob_bucket"),
		BlobDir:           v.GetString("blob_dir"),
		BlobPrefix:        v.GetString("blob_prefix"),
		BlobSource:        strings.ToLower(v.GetString("blob_source")),
		BlobFormat:        strings.ToLower(v.GetString("blob_format")),
		BlobRetryQueueURL: v.GetString("blob_retry_queue_url"),
		AWSRegion:         v.GetString("aws_region"),

		DefaultSource: v.GetString("default_source"),
		KnownPlateTTL: v.GetDuration("known_plate_ttl"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет допустимость значений
func (c *Config) Validate() error {
	var errs []error
	oneOf := func(name, value string, allowed ...string) {
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s must be one of %v, got %q", name, allowed, value))
	}

	oneOf("DETECTOR_BACKEND", c.DetectorBackend, "yolo", "sidecar")
	oneOf("EXTRACTOR_BACKEND", c.ExtractorBackend, "rekognition", "sidecar")
	oneOf("STORE_DRIVER", c.StoreDriver, "sqlite", "postgres")
	oneOf("BLOB_DRIVER", c.BlobDriver, "memory", "fs", "s3")
	oneOf("BLOB_SOURCE", c.BlobSource, "crop", "full")
	oneOf("BLOB_FORMAT", c.BlobFormat, "jpeg", "png")
	oneOf("LOG_FORMAT", c.LogFormat, "text", "json")

	for name, d := range map[string]time.Duration{
		"DETECT_TIMEOUT":  c.DetectTimeout,
		"EXTRACT_TIMEOUT": c.ExtractTimeout,
		"BLOB_TIMEOUT":    c.BlobTimeout,
		"STORE_TIMEOUT":   c.StoreTimeout,
		"KNOWN_PLATE_TTL": c.KnownPlateTTL,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}

	if c.RegionWorkers <= 0 {
		errs = append(errs, errors.New("REGION_WORKERS must be positive"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}
	if c.MaxImagePixels <= 0 {
		errs = append(errs, errors.New("MAX_IMAGE_PIXELS must be positive"))
	}
	if c.TelegramWorkers <= 0 {
		errs = append(errs, errors.New("TELEGRAM_WORKERS must be positive"))
	}
	if c.MinRegionConfidence < 0 || c.MinRegionConfidence > 1 {
		errs = append(errs, errors.New("MIN_REGION_CONFIDENCE must be within [0,1]"))
	}
	if c.StoreDSN == "" {
		errs = append(errs, errors.New("STORE_DSN is required"))
	}
	if c.DetectorBackend == "yolo" && c.ModelPath == "" {
		errs = append(errs, errors.New("MODEL_PATH is required for the yolo detector"))
	}
	if (c.DetectorBackend == "sidecar" || c.ExtractorBackend == "sidecar") && c.SidecarURL == "" {
		errs = append(errs, errors.New("SIDECAR_URL is required for the sidecar backend"))
	}
	if c.BlobDriver == "s3" && c.BlobBucket == "" {
		errs = append(errs, errors.New("BLOB_BUCKET is required for the s3 blob driver"))
	}
	if c.BlobDriver == "fs" && c.BlobDir == "" {
		errs = append(errs, errors.New("BLOB_DIR is required for the fs blob driver"))
	}

	return errors.Join(errs...)
}

// NeedsAWS сообщает, что хотя бы один компонент работает через AWS.
func (c *Config) NeedsAWS() bool {
	return c.BlobDriver == "s3" || c.ExtractorBackend == "rekognition" || c.BlobRetryQueueURL != ""
}
