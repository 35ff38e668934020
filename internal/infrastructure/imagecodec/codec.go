package imagecodec

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"

	"plate-ingest/internal/domain/entity"
	"plate-ingest/internal/domain/port"
)

const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"

	// DefaultMaxPixels предел площади декодируемого кадра, 50 Мп
	DefaultMaxPixels = 50_000_000
)

// Codec кодек изображений на базе imaging
type Codec struct {
	JPEGQuality int
	// MaxPixels ограничивает заявленную в заголовке площадь кадра.
	// Проверяется до выделения пиксельного буфера; 0 отключает проверку.
	MaxPixels int64
}

// New создаёт кодек с качеством JPEG и пределом площади по умолчанию.
func New() *Codec {
	return &Codec{JPEGQuality: 90, MaxPixels: DefaultMaxPixels}
}

// Decode разбирает JPEG/PNG/GIF/BMP/TIFF и применяет EXIF-ориентацию.
func (c *Codec) Decode(data []byte) (*entity.RawImage, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty buffer", entity.ErrDecode)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrDecode, err)
	}
	if c.MaxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > c.MaxPixels {
		return nil, fmt.Errorf("%w: declared size %dx%d exceeds %d pixels",
			entity.ErrDecode, cfg.Width, cfg.Height, c.MaxPixels)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrDecode, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: zero-size image", entity.ErrDecode)
	}

	return entity.NewRawImage(img), nil
}

// Encode кодирует растр в формат jpeg или png.
func (c *Codec) Encode(img *entity.RawImage, format string) ([]byte, error) {
	if img.Empty() {
		return nil, fmt.Errorf("%w: zero-dimension raster", entity.ErrEncode)
	}

	f, err := parseFormat(format)
	if err != nil {
		return nil, err
	}

	var opts []imaging.EncodeOption
	if f == imaging.JPEG && c.JPEGQuality > 0 {
		opts = append(opts, imaging.JPEGQuality(c.JPEGQuality))
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img.Image(), f, opts...); err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrEncode, err)
	}
	return buf.Bytes(), nil
}

// Crop вырезает область в новый растр. Область должна целиком лежать внутри исходного.
func (c *Codec) Crop(img *entity.RawImage, box entity.BoundingBox) (*entity.RawImage, error) {
	if img.Empty() {
		return nil, fmt.Errorf("%w: source raster is empty", entity.ErrBounds)
	}
	if !box.Within(img.Width(), img.Height()) {
		return nil, fmt.Errorf("%w: box (%d,%d)-(%d,%d) in %dx%d image",
			entity.ErrBounds, box.X1, box.Y1, box.X2, box.Y2, img.Width(), img.Height())
	}

	src := img.Image()
	rect := box.Rect().Add(src.Bounds().Min)
	return entity.NewRawImage(imaging.Crop(src, rect)), nil
}

// ContentType возвращает MIME-тип формата.
func ContentType(format string) string {
	if normalizeFormat(format) == FormatPNG {
		return "image/png"
	}
	return "image/jpeg"
}

// Extension возвращает расширение файла без точки.
func Extension(format string) string {
	if normalizeFormat(format) == FormatPNG {
		return "png"
	}
	return "jpg"
}

func normalizeFormat(format string) string {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "jpg", "jpeg":
		return FormatJPEG
	case "png":
		return FormatPNG
	}
	return ""
}

func parseFormat(format string) (imaging.Format, error) {
	switch normalizeFormat(format) {
	case FormatJPEG:
		return imaging.JPEG, nil
	case FormatPNG:
		return imaging.PNG, nil
	}
	return 0, fmt.Errorf("%w: unsupported format %q", entity.ErrEncode, format)
}

var _ port.ImageCodec = (*Codec)(nil)
