package port

import "plate-ingest/internal/domain/entity"

// ImageCodec декодирует, кодирует и вырезает растры
type ImageCodec interface {
	Decode(data []byte) (*entity.RawImage, error)
	Encode(img *entity.RawImage, format string) ([]byte, error)
	Crop(img *entity.RawImage, box entity.BoundingBox) (*entity.RawImage, error)
}
