package entity

import "image"

// RawImage декодированный растр, принадлежащий одному вызову конвейера.
// После Release пиксельный буфер недоступен.
type RawImage struct {
	pixels image.Image
}

// NewRawImage оборачивает растр. Возвращает nil для nil-изображения.
func NewRawImage(img image.Image) *RawImage {
	if img == nil {
		return nil
	}
	return &RawImage{pixels: img}
}

// Image возвращает растр или nil после Release.
func (r *RawImage) Image() image.Image {
	if r == nil {
		return nil
	}
	return r.pixels
}

// Width ширина растра в пикселях
func (r *RawImage) Width() int {
	if r.Image() == nil {
		return 0
	}
	return r.pixels.Bounds().Dx()
}

// Height высота растра в пикселях
func (r *RawImage) Height() int {
	if r.Image() == nil {
		return 0
	}
	return r.pixels.Bounds().Dy()
}

// Empty сообщает, что растр освобождён или имеет нулевой размер.
func (r *RawImage) Empty() bool {
	return r.Width() == 0 || r.Height() == 0
}

// Release отпускает пиксельный буфер. Повторный вызов безопасен.
func (r *RawImage) Release() {
	if r != nil {
		r.pixels = nil
	}
}
