package entity

import "image"

// BoundingBox прямоугольник в пиксельных координатах исходного изображения.
// Правая и нижняя границы не входят в область, как у image.Rectangle.
type BoundingBox struct {
	X1 int `json:"x1"` // левая граница
	Y1 int `json:"y1"` // верхняя граница
	X2 int `json:"x2"` // правая граница
	Y2 int `json:"y2"` // нижняя граница
}

// Width возвращает ширину области в пикселях
func (b BoundingBox) Width() int {
	return b.X2 - b.X1
}

// Height возвращает высоту области в пикселях
func (b BoundingBox) Height() int {
	return b.Y2 - b.Y1
}

// Area возвращает площадь области в пикселях
func (b BoundingBox) Area() int {
	if b.Width() <= 0 || b.Height() <= 0 {
		return 0
	}
	return b.Width() * b.Height()
}

// Center возвращает координаты центра области
func (b BoundingBox) Center() (x, y int) {
	return b.X1 + b.Width()/2, b.Y1 + b.Height()/2
}

// Within проверяет, что область непустая и целиком лежит внутри изображения width x height.
func (b BoundingBox) Within(width, height int) bool {
	return b.X1 >= 0 && b.X1 < b.X2 && b.X2 <= width &&
		b.Y1 >= 0 && b.Y1 < b.Y2 && b.Y2 <= height
}

// Rect переводит область в image.Rectangle.
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2)
}

// Region область изображения, в которой детектор предполагает номерной знак
type Region struct {
	Box        BoundingBox `json:"box"`
	Confidence float64     `json:"confidence"` // уверенность детектора
}

// TextHypothesis один вариант прочтения области OCR-движком
type TextHypothesis struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"` // в диапазоне [0,1]
}

// PlateCandidate выбранное и нормализованное прочтение номера для одной области.
type PlateCandidate struct {
	CanonicalText string  `json:"canonical_text"`
	RawText       string  `json:"raw_text"`
	Confidence    float64 `json:"confidence"`
	Region        Region  `json:"region"`
}
