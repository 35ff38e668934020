package vision

import (
	"image"

	"plate-ingest/internal/domain/entity"
)

// YOLOOptions настройки ONNX-модели детектора номеров
type YOLOOptions struct {
	ModelPath      string
	InputSize      int     // сторона квадратного входа сети
	ScoreThreshold float32 // минимальная оценка до NMS
	NMSThreshold   float32 // порог IoU для подавления пересечений
}

func (o YOLOOptions) withDefaults() YOLOOptions {
	if o.InputSize <= 0 {
		o.InputSize = 640
	}
	if o.ScoreThreshold <= 0 {
		o.ScoreThreshold = 0.25
	}
	if o.NMSThreshold <= 0 {
		o.NMSThreshold = 0.45
	}
	return o
}

type yoloCandidate struct {
	box   image.Rectangle
	score float32
}

// decodeYOLOOutput разбирает выход вида [attrs, anchors], где первые четыре
// атрибута cx, cy, w, h во входных координатах сети, а остальные оценки классов.
// Рамки масштабируются к исходному снимку и обрезаются по его границам.
func decodeYOLOOutput(out []float32, attrs, anchors int, scaleX, scaleY float64, width, height int, minScore float32) []yoloCandidate {
	if attrs < 5 || anchors <= 0 || len(out) < attrs*anchors {
		return nil
	}
	at := func(a, i int) float32 { return out[a*anchors+i] }

	var cands []yoloCandidate
	for i := 0; i < anchors; i++ {
		var score float32
		for a := 4; a < attrs; a++ {
			if s := at(a, i); s > score {
				score = s
			}
		}
		if score < minScore {
			continue
		}

		cx, cy := float64(at(0, i)), float64(at(1, i))
		w, h := float64(at(2, i)), float64(at(3, i))
		r := image.Rect(
			int((cx-w/2)*scaleX), int((cy-h/2)*scaleY),
			int((cx+w/2)*scaleX), int((cy+h/2)*scaleY),
		).Intersect(image.Rect(0, 0, width, height))
		if r.Empty() {
			continue
		}
		cands = append(cands, yoloCandidate{box: r, score: score})
	}
	return cands
}

func toRegions(cands []yoloCandidate, keep []int) []entity.Region {
	regions := make([]entity.Region, 0, len(keep))
	for _, idx := range keep {
		if idx < 0 || idx >= len(cands) {
			continue
		}
		c := cands[idx]
		regions = append(regions, entity.Region{
			Box: entity.BoundingBox{
				X1: c.box.Min.X, Y1: c.box.Min.Y,
				X2: c.box.Max.X, Y2: c.box.Max.Y,
			},
			Confidence: float64(c.score),
		})
	}
	return regions
}
