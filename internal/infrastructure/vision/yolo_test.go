package vision

import (
	"image"
	"testing"

	"github.com/stretchr/testify/require"

	"plate-ingest/internal/domain/entity"
)

// yoloOutput собирает выход [attrs, anchors] из описаний якорей.
func yoloOutput(classes int, anchors [][]float32) []float32 {
	attrs := 4 + classes
	out := make([]float32, attrs*len(anchors))
	for i, a := range anchors {
		for j, v := range a {
			out[j*len(anchors)+i] = v
		}
	}
	return out
}

func TestDecodeYOLOOutput(t *testing.T) {
	out := yoloOutput(1, [][]float32{
		{320, 320, 64, 32, 0.9},  // центр кадра
		{100, 100, 20, 10, 0.1},  // ниже порога
		{630, 10, 40, 40, 0.6},   // выходит за правый край
		{-50, -50, 10, 10, 0.95}, // целиком вне кадра
	})

	// вход 640x640, исходный снимок 1280x320
	cands := decodeYOLOOutput(out, 5, 4, 2.0, 0.5, 1280, 320, 0.25)
	require.Len(t, cands, 2)

	require.Equal(t, image.Rect(576, 152, 704, 168), cands[0].box)
	require.InDelta(t, 0.9, cands[0].score, 1e-6)

	require.Equal(t, image.Rect(1220, 0, 1280, 15), cands[1].box)
}

func TestDecodeYOLOOutput_MultiClassTakesBestScore(t *testing.T) {
	out := yoloOutput(3, [][]float32{{50, 50, 20, 20, 0.1, 0.7, 0.3}})
	cands := decodeYOLOOutput(out, 7, 1, 1, 1, 100, 100, 0.5)
	require.Len(t, cands, 1)
	require.InDelta(t, 0.7, cands[0].score, 1e-6)
}

func TestDecodeYOLOOutput_MalformedShape(t *testing.T) {
	require.Nil(t, decodeYOLOOutput([]float32{1, 2, 3}, 5, 4, 1, 1, 10, 10, 0))
	require.Nil(t, decodeYOLOOutput(nil, 4, 0, 1, 1, 10, 10, 0))
}

func TestToRegions(t *testing.T) {
	cands := []yoloCandidate{
		{box: image.Rect(0, 0, 10, 5), score: 0.5},
		{box: image.Rect(20, 20, 40, 30), score: 0.8},
	}
	regions := toRegions(cands, []int{1, 7, 0})
	require.Equal(t, []entity.Region{
		{Box: entity.BoundingBox{X1: 20, Y1: 20, X2: 40, Y2: 30}, Confidence: float64(float32(0.8))},
		{Box: entity.BoundingBox{X1: 0, Y1: 0, X2: 10, Y2: 5}, Confidence: 0.5},
	}, regions)
}

func TestYOLOOptionsDefaults(t *testing.T) {
	opts := YOLOOptions{ModelPath: "plates.onnx"}.withDefaults()
	require.Equal(t, 640, opts.InputSize)
	require.InDelta(t, 0.25, opts.ScoreThreshold, 1e-6)
	require.InDelta(t, 0.45, opts.NMSThreshold, 1e-6)
}
