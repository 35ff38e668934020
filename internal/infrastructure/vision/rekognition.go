package vision

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"plate-ingest/internal/domain/entity"
	"plate-ingest/internal/domain/port"
)

// RekognitionAPI часть клиента Rekognition, нужная для распознавания текста
type RekognitionAPI interface {
	DetectText(ctx context.Context, in *rekognition.DetectTextInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectTextOutput, error)
}

// RekognitionExtractor распознаёт текст вырезки через AWS Rekognition DetectText.
// Берутся только строки (LINE): слова внутри строки дублировали бы гипотезы.
type RekognitionExtractor struct {
	client RekognitionAPI
	codec  port.ImageCodec
}

// NewRekognitionExtractor создаёт экстрактор поверх клиента Rekognition.
func NewRekognitionExtractor(client RekognitionAPI, codec port.ImageCodec) *RekognitionExtractor {
	return &RekognitionExtractor{client: client, codec: codec}
}

// Extract отправляет вырезку в JPEG и возвращает строки с уверенностью в [0,1].
func (e *RekognitionExtractor) Extract(ctx context.Context, crop *entity.RawImage) ([]entity.TextHypothesis, error) {
	data, err := e.codec.Encode(crop, "jpeg")
	if err != nil {
		return nil, err
	}

	out, err := e.client.DetectText(ctx, &rekognition.DetectTextInput{
		Image: &types.Image{Bytes: data},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: rekognition: %w", entity.ErrExtractionUnavailable, err)
	}

	hyps := make([]entity.TextHypothesis, 0, len(out.TextDetections))
	for _, td := range out.TextDetections {
		if td.Type != types.TextTypesLine || td.DetectedText == nil || td.Confidence == nil {
			continue
		}
		hyps = append(hyps, entity.TextHypothesis{
			Text:       *td.DetectedText,
			Confidence: float64(*td.Confidence) / 100,
		})
	}
	return hyps, nil
}

var _ port.TextExtractor = (*RekognitionExtractor)(nil)
