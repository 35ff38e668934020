package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"plate-ingest/internal/domain/entity"
	"plate-ingest/internal/domain/port"
)

// Ответы inference-сервиса. Формат OCR совпадает с ответом /detect-ocr/.
type sidecarBox struct {
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	X2         float64 `json:"x2"`
	Y2         float64 `json:"y2"`
	Confidence float64 `json:"confidence"`
}

type sidecarDetectResponse struct {
	Boxes []sidecarBox `json:"boxes"`
}

type sidecarText struct {
	Text string  `json:"text"`
	Conf float64 `json:"conf"`
}

type sidecarOCRResponse struct {
	Results []sidecarText `json:"results"`
}

// SidecarClient обращается к внешнему inference-сервису (YOLO + OCR) по HTTP.
// Реализует и RegionDetector, и TextExtractor.
type SidecarClient struct {
	baseURL string
	http    *http.Client
	codec   port.ImageCodec
}

// NewSidecarClient создаёт клиент. Если httpClient nil, используется клиент с таймаутом 60s;
// лимиты на отдельные вызовы задаёт контекст.
func NewSidecarClient(baseURL string, codec port.ImageCodec, httpClient *http.Client) *SidecarClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &SidecarClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		codec:   codec,
	}
}

// Detect отправляет снимок на /detect. Рамки округляются наружу и обрезаются по снимку,
// вырожденные отбрасываются.
func (c *SidecarClient) Detect(ctx context.Context, img *entity.RawImage) ([]entity.Region, error) {
	var resp sidecarDetectResponse
	if err := c.post(ctx, "/detect", img, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", entity.ErrDetectionUnavailable, err)
	}

	w, h := img.Width(), img.Height()
	regions := make([]entity.Region, 0, len(resp.Boxes))
	for _, b := range resp.Boxes {
		box := entity.BoundingBox{
			X1: clamp(int(math.Floor(b.X1)), 0, w),
			Y1: clamp(int(math.Floor(b.Y1)), 0, h),
			X2: clamp(int(math.Ceil(b.X2)), 0, w),
			Y2: clamp(int(math.Ceil(b.Y2)), 0, h),
		}
		if box.X1 >= box.X2 || box.Y1 >= box.Y2 {
			continue
		}
		regions = append(regions, entity.Region{Box: box, Confidence: b.Confidence})
	}
	return regions, nil
}

// Extract отправляет вырезку на /ocr.
func (c *SidecarClient) Extract(ctx context.Context, crop *entity.RawImage) ([]entity.TextHypothesis, error) {
	var resp sidecarOCRResponse
	if err := c.post(ctx, "/ocr", crop, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", entity.ErrExtractionUnavailable, err)
	}

	hyps := make([]entity.TextHypothesis, 0, len(resp.Results))
	for _, r := range resp.Results {
		hyps = append(hyps, entity.TextHypothesis{Text: r.Text, Confidence: r.Conf})
	}
	return hyps, nil
}

func (c *SidecarClient) post(ctx context.Context, path string, img *entity.RawImage, out any) error {
	data, err := c.codec.Encode(img, "jpeg")
	if err != nil {
		return err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "image.jpg")
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

var (
	_ port.RegionDetector = (*SidecarClient)(nil)
	_ port.TextExtractor  = (*SidecarClient)(nil)
)
