package rest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	app "plate-ingest/internal/application"
	"plate-ingest/internal/domain/entity"
	"plate-ingest/internal/infrastructure/logging"
)

// Ingester конвейер распознавания, как его видит транспорт
type Ingester interface {
	IngestFromSource(ctx context.Context, source string, imageBytes []byte) (*entity.IngestionResult, error)
}

// PlateFinder поиск сохранённого номера
type PlateFinder interface {
	FindByText(ctx context.Context, canonicalText string) (*entity.PlateRecord, error)
}

// PlateHandler HTTP-обработчики номеров
type PlateHandler struct {
	ingester  Ingester
	plates    PlateFinder
	maxUpload int64
	log       *slog.Logger
}

// NewPlateHandler создаёт обработчики. maxUpload ограничивает размер тела запроса.
func NewPlateHandler(ingester Ingester, plates PlateFinder, maxUpload int64, log *slog.Logger) *PlateHandler {
	return &PlateHandler{
		ingester:  ingester,
		plates:    plates,
		maxUpload: maxUpload,
		log:       logging.OrDiscard(log).With("component", "rest"),
	}
}

type errorResponse struct {
	Error string             `json:"error"`
	Kind  entity.FailureKind `json:"kind,omitempty"`
}

// Ingest принимает снимок полем file формы multipart или телом запроса целиком.
// Источник берётся из параметра source или заголовка X-Source.
func (h *PlateHandler) Ingest(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)

	data, err := h.readImage(c)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Error: "image is too large"})
			return
		}
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if len(data) == 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "image is empty"})
		return
	}

	source := c.Query("source")
	if source == "" {
		source = c.GetHeader("X-Source")
	}

	res, err := h.ingester.IngestFromSource(c.Request.Context(), source, data)
	if err != nil {
		kind := entity.KindOf(err)
		c.JSON(statusForKind(kind), errorResponse{Error: err.Error(), Kind: kind})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *PlateHandler) readImage(c *gin.Context) ([]byte, error) {
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		return io.ReadAll(c.Request.Body)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return nil, err
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GetPlate возвращает запись по номеру. Номер нормализуется так же, как при распознавании.
func (h *PlateHandler) GetPlate(c *gin.Context) {
	text := app.Normalize(c.Param("text"))
	if text == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "plate text is empty"})
		return
	}

	rec, err := h.plates.FindByText(c.Request.Context(), text)
	if errors.Is(err, entity.ErrNotFound) {
		c.JSON(http.StatusNotFound, errorResponse{Error: "plate not found"})
		return
	}
	if err != nil {
		h.log.Error("plate lookup failed", "plate", text, "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "plate lookup failed", Kind: entity.KindRelationalStore})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func statusForKind(kind entity.FailureKind) int {
	switch kind {
	case entity.KindDecode:
		return http.StatusUnprocessableEntity
	case entity.KindDetectionUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
