package entity

import "time"

// DefaultSource значение поля Source, когда источник снимка неизвестен.
const DefaultSource = "unknown"

// PlateRecord сохранённая запись о номере. Создаётся один раз на CanonicalText
// и больше не изменяется.
type PlateRecord struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	CanonicalText       string    `gorm:"uniqueIndex;not null;size:64" json:"canonical_text"`
	RawText             string    `gorm:"not null;default:''" json:"raw_text"`
	OCRConfidence       float64   `gorm:"not null;default:0" json:"ocr_confidence"`
	DetectionConfidence float64   `gorm:"not null;default:0" json:"detection_confidence"`
	X1                  int       `gorm:"not null;default:0" json:"x1"`
	Y1                  int       `gorm:"not null;default:0" json:"y1"`
	X2                  int       `gorm:"not null;default:0" json:"x2"`
	Y2                  int       `gorm:"not null;default:0" json:"y2"`
	BlobRef             string    `gorm:"not null;default:''" json:"blob_ref,omitempty"`
	BlobMissing         bool      `gorm:"not null;default:false" json:"blob_missing"`
	Source              string    `gorm:"not null;default:'unknown';size:128" json:"source"`
	RequestID           string    `gorm:"not null;default:'';size:64" json:"request_id"`
	CreatedAt           time.Time `json:"created_at"`
}

// NewPlateRecord собирает черновик записи из кандидата. Пустой source
// заменяется на DefaultSource.
func NewPlateRecord(c PlateCandidate, source, requestID string) PlateRecord {
	if source == "" {
		source = DefaultSource
	}
	return PlateRecord{
		CanonicalText:       c.CanonicalText,
		RawText:             c.RawText,
		OCRConfidence:       c.Confidence,
		DetectionConfidence: c.Region.Confidence,
		X1:                  c.Region.Box.X1,
		Y1:                  c.Region.Box.Y1,
		X2:                  c.Region.Box.X2,
		Y2:                  c.Region.Box.Y2,
		Source:              source,
		RequestID:           requestID,
	}
}

// AdmitResult итог прохода через дедупликацию
type AdmitResult struct {
	Created bool        // true, если запись вставлена этим вызовом
	Record  PlateRecord // новая запись либо известная часть существующей
}
