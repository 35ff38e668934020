package port

import (
	"context"
	"time"
)

// BlobStore интерфейс объектного хранилища снимков
type BlobStore interface {
	// Put сохраняет объект и возвращает ссылку на него
	Put(ctx context.Context, key string, data []byte, contentType string) (ref string, err error)
}

// BlobRetryTask задание на повторную загрузку снимка для записи без ссылки.
type BlobRetryTask struct {
	PlateID       uint      `json:"plate_id"`
	CanonicalText string    `json:"canonical_text"`
	Key           string    `json:"key"`
	ContentType   string    `json:"content_type"`
	Data          []byte    `json:"data,omitempty"`
	RequestID     string    `json:"request_id"`
	Reason        string    `json:"reason"`
	FailedAt      time.Time `json:"failed_at"`
}

// BlobRetryQueue очередь повторных загрузок вне основного запроса
type BlobRetryQueue interface {
	Enqueue(ctx context.Context, task BlobRetryTask) error
}
