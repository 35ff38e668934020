package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"plate-ingest/internal/domain/port"
	"plate-ingest/internal/infrastructure/logging"
)

// sqsMaxMessageBytes предел размера сообщения SQS
const sqsMaxMessageBytes = 256 * 1024

// SQSSendAPI часть клиента SQS, нужная очереди повторов
type SQSSendAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSRetryQueue отправляет задания на повторную загрузку снимков в SQS
type SQSRetryQueue struct {
	client   SQSSendAPI
	queueURL string
}

// NewSQSRetryQueue создаёт очередь повторов поверх клиента SQS
func NewSQSRetryQueue(client SQSSendAPI, queueURL string) *SQSRetryQueue {
	return &SQSRetryQueue{client: client, queueURL: queueURL}
}

// Enqueue сериализует задание в JSON. Если снимок не помещается в сообщение,
// он отбрасывается, а в причине остаётся отметка.
func (q *SQSRetryQueue) Enqueue(ctx context.Context, task port.BlobRetryTask) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal retry task: %w", err)
	}
	if len(body) > sqsMaxMessageBytes {
		task.Data = nil
		task.Reason += "; payload exceeds queue message limit"
		if body, err = json.Marshal(task); err != nil {
			return fmt.Errorf("marshal retry task: %w", err)
		}
	}

	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("sqs send retry task: %w", err)
	}
	return nil
}

// LogRetryQueue только пишет задание в лог для ручного разбора
type LogRetryQueue struct {
	log *slog.Logger
}

// NewLogRetryQueue создаёт очередь, пишущую в логгер
func NewLogRetryQueue(log *slog.Logger) *LogRetryQueue {
	return &LogRetryQueue{log: logging.OrDiscard(log).With("component", "blob-retry")}
}

// Enqueue логирует задание
func (q *LogRetryQueue) Enqueue(ctx context.Context, task port.BlobRetryTask) error {
	q.log.WarnContext(ctx, "blob upload pending retry",
		"plate_id", task.PlateID,
		"plate", task.CanonicalText,
		"key", task.Key,
		"request_id", task.RequestID,
		"reason", task.Reason,
		"bytes", len(task.Data))
	return nil
}

var (
	_ port.BlobRetryQueue = (*SQSRetryQueue)(nil)
	_ port.BlobRetryQueue = (*LogRetryQueue)(nil)
)
