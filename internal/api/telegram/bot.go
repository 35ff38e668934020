package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"plate-ingest/internal/domain/entity"
	"plate-ingest/internal/infrastructure/logging"
)

const (
	msgStart = `👋 Привет! Я бот для распознавания номерных знаков.

📸 Отправьте мне фото автомобиля, и я найду номера и сохраню новые.

📋 Команды:
/help — справка`

	msgHelp = `ℹ️ Как пользоваться ботом:

1️⃣ Отправьте фото автомобиля
2️⃣ Бот найдёт номерные знаки и прочитает их
3️⃣ Новые номера сохраняются, уже известные помечаются как повтор

💡 Рекомендации:
• Номер должен быть в кадре целиком
• Фото должно быть чётким`

	msgSendPhoto       = "📸 Пожалуйста, отправьте фото автомобиля."
	msgUnknownCommand  = "❓ Неизвестная команда. Используйте /help для справки."
	msgProcessing      = "⏳ Обрабатываю изображение..."
	msgNoPlates        = "🔍 Номерные знаки не найдены."
	msgProcessingError = "⚠️ Не удалось обработать изображение. Попробуйте сделать другое фото."
	msgServiceDown     = "⚠️ Сервис распознавания недоступен. Попробуйте позже."
)

// Ingester конвейер распознавания номеров
type Ingester interface {
	IngestFromSource(ctx context.Context, source string, imageBytes []byte) (*entity.IngestionResult, error)
}

// botAPI часть tgbotapi.BotAPI, которой пользуется бот
type botAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFile(config tgbotapi.FileConfig) (tgbotapi.File, error)
}

// Bot представляет Telegram-бота
type Bot struct {
	api      botAPI
	token    string
	ingester Ingester
	workers  int
	http     *http.Client
	log      *slog.Logger
}

// NewBot создаёт нового бота. workers ограничивает число одновременно
// обрабатываемых сообщений.
func NewBot(token string, ingester Ingester, workers int, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	b := newBot(api, token, ingester, workers, &http.Client{Timeout: 30 * time.Second}, log)
	b.log.Info("authorized", "account", api.Self.UserName)
	return b, nil
}

func newBot(api botAPI, token string, ingester Ingester, workers int, client *http.Client, log *slog.Logger) *Bot {
	if workers <= 0 {
		workers = 1
	}
	return &Bot{
		api:      api,
		token:    token,
		ingester: ingester,
		workers:  workers,
		http:     client,
		log:      logging.OrDiscard(log).With("component", "telegram"),
	}
}

// Run читает обновления до отмены ctx. Каждое сообщение обрабатывается
// в своей горутине, при выходе Run дожидается уже запущенных.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	var g errgroup.Group
	g.SetLimit(b.workers)
	defer func() { _ = g.Wait() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			msg := update.Message
			g.Go(func() error {
				b.handleMessage(ctx, msg)
				return nil
			})
		}
	}
}

// handleMessage обрабатывает входящее сообщение
func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		b.handleCommand(msg)
		return
	}

	if len(msg.Photo) > 0 {
		b.handlePhoto(ctx, msg)
		return
	}

	b.sendMessage(msg.Chat.ID, msgSendPhoto)
}

// handleCommand обрабатывает команды бота
func (b *Bot) handleCommand(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		b.sendMessage(msg.Chat.ID, msgStart)
	case "help":
		b.sendMessage(msg.Chat.ID, msgHelp)
	default:
		b.sendMessage(msg.Chat.ID, msgUnknownCommand)
	}
}

// handlePhoto скачивает фото и прогоняет его через конвейер
func (b *Bot) handlePhoto(ctx context.Context, msg *tgbotapi.Message) {
	b.sendMessage(msg.Chat.ID, msgProcessing)

	// Берём файл с максимальным разрешением
	photo := msg.Photo[len(msg.Photo)-1]

	imageData, err := b.downloadFile(ctx, photo.FileID)
	if err != nil {
		b.log.Error("photo download failed", "chat_id", msg.Chat.ID, "error", err)
		b.sendMessage(msg.Chat.ID, msgProcessingError)
		return
	}

	source := fmt.Sprintf("telegram:%d", msg.Chat.ID)
	res, err := b.ingester.IngestFromSource(ctx, source, imageData)
	if err != nil {
		b.log.Warn("ingestion failed", "chat_id", msg.Chat.ID, "error", err)
		b.sendMessage(msg.Chat.ID, failureMessage(err))
		return
	}

	b.sendMessage(msg.Chat.ID, formatResult(res))
}

// downloadFile скачивает файл из Telegram
func (b *Bot) downloadFile(ctx context.Context, fileID string) ([]byte, error) {
	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.Link(b.token), nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	return data, nil
}

// sendMessage отправляет текстовое сообщение
func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message failed", "chat_id", chatID, "error", err)
	}
}

// formatResult описывает итог по каждой найденной области
func formatResult(res *entity.IngestionResult) string {
	if len(res.Outcomes) == 0 {
		return msgNoPlates
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🚗 Найдено областей: %d\n", len(res.Outcomes))
	for _, o := range res.Outcomes {
		sb.WriteString("\n")
		switch o.Status {
		case entity.OutcomePersisted:
			fmt.Fprintf(&sb, "✅ %s — сохранён (%.0f%%)", o.CanonicalText(), o.Candidate.Confidence*100)
			if o.BlobMissing {
				sb.WriteString(", снимок будет загружен позже")
			}
		case entity.OutcomeDuplicate:
			fmt.Fprintf(&sb, "🔁 %s — уже известен", o.CanonicalText())
		default:
			fmt.Fprintf(&sb, "⏭ область %d пропущена: %s", o.Index+1, skipReasonText(o.SkipReason))
		}
	}
	return sb.String()
}

func skipReasonText(kind entity.FailureKind) string {
	switch kind {
	case entity.KindNoTextDetected:
		return "текст не распознан"
	case entity.KindBelowConfidenceThreshold:
		return "низкая уверенность детектора"
	case entity.KindExtractionUnavailable:
		return "OCR недоступен"
	case entity.KindRelationalStore:
		return "ошибка базы данных"
	}
	return string(kind)
}

func failureMessage(err error) string {
	if errors.Is(err, entity.ErrDetectionUnavailable) {
		return msgServiceDown
	}
	return msgProcessingError
}
