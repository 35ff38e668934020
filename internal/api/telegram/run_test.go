package telegram

import (
	"context"
	"net/http"
	"regexp"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"

	"plate-ingest/internal/domain/entity"
)

var regexpFileURL = regexp.MustCompile(`^https://api\.telegram\.org/file/bot`)

type fakeAPI struct {
	updates chan tgbotapi.Update
	sent    chan tgbotapi.MessageConfig
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		updates: make(chan tgbotapi.Update),
		sent:    make(chan tgbotapi.MessageConfig, 16),
	}
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent <- m
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) GetFile(cfg tgbotapi.FileConfig) (tgbotapi.File, error) {
	return tgbotapi.File{FileID: cfg.FileID, FilePath: "photos/" + cfg.FileID + ".jpg"}, nil
}

// waitReply ждёт сообщение с данным текстом в данный чат.
func (f *fakeAPI) waitReply(t *testing.T, chatID int64, text string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case m := <-f.sent:
			if m.ChatID == chatID && m.Text == text {
				return
			}
		case <-deadline:
			t.Fatalf("no %q reply in chat %d", text, chatID)
		}
	}
}

// gatedIngester задерживает снимки из чата telegram:1 до закрытия release.
type gatedIngester struct {
	started chan string
	release chan struct{}
}

func (g *gatedIngester) IngestFromSource(ctx context.Context, source string, _ []byte) (*entity.IngestionResult, error) {
	g.started <- source
	if source == "telegram:1" {
		select {
		case <-g.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &entity.IngestionResult{}, nil
}

func photoUpdate(chatID int64, fileID string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:  &tgbotapi.Chat{ID: chatID},
		Photo: []tgbotapi.PhotoSize{{FileID: fileID, Width: 64, Height: 32}},
	}}
}

func TestRun_SlowChatDoesNotBlockOthers(t *testing.T) {
	mt := httpmock.NewMockTransport()
	mt.RegisterRegexpResponder(http.MethodGet, regexpFileURL, httpmock.NewBytesResponder(http.StatusOK, []byte("jpeg")))

	api := newFakeAPI()
	ingester := &gatedIngester{started: make(chan string, 4), release: make(chan struct{})}
	bot := newBot(api, "123:abc", ingester, 2, &http.Client{Transport: mt}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bot.Run(ctx) }()

	api.updates <- photoUpdate(1, "slow")
	require.Equal(t, "telegram:1", <-ingester.started)

	api.updates <- photoUpdate(2, "fast")
	require.Equal(t, "telegram:2", <-ingester.started)
	api.waitReply(t, 2, msgNoPlates)

	close(ingester.release)
	api.waitReply(t, 1, msgNoPlates)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_WaitsForInFlightOnShutdown(t *testing.T) {
	mt := httpmock.NewMockTransport()
	mt.RegisterRegexpResponder(http.MethodGet, regexpFileURL, httpmock.NewBytesResponder(http.StatusOK, []byte("jpeg")))

	api := newFakeAPI()
	ingester := &gatedIngester{started: make(chan string, 4), release: make(chan struct{})}
	bot := newBot(api, "123:abc", ingester, 1, &http.Client{Transport: mt}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bot.Run(ctx) }()

	api.updates <- photoUpdate(1, "slow")
	require.Equal(t, "telegram:1", <-ingester.started)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	// обработчик завершился до выхода Run и успел ответить
	api.waitReply(t, 1, msgProcessingError)
}
