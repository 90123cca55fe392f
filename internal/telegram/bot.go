// Package telegram connects the bot to the Telegram Bot API using long polling.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/calorieai/calorie-bot/internal/bot"
	"github.com/calorieai/calorie-bot/internal/worker"
)

const pollTimeout = 60

// EventHandler receives platform-neutral events. *bot.Handler implements it.
type EventHandler interface {
	HandlePhoto(ctx context.Context, ev bot.PhotoEvent)
	HandleCommand(ctx context.Context, ev bot.CommandEvent)
	HandleCallback(ctx context.Context, ev bot.CallbackEvent)
}

// Downloader fetches a file by URL. *media.Fetcher implements it.
type Downloader interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Bot polls Telegram for updates and dispatches them to the handler through the pool.
type Bot struct {
	api        API
	handler    EventHandler
	pool       *worker.Pool
	downloader Downloader
}

// New creates a Bot.
func New(api API, handler EventHandler, pool *worker.Pool, downloader Downloader) *Bot {
	return &Bot{api: api, handler: handler, pool: pool, downloader: downloader}
}

// Connect authenticates against the Bot API with token.
func Connect(token string, debug bool) (*tgbotapi.BotAPI, error) {
	if err := tgbotapi.SetLogger(slogAdapter{}); err != nil {
		return nil, fmt.Errorf("setting telegram logger: %w", err)
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connecting to telegram: %w", err)
	}
	api.Debug = debug
	slog.Info("connected to telegram", "username", api.Self.UserName)
	return api, nil
}

// Run processes updates until ctx is cancelled, then waits for in-flight handlers.
func (b *Bot) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeout
	updates := b.api.GetUpdatesChan(cfg)

	defer b.pool.Wait()

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			name, task := b.route(update)
			if task == nil {
				continue
			}
			if err := b.pool.Submit(ctx, name, task); err != nil {
				slog.Warn("dropping telegram update", "update_id", update.UpdateID, "error", err)
			}
		}
	}
}

// route converts an update into a task for the pool. A nil task means the update is ignored.
func (b *Bot) route(update tgbotapi.Update) (string, worker.Task) {
	if cq := update.CallbackQuery; cq != nil {
		ev := bot.CallbackEvent{
			ID:   cq.ID,
			User: userOf(cq.From),
			Data: cq.Data,
		}
		if cq.Message != nil && cq.Message.Chat != nil {
			ev.Message = bot.MessageRef{
				ChatID:    strconv.FormatInt(cq.Message.Chat.ID, 10),
				MessageID: strconv.Itoa(cq.Message.MessageID),
			}
		}
		return "callback", func(ctx context.Context) { b.handler.HandleCallback(ctx, ev) }
	}

	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return "", nil
	}
	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	user := userOf(msg.From)

	switch {
	case len(msg.Photo) > 0:
		fileID := msg.Photo[len(msg.Photo)-1].FileID
		ev := bot.PhotoEvent{
			User:   user,
			ChatID: chatID,
			Fetch:  b.photoFetcher(fileID),
		}
		return "photo", func(ctx context.Context) { b.handler.HandlePhoto(ctx, ev) }
	case msg.IsCommand():
		ev := bot.CommandEvent{User: user, ChatID: chatID, Command: msg.Command()}
		return "command", func(ctx context.Context) { b.handler.HandleCommand(ctx, ev) }
	default:
		return "", nil
	}
}

func (b *Bot) photoFetcher(fileID string) func(ctx context.Context) ([]byte, error) {
	return func(ctx context.Context) ([]byte, error) {
		url, err := b.api.GetFileDirectURL(fileID)
		if err != nil {
			return nil, fmt.Errorf("resolving telegram file %s: %w", fileID, err)
		}
		return b.downloader.Fetch(ctx, url)
	}
}

func userOf(u *tgbotapi.User) bot.User {
	if u == nil {
		return bot.User{}
	}
	return bot.User{ID: strconv.FormatInt(u.ID, 10), Name: u.FirstName}
}

// slogAdapter routes the library's internal logging to slog at debug level.
type slogAdapter struct{}

func (slogAdapter) Println(v ...interface{}) {
	slog.Debug("telegram", "msg", fmt.Sprint(v...))
}

func (slogAdapter) Printf(format string, v ...interface{}) {
	slog.Debug("telegram", "msg", fmt.Sprintf(format, v...))
}
