package telegram

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/calorieai/calorie-bot/internal/bot"
)

// API is the subset of *tgbotapi.BotAPI used by the adapter.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Messenger implements bot.Messenger on the Telegram Bot API.
type Messenger struct {
	api API
}

// NewMessenger creates a Messenger.
func NewMessenger(api API) *Messenger {
	return &Messenger{api: api}
}

func (m *Messenger) Send(_ context.Context, chatID string, msg bot.Outgoing) (bot.MessageRef, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return bot.MessageRef{}, err
	}

	cfg := tgbotapi.NewMessage(id, msg.Text)
	if msg.Markdown {
		cfg.ParseMode = tgbotapi.ModeMarkdown
	}
	if len(msg.Keyboard) > 0 {
		cfg.ReplyMarkup = inlineKeyboard(msg.Keyboard)
	}

	sent, err := m.api.Send(cfg)
	if err != nil {
		return bot.MessageRef{}, fmt.Errorf("sending telegram message: %w", err)
	}
	return bot.MessageRef{ChatID: chatID, MessageID: strconv.Itoa(sent.MessageID)}, nil
}

func (m *Messenger) Edit(_ context.Context, ref bot.MessageRef, msg bot.Outgoing) error {
	chatID, messageID, err := parseRef(ref)
	if err != nil {
		return err
	}

	var cfg tgbotapi.EditMessageTextConfig
	if len(msg.Keyboard) > 0 {
		cfg = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, msg.Text, inlineKeyboard(msg.Keyboard))
	} else {
		cfg = tgbotapi.NewEditMessageText(chatID, messageID, msg.Text)
	}
	if msg.Markdown {
		cfg.ParseMode = tgbotapi.ModeMarkdown
	}

	if _, err := m.api.Request(cfg); err != nil {
		return fmt.Errorf("editing telegram message: %w", err)
	}
	return nil
}

func (m *Messenger) Delete(_ context.Context, ref bot.MessageRef) error {
	chatID, messageID, err := parseRef(ref)
	if err != nil {
		return err
	}
	if _, err := m.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return fmt.Errorf("deleting telegram message: %w", err)
	}
	return nil
}

func (m *Messenger) AnswerCallback(_ context.Context, callbackID string) error {
	if _, err := m.api.Request(tgbotapi.NewCallback(callbackID, "")); err != nil {
		return fmt.Errorf("answering telegram callback: %w", err)
	}
	return nil
}

func inlineKeyboard(kb bot.Keyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func parseChatID(chatID string) (int64, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram chat id %q: %w", chatID, err)
	}
	return id, nil
}

func parseRef(ref bot.MessageRef) (int64, int, error) {
	chatID, err := parseChatID(ref.ChatID)
	if err != nil {
		return 0, 0, err
	}
	messageID, err := strconv.Atoi(ref.MessageID)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid telegram message id %q: %w", ref.MessageID, err)
	}
	return chatID, messageID, nil
}
