package xmpp

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"gosrc.io/xmpp"
	"gosrc.io/xmpp/stanza"

	"github.com/calorieai/calorie-bot/internal/bot"
	"github.com/calorieai/calorie-bot/internal/worker"
)

// EventHandler receives platform-neutral events. *bot.Handler implements it.
type EventHandler interface {
	HandlePhoto(ctx context.Context, ev bot.PhotoEvent)
	HandleCommand(ctx context.Context, ev bot.CommandEvent)
	HandleCallback(ctx context.Context, ev bot.CallbackEvent)
}

// Downloader fetches an out-of-band attachment. *media.Fetcher implements it.
type Downloader interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Handler turns incoming XMPP stanzas into bot events.
//
// Photos arrive as XEP-0066 out-of-band URLs. Menu entries that Telegram shows as
// inline buttons are plain commands here: /subscribe and /analyze map to callbacks.
type Handler struct {
	events     EventHandler
	pool       *worker.Pool
	downloader Downloader

	mu  sync.RWMutex
	ctx context.Context
}

// NewHandler creates a new XMPP stanza handler.
func NewHandler(events EventHandler, pool *worker.Pool, downloader Downloader) *Handler {
	return &Handler{
		events:     events,
		pool:       pool,
		downloader: downloader,
		ctx:        context.Background(),
	}
}

// bind sets the context handed to dispatched events; cancelling it aborts them.
func (h *Handler) bind(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ctx = ctx
}

func (h *Handler) baseContext() context.Context {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ctx
}

// HandleMessage processes incoming <message> stanzas.
func (h *Handler) HandleMessage(_ xmpp.Sender, p stanza.Packet) {
	msg, ok := p.(stanza.Message)
	if !ok {
		return
	}
	if msg.Type == stanza.MessageTypeError {
		slog.Debug("XMPP error message received", "from", msg.From)
		return
	}

	slog.Debug("XMPP message received",
		"from", msg.From,
		"to", msg.To,
		"type", string(msg.Type),
	)

	name, task := h.route(msg)
	if task == nil {
		return
	}

	ctx := h.baseContext()
	if err := h.pool.Submit(ctx, name, task); err != nil {
		slog.Warn("dropping XMPP message", "from", msg.From, "error", err)
	}
}

// route converts a message into a task for the pool. A nil task means the message is ignored.
func (h *Handler) route(msg stanza.Message) (string, worker.Task) {
	user := bot.User{ID: BareJID(msg.From), Name: LocalPart(msg.From)}
	if user.ID == "" {
		return "", nil
	}
	chatID := msg.From

	if url := oobURL(msg); url != "" {
		ev := bot.PhotoEvent{
			User:   user,
			ChatID: chatID,
			Fetch: func(ctx context.Context) ([]byte, error) {
				return h.downloader.Fetch(ctx, url)
			},
		}
		return "photo", func(ctx context.Context) { h.events.HandlePhoto(ctx, ev) }
	}

	command, ok := ParseCommand(msg.Body)
	if !ok {
		return "", nil
	}
	switch command {
	case bot.CallbackSubscribe, bot.CallbackAnalyze:
		ev := bot.CallbackEvent{
			User:    user,
			Data:    command,
			Message: bot.MessageRef{ChatID: chatID},
		}
		return "callback", func(ctx context.Context) { h.events.HandleCallback(ctx, ev) }
	default:
		ev := bot.CommandEvent{User: user, ChatID: chatID, Command: command}
		return "command", func(ctx context.Context) { h.events.HandleCommand(ctx, ev) }
	}
}

// HandlePresence processes incoming <presence> stanzas, auto-approving subscribe requests.
func (h *Handler) HandlePresence(s xmpp.Sender, p stanza.Packet) {
	pres, ok := p.(stanza.Presence)
	if !ok {
		return
	}

	slog.Debug("XMPP presence received",
		"from", pres.From,
		"to", pres.To,
		"type", string(pres.Type),
	)

	if pres.Type == "subscribe" {
		reply := stanza.Presence{
			Attrs: stanza.Attrs{
				From: pres.To,
				To:   pres.From,
				Type: "subscribed",
			},
		}
		if err := s.Send(reply); err != nil {
			slog.Error("sending presence subscribed reply", "error", err)
		}
	}
}

// HandleIQ processes incoming <iq> stanzas.
func (h *Handler) HandleIQ(_ xmpp.Sender, p stanza.Packet) {
	iq, ok := p.(*stanza.IQ)
	if !ok {
		return
	}
	slog.Debug("XMPP IQ received", "from", iq.From, "to", iq.To, "type", string(iq.Type))
}

// ParseCommand extracts the command name from a body like "/stats" or "/start@bot extra".
func ParseCommand(body string) (string, bool) {
	body = strings.TrimSpace(body)
	if !strings.HasPrefix(body, "/") {
		return "", false
	}
	word := strings.Fields(body[1:])
	if len(word) == 0 {
		return "", false
	}
	name := word[0]
	if idx := strings.Index(name, "@"); idx >= 0 {
		name = name[:idx]
	}
	if name == "" {
		return "", false
	}
	return strings.ToLower(name), true
}

// BareJID strips the resource part of a JID.
func BareJID(jid string) string {
	if idx := strings.Index(jid, "/"); idx >= 0 {
		return jid[:idx]
	}
	return jid
}

// LocalPart returns the node of a JID, or the domain when there is none.
func LocalPart(jid string) string {
	bare := BareJID(jid)
	if idx := strings.Index(bare, "@"); idx >= 0 {
		return bare[:idx]
	}
	return bare
}

func oobURL(msg stanza.Message) string {
	for _, ext := range msg.Extensions {
		switch oob := ext.(type) {
		case *stanza.OOB:
			return strings.TrimSpace(oob.URL)
		case stanza.OOB:
			return strings.TrimSpace(oob.URL)
		}
	}
	return ""
}
