package xmpp

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gosrc.io/xmpp/stanza"

	"github.com/calorieai/calorie-bot/internal/bot"
)

// ErrNotConnected is returned when the messenger has no stanza sender yet.
var ErrNotConnected = errors.New("xmpp: component not connected")

// Correction replaces a previously sent message (XEP-0308).
type Correction struct {
	stanza.MsgExtension
	XMLName xml.Name `xml:"urn:xmpp:message-correct:0 replace"`
	ID      string   `xml:"id,attr"`
}

// Retraction asks clients to remove a previously sent message (XEP-0424).
type Retraction struct {
	stanza.MsgExtension
	XMLName xml.Name `xml:"urn:xmpp:message-retract:1 retract"`
	ID      string   `xml:"id,attr"`
}

// PacketSender is the part of xmpp.Sender the messenger uses.
type PacketSender interface {
	Send(packet stanza.Packet) error
}

// Messenger implements bot.Messenger over an XMPP component.
type Messenger struct {
	from string

	mu     sync.RWMutex
	sender PacketSender
}

// NewMessenger creates a Messenger sending from the component domain.
func NewMessenger(from string) *Messenger {
	return &Messenger{from: from}
}

// Bind sets the sender once the component exists.
func (m *Messenger) Bind(s PacketSender) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sender = s
}

func (m *Messenger) Send(_ context.Context, chatID string, msg bot.Outgoing) (bot.MessageRef, error) {
	id := uuid.NewString()
	if err := m.send(m.message(chatID, id, render(msg))); err != nil {
		return bot.MessageRef{}, err
	}
	return bot.MessageRef{ChatID: chatID, MessageID: id}, nil
}

// Edit sends a correction of ref. Without a message id it sends a new message.
func (m *Messenger) Edit(ctx context.Context, ref bot.MessageRef, msg bot.Outgoing) error {
	if ref.MessageID == "" {
		_, err := m.Send(ctx, ref.ChatID, msg)
		return err
	}
	out := m.message(ref.ChatID, uuid.NewString(), render(msg))
	out.Extensions = append(out.Extensions, Correction{ID: ref.MessageID})
	return m.send(out)
}

func (m *Messenger) Delete(_ context.Context, ref bot.MessageRef) error {
	if ref.MessageID == "" {
		return nil
	}
	out := m.message(ref.ChatID, uuid.NewString(), "")
	out.Extensions = append(out.Extensions, Retraction{ID: ref.MessageID})
	return m.send(out)
}

// AnswerCallback is a no-op: XMPP has no callback acknowledgement.
func (m *Messenger) AnswerCallback(context.Context, string) error {
	return nil
}

func (m *Messenger) message(to, id, body string) stanza.Message {
	return stanza.Message{
		Attrs: stanza.Attrs{
			From: m.from,
			To:   to,
			Type: stanza.MessageTypeChat,
			Id:   id,
		},
		Body: body,
	}
}

func (m *Messenger) send(msg stanza.Message) error {
	m.mu.RLock()
	s := m.sender
	m.mu.RUnlock()
	if s == nil {
		return ErrNotConnected
	}
	if err := s.Send(msg); err != nil {
		return fmt.Errorf("sending XMPP message to %s: %w", msg.To, err)
	}
	return nil
}

var markdownStripper = strings.NewReplacer(`\_`, "_", `\*`, "*", "\\`", "`", `\[`, "[", "*", "", "_", "")

// render flattens Markdown and appends the keyboard as a command menu.
func render(msg bot.Outgoing) string {
	text := msg.Text
	if msg.Markdown {
		text = markdownStripper.Replace(text)
	}
	if len(msg.Keyboard) == 0 {
		return text
	}

	var b strings.Builder
	b.WriteString(text)
	b.WriteString("\n\nReply with:")
	for _, row := range msg.Keyboard {
		for _, button := range row {
			fmt.Fprintf(&b, "\n/%s - %s", button.Data, button.Text)
		}
	}
	return b.String()
}
