package bot

import "context"

// Callback payloads carried by inline keyboard buttons.
const (
	CallbackSubscribe = "subscribe"
	CallbackStats     = "stats"
	CallbackAnalyze   = "analyze"
)

// Commands understood by HandleCommand.
const (
	CommandStart = "start"
	CommandStats = "stats"
	CommandHelp  = "help"
)

// Button is one inline keyboard button.
type Button struct {
	Text string
	Data string
}

// Keyboard is a list of button rows.
type Keyboard [][]Button

// Outgoing is a platform-neutral reply.
type Outgoing struct {
	Text     string
	Markdown bool
	Keyboard Keyboard
}

// MessageRef identifies a message the bot sent, so it can be edited or deleted.
type MessageRef struct {
	ChatID    string
	MessageID string
}

// Messenger is implemented by each platform adapter.
type Messenger interface {
	Send(ctx context.Context, chatID string, msg Outgoing) (MessageRef, error)
	Edit(ctx context.Context, ref MessageRef, msg Outgoing) error
	Delete(ctx context.Context, ref MessageRef) error
	AnswerCallback(ctx context.Context, callbackID string) error
}

// User is the sender of an inbound event.
type User struct {
	// ID keys the quota record: a Telegram user id or an XMPP bare JID.
	ID   string
	Name string
}

// PhotoEvent is an inbound photo. Fetch downloads the highest resolution version.
type PhotoEvent struct {
	User   User
	ChatID string
	Fetch  func(ctx context.Context) ([]byte, error)
}

// CommandEvent is an inbound slash command without the leading slash.
type CommandEvent struct {
	User    User
	ChatID  string
	Command string
}

// CallbackEvent is a press on an inline keyboard button.
type CallbackEvent struct {
	ID      string
	User    User
	Data    string
	Message MessageRef
}
