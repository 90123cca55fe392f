package xmpp

import (
	"context"
	"fmt"
	"log/slog"

	"gosrc.io/xmpp"

	"github.com/calorieai/calorie-bot/internal/config"
)

// Service discovery identity advertised by the component.
const (
	discoName     = "CalorieAI"
	discoCategory = "client"
	discoType     = "bot"
)

// Component connects the bot to an XMPP server as an external component (XEP-0114).
type Component struct {
	domain  string
	sm      *xmpp.StreamManager
	comp    *xmpp.Component
	handler *Handler
}

// NewComponent routes messages, presences and IQs of cfg.ComponentName to handler.
func NewComponent(cfg config.XMPPConfig, handler *Handler) (*Component, error) {
	router := xmpp.NewRouter()
	router.HandleFunc("message", handler.HandleMessage)
	router.HandleFunc("presence", handler.HandlePresence)
	router.HandleFunc("iq", handler.HandleIQ)

	opts := xmpp.ComponentOptions{
		TransportConfiguration: xmpp.TransportConfiguration{
			Address: cfg.ComponentAddr(),
			Domain:  cfg.ComponentName,
		},
		Domain:   cfg.ComponentName,
		Secret:   cfg.ComponentSecret,
		Name:     discoName,
		Category: discoCategory,
		Type:     discoType,
	}

	comp, err := xmpp.NewComponent(opts, router, func(err error) {
		slog.Error("xmpp component error", "domain", cfg.ComponentName, "error", err)
	})
	if err != nil {
		return nil, fmt.Errorf("creating xmpp component %s: %w", cfg.ComponentName, err)
	}

	sm := xmpp.NewStreamManager(comp, func(xmpp.Sender) {
		slog.Info("xmpp component connected", "domain", cfg.ComponentName, "server", cfg.ComponentAddr())
	})

	return &Component{domain: cfg.ComponentName, sm: sm, comp: comp, handler: handler}, nil
}

// Start connects and serves stanzas until ctx is cancelled or the stream fails,
// then waits for in-flight photo analyses.
func (c *Component) Start(ctx context.Context) error {
	c.handler.bind(ctx)
	defer c.handler.pool.Wait()

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.sm.Run()
	}()

	select {
	case <-ctx.Done():
		slog.Info("xmpp component stopping", "domain", c.domain)
		c.sm.Stop()
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("xmpp stream for %s: %w", c.domain, err)
		}
		return nil
	}
}

// Sender returns the connection outgoing stanzas are written to.
func (c *Component) Sender() xmpp.Sender {
	return c.comp
}
