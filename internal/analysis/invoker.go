// Package analysis turns a food photo into a nutritional report by asking a
// generative model, falling back through an ordered list of candidate models.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// User-facing texts returned instead of errors.
const (
	ErrorPrefix              = "❌ Analysis error: "
	AllModelsUnavailableText = "❌ All Gemini models are unavailable. Check API quotas and billing settings."
)

var (
	// ErrAllModelsUnavailable wraps the last attempt error when every candidate failed.
	ErrAllModelsUnavailable = errors.New("all candidate models failed")
	// ErrNoCandidates is returned when the invoker has nothing to try.
	ErrNoCandidates = errors.New("no candidate models configured")

	errEmptyResponse = errors.New("model returned an empty response")
)

// Generator sends a prompt and an image to one model of the remote service.
type Generator interface {
	Generate(ctx context.Context, model, prompt string, img Image) (string, error)
}

// Attempt is the outcome of calling one candidate model.
type Attempt struct {
	Model    string
	Err      error
	Duration time.Duration
}

// OK reports whether the attempt produced text.
func (a Attempt) OK() bool {
	return a.Err == nil
}

// Result is what Analyze hands back. Text is always safe to show to the user.
type Result struct {
	Text     string
	Model    string
	Attempts []Attempt
	// Err is nil when a model answered.
	Err error
}

// OK reports whether a model answered.
func (r Result) OK() bool {
	return r.Err == nil
}

// Invoker runs the analysis against the candidate models in order.
type Invoker struct {
	gen            Generator
	candidates     []string
	prompt         string
	attemptTimeout time.Duration
	logger         *slog.Logger
	observe        func(Attempt)
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithPrompt replaces the default Prompt.
func WithPrompt(prompt string) Option {
	return func(inv *Invoker) {
		inv.prompt = prompt
	}
}

// WithAttemptTimeout bounds each remote call. Zero means no bound.
func WithAttemptTimeout(d time.Duration) Option {
	return func(inv *Invoker) {
		inv.attemptTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(inv *Invoker) {
		inv.logger = logger
	}
}

// WithAttemptObserver registers a callback invoked after every attempt (used for metrics).
func WithAttemptObserver(fn func(Attempt)) Option {
	return func(inv *Invoker) {
		inv.observe = fn
	}
}

// NewInvoker creates an Invoker trying candidates in the given order.
func NewInvoker(gen Generator, candidates []string, opts ...Option) *Invoker {
	inv := &Invoker{
		gen:        gen,
		candidates: append([]string(nil), candidates...),
		prompt:     Prompt,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Candidates returns a copy of the candidate model list.
func (inv *Invoker) Candidates() []string {
	return append([]string(nil), inv.candidates...)
}

// Analyze decodes data and returns the first successful model answer verbatim.
// It never returns an error or panics: every failure is rendered into Result.Text.
//
// With a single candidate the failure text carries that model's error; with
// several candidates an exhausted list yields AllModelsUnavailableText.
func (inv *Invoker) Analyze(ctx context.Context, data []byte) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic during analysis: %v", r)
			inv.logger.Error("analysis panicked", "error", err)
			res = Result{Text: ErrorPrefix + err.Error(), Attempts: res.Attempts, Err: err}
		}
	}()

	img, err := DecodeImage(data)
	if err != nil {
		inv.logger.Error("analysis: decoding photo", "error", err, "bytes", len(data))
		return failed(err)
	}
	if len(inv.candidates) == 0 {
		inv.logger.Error("analysis: no candidate models configured")
		return failed(ErrNoCandidates)
	}

	var lastErr error
	for _, model := range inv.candidates {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		inv.logger.Info("analysis: trying model", "model", model)
		text, att := inv.attempt(ctx, model, img)
		res.Attempts = append(res.Attempts, att)
		if inv.observe != nil {
			inv.observe(att)
		}

		if att.OK() {
			inv.logger.Info("analysis: model answered", "model", model, "duration", att.Duration)
			res.Text = text
			res.Model = model
			return res
		}

		lastErr = att.Err
		inv.logger.Warn("analysis: model failed, trying next candidate", "model", model, "error", att.Err)
	}

	if len(inv.candidates) == 1 {
		res.Text = ErrorPrefix + lastErr.Error()
		res.Err = lastErr
		return res
	}

	res.Text = AllModelsUnavailableText
	res.Err = fmt.Errorf("%w: %w", ErrAllModelsUnavailable, lastErr)
	inv.logger.Error("analysis: all models failed", "candidates", len(inv.candidates), "error", lastErr)
	return res
}

func (inv *Invoker) attempt(ctx context.Context, model string, img Image) (string, Attempt) {
	if inv.attemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.attemptTimeout)
		defer cancel()
	}

	start := time.Now()
	text, err := inv.gen.Generate(ctx, model, inv.prompt, img)
	if err == nil && strings.TrimSpace(text) == "" {
		err = errEmptyResponse
	}
	return text, Attempt{Model: model, Err: err, Duration: time.Since(start)}
}

func failed(err error) Result {
	return Result{Text: ErrorPrefix + err.Error(), Err: err}
}
