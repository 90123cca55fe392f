package analysis

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGenerator answers per model: a non-nil error fails the attempt, otherwise the text is returned.
type fakeGenerator struct {
	mu      sync.Mutex
	answers map[string]fakeAnswer
	calls   []string
	panicOn string
}

type fakeAnswer struct {
	text string
	err  error
}

func (g *fakeGenerator) Generate(ctx context.Context, model, prompt string, img Image) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, model)
	g.mu.Unlock()

	if model == g.panicOn {
		panic("boom")
	}
	if model == "slow" {
		<-ctx.Done()
		return "", ctx.Err()
	}
	a, ok := g.answers[model]
	if !ok {
		return "", errors.New("model not found: " + model)
	}
	return a.text, a.err
}

func (g *fakeGenerator) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDecodeImage(t *testing.T) {
	img, err := DecodeImage(testPNG(t))
	require.NoError(t, err)
	assert.Equal(t, "png", img.Format)
	assert.Equal(t, "image/png", img.MIMEType())
	assert.Equal(t, 4, img.Width)
	assert.Equal(t, 3, img.Height)

	_, err = DecodeImage(nil)
	assert.ErrorIs(t, err, ErrEmptyImage)

	_, err = DecodeImage([]byte("definitely not an image"))
	assert.Error(t, err)
}

func TestAnalyze_FirstCandidateSucceeds(t *testing.T) {
	gen := &fakeGenerator{answers: map[string]fakeAnswer{
		"m1": {text: "🍽 Dish: borscht"},
	}}
	inv := NewInvoker(gen, []string{"m1", "m2"}, WithLogger(quietLogger()))

	res := inv.Analyze(context.Background(), testPNG(t))
	assert.True(t, res.OK())
	assert.Equal(t, "🍽 Dish: borscht", res.Text)
	assert.Equal(t, "m1", res.Model)
	assert.Equal(t, []string{"m1"}, gen.Calls())
}

func TestAnalyze_FallsBackAndStops(t *testing.T) {
	gen := &fakeGenerator{answers: map[string]fakeAnswer{
		"m1": {err: errors.New("404 model not found")},
		"m2": {text: "second answer"},
		"m3": {text: "third answer"},
	}}
	inv := NewInvoker(gen, []string{"m1", "m2", "m3", "m4"}, WithLogger(quietLogger()))

	res := inv.Analyze(context.Background(), testPNG(t))
	assert.True(t, res.OK())
	assert.Equal(t, "second answer", res.Text)
	assert.Equal(t, "m2", res.Model)
	assert.Equal(t, []string{"m1", "m2"}, gen.Calls(), "must not try candidates after a success")

	require.Len(t, res.Attempts, 2)
	assert.False(t, res.Attempts[0].OK())
	assert.True(t, res.Attempts[1].OK())
}

func TestAnalyze_AllCandidatesFail(t *testing.T) {
	gen := &fakeGenerator{answers: map[string]fakeAnswer{
		"m1": {err: errors.New("quota exceeded")},
		"m2": {err: errors.New("unavailable")},
	}}
	inv := NewInvoker(gen, []string{"m1", "m2", "m3"}, WithLogger(quietLogger()))

	res := inv.Analyze(context.Background(), testPNG(t))
	assert.False(t, res.OK())
	assert.Equal(t, AllModelsUnavailableText, res.Text)
	assert.ErrorIs(t, res.Err, ErrAllModelsUnavailable)
	assert.Len(t, res.Attempts, 3)
	assert.Equal(t, []string{"m1", "m2", "m3"}, gen.Calls())
}

func TestAnalyze_SingleModelReportsItsError(t *testing.T) {
	gen := &fakeGenerator{answers: map[string]fakeAnswer{
		"only": {err: errors.New("API key not valid")},
	}}
	inv := NewInvoker(gen, []string{"only"}, WithLogger(quietLogger()))

	res := inv.Analyze(context.Background(), testPNG(t))
	assert.False(t, res.OK())
	assert.Equal(t, ErrorPrefix+"API key not valid", res.Text)
	assert.NotErrorIs(t, res.Err, ErrAllModelsUnavailable)
}

func TestAnalyze_NonImageBytes(t *testing.T) {
	gen := &fakeGenerator{answers: map[string]fakeAnswer{"m1": {text: "never"}}}
	inv := NewInvoker(gen, []string{"m1"}, WithLogger(quietLogger()))

	res := inv.Analyze(context.Background(), []byte("<html>not a photo</html>"))
	assert.False(t, res.OK())
	assert.True(t, strings.HasPrefix(res.Text, ErrorPrefix))
	assert.Empty(t, gen.Calls(), "no model call for undecodable data")
}

func TestAnalyze_EmptyResponseCountsAsFailure(t *testing.T) {
	gen := &fakeGenerator{answers: map[string]fakeAnswer{
		"m1": {text: "   "},
		"m2": {text: "real answer"},
	}}
	inv := NewInvoker(gen, []string{"m1", "m2"}, WithLogger(quietLogger()))

	res := inv.Analyze(context.Background(), testPNG(t))
	assert.Equal(t, "real answer", res.Text)
	assert.ErrorIs(t, res.Attempts[0].Err, errEmptyResponse)
}

func TestAnalyze_NoCandidates(t *testing.T) {
	inv := NewInvoker(&fakeGenerator{}, nil, WithLogger(quietLogger()))

	res := inv.Analyze(context.Background(), testPNG(t))
	assert.ErrorIs(t, res.Err, ErrNoCandidates)
	assert.True(t, strings.HasPrefix(res.Text, ErrorPrefix))
}

func TestAnalyze_RecoversPanic(t *testing.T) {
	gen := &fakeGenerator{panicOn: "m1"}
	inv := NewInvoker(gen, []string{"m1", "m2"}, WithLogger(quietLogger()))

	var res Result
	assert.NotPanics(t, func() {
		res = inv.Analyze(context.Background(), testPNG(t))
	})
	assert.False(t, res.OK())
	assert.True(t, strings.HasPrefix(res.Text, ErrorPrefix))
}

func TestAnalyze_AttemptTimeoutMovesOn(t *testing.T) {
	gen := &fakeGenerator{answers: map[string]fakeAnswer{"m2": {text: "fast answer"}}}
	inv := NewInvoker(gen, []string{"slow", "m2"},
		WithLogger(quietLogger()),
		WithAttemptTimeout(10*time.Millisecond),
	)

	res := inv.Analyze(context.Background(), testPNG(t))
	assert.Equal(t, "fast answer", res.Text)
	require.Len(t, res.Attempts, 2)
	assert.ErrorIs(t, res.Attempts[0].Err, context.DeadlineExceeded)
}

func TestAnalyze_CancelledContextStops(t *testing.T) {
	gen := &fakeGenerator{answers: map[string]fakeAnswer{"m1": {text: "x"}}}
	inv := NewInvoker(gen, []string{"m1", "m2"}, WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := inv.Analyze(ctx, testPNG(t))
	assert.False(t, res.OK())
	assert.Equal(t, AllModelsUnavailableText, res.Text)
	assert.Empty(t, gen.Calls())
}

func TestAnalyze_ObserverSeesEveryAttempt(t *testing.T) {
	gen := &fakeGenerator{answers: map[string]fakeAnswer{
		"m1": {err: errors.New("fail")},
		"m2": {text: "ok"},
	}}
	var seen []string
	inv := NewInvoker(gen, []string{"m1", "m2"},
		WithLogger(quietLogger()),
		WithAttemptObserver(func(a Attempt) { seen = append(seen, a.Model) }),
	)

	inv.Analyze(context.Background(), testPNG(t))
	assert.Equal(t, []string{"m1", "m2"}, seen)
}

func TestAnalyze_PromptIsSent(t *testing.T) {
	var gotPrompt string
	gen := generatorFunc(func(_ context.Context, _, prompt string, img Image) (string, error) {
		gotPrompt = prompt
		assert.Equal(t, "png", img.Format)
		return "ok", nil
	})
	inv := NewInvoker(gen, []string{"m1"}, WithLogger(quietLogger()), WithPrompt("custom"))
	inv.Analyze(context.Background(), testPNG(t))
	assert.Equal(t, "custom", gotPrompt)

	assert.Contains(t, Prompt, "Protein")
	assert.Contains(t, Prompt, "RECOMMENDATIONS")
}

type generatorFunc func(ctx context.Context, model, prompt string, img Image) (string, error)

func (f generatorFunc) Generate(ctx context.Context, model, prompt string, img Image) (string, error) {
	return f(ctx, model, prompt, img)
}

func TestInvoker_CandidatesCopy(t *testing.T) {
	models := []string{"a", "b"}
	inv := NewInvoker(&fakeGenerator{}, models)
	models[0] = "changed"
	got := inv.Candidates()
	got[1] = "changed"
	assert.Equal(t, []string{"a", "b"}, inv.Candidates())
}
