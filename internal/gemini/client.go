// Package gemini adapts the Google Gemini API to analysis.Generator.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/calorieai/calorie-bot/internal/analysis"
)

var (
	// ErrNoCandidates is returned when the response carries no usable candidate.
	ErrNoCandidates = errors.New("gemini: response has no candidates")
	// ErrNoText is returned when the candidate has no text parts.
	ErrNoText = errors.New("gemini: response has no text")
)

// Client calls the Gemini generateContent endpoint. Safe for concurrent use.
type Client struct {
	genai *genai.Client
}

// NewClient creates a Gemini client authenticated with apiKey.
func NewClient(ctx context.Context, apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	c, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &Client{genai: c}, nil
}

// Generate sends prompt and img to model and returns the concatenated text of
// the first candidate.
func (c *Client) Generate(ctx context.Context, model, prompt string, img analysis.Image) (string, error) {
	m := c.genai.GenerativeModel(model)
	resp, err := m.GenerateContent(ctx, genai.Text(prompt), genai.ImageData(img.Format, img.Data))
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return "", fmt.Errorf("model %s refused the photo: %w", model, err)
		}
		return "", fmt.Errorf("calling model %s: %w", model, err)
	}
	return responseText(resp)
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.genai.Close()
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", ErrNoCandidates
	}
	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil {
		return "", ErrNoCandidates
	}

	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", ErrNoText
	}
	return b.String(), nil
}
