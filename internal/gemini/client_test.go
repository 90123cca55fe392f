package gemini

import (
	"context"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{
				genai.Text("🍽 **Dish:** pancakes\n"),
				genai.ImageData("png", []byte{1}),
				genai.Text("📊 **TOTAL CALORIES:** ~450 kcal"),
			}},
		}},
	}

	text, err := responseText(resp)
	require.NoError(t, err)
	assert.Equal(t, "🍽 **Dish:** pancakes\n📊 **TOTAL CALORIES:** ~450 kcal", text)
}

func TestResponseText_Empty(t *testing.T) {
	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
		want error
	}{
		{name: "nil response", resp: nil, want: ErrNoCandidates},
		{name: "no candidates", resp: &genai.GenerateContentResponse{}, want: ErrNoCandidates},
		{name: "nil content", resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}, want: ErrNoCandidates},
		{
			name: "no text parts",
			resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []genai.Part{genai.ImageData("png", []byte{1})}},
			}}},
			want: ErrNoText,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := responseText(tt.resp)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient(context.Background(), "")
	assert.Error(t, err)
}
