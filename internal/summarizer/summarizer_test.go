package summarizer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scribe/internal/model"
)

func completedTranscription() *model.Transcription {
	fullText := "this is the full transcript text"
	return &model.Transcription{
		ID:       "youtube_abc123456789",
		Status:   model.StatusCompleted,
		FullText: &fullText,
	}
}

func fakeOpenAIServer(t *testing.T, responseText string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{
				{"index": 0, "message": map[string]any{"role": "assistant", "content": responseText}, "finish_reason": "stop"},
			},
			"usage": map[string]any{"prompt_tokens": 42, "completion_tokens": 13, "total_tokens": 55},
		})
	}))
}

func TestGenerate_Success(t *testing.T) {
	srv := fakeOpenAIServer(t, "A concise summary.")
	defer srv.Close()

	out, err := Generate(context.Background(), Request{
		Transcription: completedTranscription(),
		APIEndpoint:   srv.URL,
		Model:         "gpt-4o-mini",
		SystemPrompt:  "Summarize the transcript.",
	})
	require.NoError(t, err)
	assert.Equal(t, "A concise summary.", out.SummaryText)
	require.NotNil(t, out.PromptTokens)
	assert.Equal(t, 42, *out.PromptTokens)
}

func TestGenerate_TranscriptionIncomplete(t *testing.T) {
	tr := completedTranscription()
	tr.Status = model.StatusTranscribing
	_, err := Generate(context.Background(), Request{Transcription: tr})
	assert.ErrorIs(t, err, ErrTranscriptionIncomplete)
}

func TestGenerate_TranscriptionMissing(t *testing.T) {
	_, err := Generate(context.Background(), Request{Transcription: nil})
	assert.ErrorIs(t, err, ErrTranscriptionMissing)
}

func TestGenerate_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := Generate(ctx, Request{
		Transcription: completedTranscription(),
		APIEndpoint:   srv.URL,
		Model:         "gpt-4o-mini",
		SystemPrompt:  "Summarize.",
	})
	assert.ErrorIs(t, err, ErrLLMTimeout)
}

func TestComposeUserMessage_IncludesSourceContext(t *testing.T) {
	tr := completedTranscription()
	ctxNotes := "Episode sponsored by Acme."
	tr.SourceContext = &ctxNotes

	msg := composeUserMessage(tr)
	assert.Contains(t, msg, "show notes")
	assert.Contains(t, msg, "Acme")
	assert.Contains(t, msg, "this is the full transcript text")
}
