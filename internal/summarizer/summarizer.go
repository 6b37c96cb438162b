// Package summarizer generates LLM summaries of transcripts per spec.md
// §4.6, using an OpenAI-compatible chat completions endpoint.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"scribe/internal/model"
)

// Failure kinds exposed to callers, matching spec.md §4.6's enumerated
// failure set.
var (
	ErrTranscriptionMissing    = errors.New("transcription not found")
	ErrTranscriptionIncomplete = errors.New("transcription is not completed")
	ErrLLMNetwork              = errors.New("llm network error")
	ErrLLMTimeout              = errors.New("llm call timed out")
	ErrMalformedResponse       = errors.New("llm returned a malformed response")
)

const htmlFormatSuffix = "Format your response using valid HTML elements (headings, paragraphs, lists, tables, etc.). Do not include `<html>`, `<head>`, or `<body>` tags - only the inner content."

// Request is the input to a summarization call.
type Request struct {
	Transcription      *model.Transcription
	APIEndpoint        string
	Model              string
	APIKey             string
	SystemPrompt       string
	SystemPromptSuffix string
	RequestHTMLFormat  bool
	ConfigSource       string
}

// Outcome is the generated summary plus timing/token bookkeeping, ready to
// persist as a model.Summary.
type Outcome struct {
	SummaryText      string
	GenerationTimeMs int64
	PromptTokens     *int
	CompletionTokens *int
}

// Generate composes the user message from the transcription, calls the
// configured chat completion endpoint, and returns the result. The caller
// bounds ctx to the LLM timeout (default 120s).
func Generate(ctx context.Context, req Request) (Outcome, error) {
	if req.Transcription == nil {
		return Outcome{}, ErrTranscriptionMissing
	}
	if req.Transcription.Status != model.StatusCompleted || req.Transcription.FullText == nil {
		return Outcome{}, ErrTranscriptionIncomplete
	}

	systemPrompt := req.SystemPrompt
	if req.SystemPromptSuffix != "" {
		systemPrompt = systemPrompt + "\n\n" + req.SystemPromptSuffix
	}
	if req.RequestHTMLFormat {
		systemPrompt = systemPrompt + "\n\n" + htmlFormatSuffix
	}

	userMessage := composeUserMessage(req.Transcription)

	config := openai.DefaultConfig(req.APIKey)
	config.BaseURL = strings.TrimRight(req.APIEndpoint, "/")
	client := openai.NewClientWithConfig(config)

	start := time.Now()
	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userMessage},
		},
	})
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, fmt.Errorf("%w: %v", ErrLLMTimeout, err)
		}
		return Outcome{}, fmt.Errorf("%w: %v", ErrLLMNetwork, err)
	}
	if len(resp.Choices) == 0 {
		return Outcome{}, fmt.Errorf("%w: no choices returned", ErrMalformedResponse)
	}

	out := Outcome{
		SummaryText:      resp.Choices[0].Message.Content,
		GenerationTimeMs: elapsed,
	}
	if resp.Usage.PromptTokens > 0 {
		v := resp.Usage.PromptTokens
		out.PromptTokens = &v
	}
	if resp.Usage.CompletionTokens > 0 {
		v := resp.Usage.CompletionTokens
		out.CompletionTokens = &v
	}
	return out, nil
}

func composeUserMessage(tr *model.Transcription) string {
	var b strings.Builder
	if tr.SourceContext != nil && strings.TrimSpace(*tr.SourceContext) != "" {
		b.WriteString("The creator provided the following show notes for this episode:\n\n")
		b.WriteString("---\n")
		b.WriteString(*tr.SourceContext)
		b.WriteString("\n---\n\n")
		b.WriteString("If any of this context is relevant to the summarization task below, use it to guide what you extract. Ignore any show notes content that isn't relevant to the specific request.\n\n")
	}
	b.WriteString("Transcript:\n")
	if tr.FullText != nil {
		b.WriteString(*tr.FullText)
	}
	return b.String()
}
