package mailfmt

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scribe/internal/model"
)

func sampleTranscription() *model.Transcription {
	title := "Episode 42"
	channel := "Hard Fork"
	duration := 1925.0
	fullText := "Hello there.\nSecond line."
	transcribedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &model.Transcription{
		ID:            "youtube_abc12345678",
		SourceURL:     "https://youtu.be/abc12345678",
		Title:         &title,
		Channel:       &channel,
		DurationSecs:  &duration,
		FullText:      &fullText,
		TranscribedAt: &transcribedAt,
		Status:        model.StatusCompleted,
	}
}

func TestBuildSuccess_ContainsHTMLAndPlainParts(t *testing.T) {
	tr := sampleTranscription()
	msg, err := BuildSuccess(SuccessInput{
		To:            "listener@example.com",
		From:          "scribe@example.com",
		Subject:       "Scribe: Episode 42",
		Transcription: tr,
		SummaryHTML:   "<p>Short summary.</p>",
	})
	require.NoError(t, err)

	body := string(msg)
	assert.Contains(t, body, "multipart/alternative")
	assert.Contains(t, body, "Content-Type: text/plain")
	assert.Contains(t, body, "Content-Type: text/html")
	assert.Contains(t, body, "--- SUMMARY ---")
	assert.Contains(t, body, "--- TRANSCRIPT ---")
	assert.Contains(t, body, "<h2>Summary</h2>")
	assert.Contains(t, body, "Hello there.<br>Second line.")
}

func TestBuildSuccess_IncludesCreatorsNotesWhenPresent(t *testing.T) {
	tr := sampleTranscription()
	notes := "Recorded live at the conference."
	tr.SourceContext = &notes

	msg, err := BuildSuccess(SuccessInput{
		To:            "listener@example.com",
		From:          "scribe@example.com",
		Subject:       "Scribe: Episode 42",
		Transcription: tr,
		SummaryHTML:   "<p>Short summary.</p>",
	})
	require.NoError(t, err)

	body := string(msg)
	assert.Contains(t, body, "--- CREATOR'S NOTES ---")
	assert.Contains(t, body, "Creator's Notes")
}

func TestBuildSuccess_OmitsCreatorsNotesWhenAbsent(t *testing.T) {
	tr := sampleTranscription()
	msg, err := BuildSuccess(SuccessInput{
		To:            "listener@example.com",
		From:          "scribe@example.com",
		Subject:       "Scribe: Episode 42",
		Transcription: tr,
		SummaryHTML:   "<p>Short summary.</p>",
	})
	require.NoError(t, err)
	assert.NotContains(t, string(msg), "CREATOR'S NOTES")
}

func TestBuildNotice_IsSinglePartPlainText(t *testing.T) {
	body := NoTranscribableURLsBody("Check this out")
	msg, err := BuildNotice("sender@example.com", "scribe@example.com", "Scribe: no transcribable URLs", body)
	require.NoError(t, err)

	text := string(msg)
	assert.Contains(t, text, "Content-Type: text/plain")
	assert.NotContains(t, text, "multipart")
	assert.Contains(t, text, "Check this out")
	assert.True(t, strings.Contains(text, "YouTube"))
}
