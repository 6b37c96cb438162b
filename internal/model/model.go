// Package model defines the core entities shared by the frontend service
// and the mail worker: Transcription, Summary, EpisodeSource, and the tag
// normalization rules that apply to every write.
package model

import (
	"regexp"
	"strings"
	"time"
)

// SourceType discriminates how a Transcription's canonical ID was derived.
type SourceType string

const (
	SourceYouTube       SourceType = "youtube"
	SourceApplePodcasts SourceType = "apple_podcasts"
	SourcePodcastAddict SourceType = "podcast_addict"
	SourceDirectAudio   SourceType = "direct_audio"
)

// Status is the orchestrator lifecycle state of a Transcription.
type Status string

const (
	StatusPending      Status = "pending"
	StatusDownloading  Status = "downloading"
	StatusTranscribing Status = "transcribing"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

// Progress bands per the orchestrator's state machine.
const (
	ProgressPending      = 0
	ProgressDownloading  = 10
	ProgressTranscribing = 50
	ProgressSaving       = 90
	ProgressCompleted    = 100
)

// Segment is one ASR-produced span with start/end seconds and text.
type Segment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcription is the central entity of the system.
type Transcription struct {
	ID         string     `json:"id"`
	SourceType SourceType `json:"source_type"`
	SourceURL  string     `json:"source_url"`

	Title        *string    `json:"title"`
	Channel      *string    `json:"channel"`
	Thumbnail    *string    `json:"thumbnail"`
	Description  *string    `json:"description"`
	UploadDate   *string    `json:"upload_date"`
	DurationSecs *float64   `json:"duration_seconds"`
	AudioPath    *string    `json:"audio_path"`
	AudioFormat  *string    `json:"audio_format"`
	AudioCached  *time.Time `json:"audio_cached_until"`

	Status   Status `json:"status"`
	Progress int    `json:"progress"`

	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	StartedAt     *time.Time `json:"started_at"`
	TranscribedAt *time.Time `json:"transcribed_at"`

	Language          *string `json:"language"`
	ModelUsed         *string `json:"model_used"`
	WordCount         *int    `json:"word_count"`
	SegmentsCount     *int    `json:"segments_count"`
	FullText          *string `json:"full_text"`
	TranscriptionPath *string `json:"transcription_path"`

	ErrorMessage *string `json:"error_message"`
	RetryCount   int     `json:"retry_count"`

	Tags          []string `json:"tags"`
	SourceContext *string  `json:"source_context"`
}

// TranscriptArtifact is the on-disk JSON document for a completed (or
// in-flight) transcription: source block + transcription block.
type TranscriptArtifact struct {
	Source struct {
		ID          string   `json:"id"`
		Type        string   `json:"type"`
		URL         string   `json:"url"`
		Title       *string  `json:"title"`
		Channel     *string  `json:"channel"`
		Thumbnail   *string  `json:"thumbnail"`
		Description *string  `json:"description"`
		UploadDate  *string  `json:"upload_date"`
		Duration    *float64 `json:"duration_seconds"`
	} `json:"source"`
	Transcription struct {
		Language      string    `json:"language"`
		Duration      float64   `json:"duration_seconds"`
		ModelUsed     string    `json:"model_used"`
		Segments      []Segment `json:"segments"`
		FullText      string    `json:"full_text"`
		WordCount     int       `json:"word_count"`
		SegmentsCount int       `json:"segments_count"`
	} `json:"transcription"`
	SourceContext *string   `json:"source_context,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Summary is an LLM-generated summary of a Transcription.
type Summary struct {
	ID                string    `json:"id"`
	TranscriptionID   string    `json:"transcription_id"`
	APIEndpoint       string    `json:"api_endpoint"`
	Model             string    `json:"model"`
	Prompt            string    `json:"prompt"`
	APIKeyUsed        bool      `json:"api_key_used"`
	Tags              []string  `json:"tags"`
	ConfigSource      string    `json:"config_source"`
	SummaryText       string    `json:"summary_text"`
	CreatedAt         time.Time `json:"created_at"`
	GenerationTimeMs  int64     `json:"generation_time_ms"`
	PromptTokens      *int      `json:"prompt_tokens"`
	CompletionTokens  *int      `json:"completion_tokens"`
}

// EpisodeSource is a preserved email body linked to a Transcription,
// retained for downstream evaluation of the newsletter/digest pipeline.
type EpisodeSource struct {
	ID              string    `json:"id"`
	TranscriptionID string    `json:"transcription_id"`
	EmailSubject    *string   `json:"email_subject"`
	EmailFrom       *string   `json:"email_from"`
	SourceText      string    `json:"source_text"`
	MatchedURL      string    `json:"matched_url"`
	CreatedAt       time.Time `json:"created_at"`
}

// TagConfig is one resolved LLM configuration entry, file-backed.
type TagConfig struct {
	APIEndpoint       string   `json:"api_endpoint"`
	Model             string   `json:"model"`
	APIKeyRef         string   `json:"api_key_ref,omitempty"`
	SystemPrompt      string   `json:"system_prompt"`
	DestinationEmails []string `json:"destination_emails,omitempty"`
}

var tagPattern = regexp.MustCompile(`^[a-z0-9_-]{1,50}$`)

// MaxTagsPerRecord is the maximum number of tags a Transcription may carry.
const MaxTagsPerRecord = 20

// NormalizeTags lowercases, trims, deduplicates (preserving first-seen
// order), enforces the character class, and truncates to MaxTagsPerRecord.
// It is idempotent: NormalizeTags(NormalizeTags(x)) == NormalizeTags(x).
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] || !tagPattern.MatchString(t) {
			continue
		}
		seen[t] = true
		out = append(out, t)
		if len(out) == MaxTagsPerRecord {
			break
		}
	}
	return out
}

// WordCount splits on whitespace per the testable-properties contract.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
