// Package mailworker implements the IMAP polling state machine from
// spec.md §4.8: it watches mailboxes for submission requests, drives
// transcription through the frontend service's HTTP API, and delivers
// results by email.
package mailworker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"scribe/internal/model"
)

// ErrDuplicate is returned by FrontendClient.Submit when the frontend
// reports 409 (source already transcribed); ExistingID carries the
// conflicting record.
type ErrDuplicate struct {
	ExistingID string
}

func (e *ErrDuplicate) Error() string {
	return fmt.Sprintf("already transcribed as %s", e.ExistingID)
}

// ErrTerminalTimeout is returned by WaitForTerminal when the transcription
// never reaches a terminal state within the bound.
var ErrTerminalTimeout = errors.New("timed out waiting for terminal status")

// FrontendClient is an HTTP client of the frontend service's /api surface,
// matching spec.md §5's two-process split: the mail worker never touches
// the orchestrator in-process, only through this client.
type FrontendClient struct {
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
}

// NewFrontendClient builds a FrontendClient against baseURL.
func NewFrontendClient(baseURL string, pollInterval time.Duration) *FrontendClient {
	return &FrontendClient{
		baseURL:      baseURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		pollInterval: pollInterval,
	}
}

type submitRequest struct {
	URL  string   `json:"url"`
	Tags []string `json:"tags"`
}

// Submit POSTs /api/transcribe and returns the pending record, or
// *ErrDuplicate on a 409.
func (f *FrontendClient) Submit(ctx context.Context, rawURL string, tag string) (*model.Transcription, error) {
	body, err := json.Marshal(submitRequest{URL: rawURL, Tags: []string{tag}})
	if err != nil {
		return nil, fmt.Errorf("marshal submit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/api/transcribe", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit to frontend: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
		var tr model.Transcription
		if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
			return nil, fmt.Errorf("decode submit response: %w", err)
		}
		return &tr, nil
	case http.StatusConflict:
		var payload struct {
			ExistingID string `json:"existing_id"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		return nil, &ErrDuplicate{ExistingID: payload.ExistingID}
	default:
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("frontend submit failed: %d: %s", resp.StatusCode, string(data))
	}
}

// GetTranscription fetches a transcription's current record.
func (f *FrontendClient) GetTranscription(ctx context.Context, id string) (*model.Transcription, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/api/transcriptions/"+id, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get transcription: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("frontend get transcription failed: %d: %s", resp.StatusCode, string(data))
	}

	var tr model.Transcription
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decode transcription: %w", err)
	}
	return &tr, nil
}

// WaitForTerminal polls GetTranscription until the record reaches
// completed or failed, or ctx is done.
func (f *FrontendClient) WaitForTerminal(ctx context.Context, id string) (*model.Transcription, error) {
	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()

	for {
		tr, err := f.GetTranscription(ctx, id)
		if err != nil {
			return nil, err
		}
		if tr.Status == model.StatusCompleted || tr.Status == model.StatusFailed {
			return tr, nil
		}

		select {
		case <-ctx.Done():
			return nil, ErrTerminalTimeout
		case <-ticker.C:
		}
	}
}

type createSummaryRequest struct {
	TranscriptionID    string `json:"transcription_id"`
	SystemPromptSuffix string `json:"system_prompt_suffix"`
}

type summaryResponse struct {
	SummaryText string `json:"summary_text"`
}

// RequestHTMLSummary POSTs /api/summaries with the HTML-format suffix
// appended, per spec.md §4.8d and §4.9.
func (f *FrontendClient) RequestHTMLSummary(ctx context.Context, transcriptionID, htmlSuffix string) (string, error) {
	body, err := json.Marshal(createSummaryRequest{TranscriptionID: transcriptionID, SystemPromptSuffix: htmlSuffix})
	if err != nil {
		return "", fmt.Errorf("marshal summary request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/api/summaries", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request summary: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		data, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("frontend summary failed: %d: %s", resp.StatusCode, string(data))
	}

	var sr summaryResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return "", fmt.Errorf("decode summary response: %w", err)
	}
	return sr.SummaryText, nil
}

// ListTagNames fetches the frontend's current tag set, used to derive a
// subject-word tag per spec.md §4.8c.
func (f *FrontendClient) ListTagNames(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/api/config/tags", nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("frontend list tags failed: %d: %s", resp.StatusCode, string(data))
	}

	var payload struct {
		Tags []string `json:"tags"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode tag list: %w", err)
	}
	return payload.Tags, nil
}

type tagConfigResponse struct {
	DestinationEmails []string `json:"destination_emails"`
}

// DestinationEmails fetches tag's configured override recipients, per
// spec.md §4.7/§6's `GET /tags/{name}`. A 404 (tag renamed or deleted
// between resolution and delivery) is treated as no override, not an
// error.
func (f *FrontendClient) DestinationEmails(ctx context.Context, tag string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/api/tags/"+tag, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get tag config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("frontend get tag config failed: %d: %s", resp.StatusCode, string(data))
	}

	var cfg tagConfigResponse
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode tag config: %w", err)
	}
	return cfg.DestinationEmails, nil
}

type createEpisodeSourceRequest struct {
	TranscriptionID string  `json:"transcription_id"`
	SourceText      string  `json:"source_text"`
	MatchedURL      string  `json:"matched_url"`
	EmailSubject    *string `json:"email_subject,omitempty"`
	EmailFrom       *string `json:"email_from,omitempty"`
}

// CreateEpisodeSource POSTs /episode-sources to link an email body to the
// resulting transcription.
func (f *FrontendClient) CreateEpisodeSource(ctx context.Context, transcriptionID, sourceText, matchedURL string, subject, from *string) error {
	body, err := json.Marshal(createEpisodeSourceRequest{
		TranscriptionID: transcriptionID,
		SourceText:      sourceText,
		MatchedURL:      matchedURL,
		EmailSubject:    subject,
		EmailFrom:       from,
	})
	if err != nil {
		return fmt.Errorf("marshal episode source request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/api/episode-sources", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("create episode source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("frontend episode source failed: %d: %s", resp.StatusCode, string(data))
	}
	return nil
}
