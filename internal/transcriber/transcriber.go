// Package transcriber implements the client contract for the external ASR
// service described in spec.md §4.4: multipart upload, job polling, and a
// best-effort startup health probe.
package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"scribe/internal/model"
)

// ErrFailed is returned when the ASR service reports a terminal failed job.
var ErrFailed = errors.New("transcription job failed")

// ErrTimeout is returned when the terminal wait exceeds the configured
// timeout without the job reaching a terminal state.
var ErrTimeout = errors.New("transcription job timed out")

// Result is the terminal payload of a completed ASR job.
type Result struct {
	Language string          `json:"language"`
	Segments []model.Segment `json:"segments"`
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

type jobStatusResponse struct {
	Status   string          `json:"status"`
	Error    string          `json:"error,omitempty"`
	Language string          `json:"language,omitempty"`
	Segments []model.Segment `json:"segments,omitempty"`
}

// Client talks to the external transcriber_url ASR service.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
}

// New builds a Client bounded by the given overall job timeout (applied by
// the caller via context) and poll interval.
func New(baseURL string, pollInterval time.Duration) *Client {
	return &Client{
		baseURL:      baseURL,
		httpClient:   &http.Client{},
		pollInterval: pollInterval,
	}
}

// HealthCheck probes GET /health. Failures are logged by the caller at
// startup but never block process start, per spec.md §4.4.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("transcriber health check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("transcriber health check: status %d", resp.StatusCode)
	}
	return nil
}

// Submit posts the audio file at audioPath to /transcribe and returns the
// assigned job id.
func (c *Client) Submit(ctx context.Context, audioPath string) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return "", fmt.Errorf("create multipart field: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("copy audio into multipart body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcribe", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit transcription job: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("submit transcription job: status %d", resp.StatusCode)
	}

	var sr submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	return sr.JobID, nil
}

// WaitForCompletion polls GET /jobs/<id> at pollInterval until the job
// reaches a terminal state or ctx is done. The caller is responsible for
// bounding ctx to the configured terminal-wait timeout (default 3600s).
func (c *Client) WaitForCompletion(ctx context.Context, jobID string) (Result, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		status, err := c.pollOnce(ctx, jobID)
		if err != nil {
			return Result{}, err
		}

		switch status.Status {
		case "completed":
			return Result{Language: status.Language, Segments: status.Segments}, nil
		case "failed":
			msg := status.Error
			if msg == "" {
				msg = "unspecified ASR failure"
			}
			return Result{}, fmt.Errorf("%w: %s", ErrFailed, msg)
		default:
			slog.Debug("transcriber job still running", "job_id", jobID, "status", status.Status)
		}

		select {
		case <-ctx.Done():
			return Result{}, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) pollOnce(ctx context.Context, jobID string) (jobStatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/jobs/"+jobID, nil)
	if err != nil {
		return jobStatusResponse{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return jobStatusResponse{}, fmt.Errorf("poll transcription job: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return jobStatusResponse{}, fmt.Errorf("poll transcription job: status %d", resp.StatusCode)
	}

	var js jobStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&js); err != nil {
		return jobStatusResponse{}, fmt.Errorf("decode job status: %w", err)
	}
	return js, nil
}
