package transcriber

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitAndWaitForCompletion_Success(t *testing.T) {
	var polls int
	mux := http.NewServeMux()
	mux.HandleFunc("/transcribe", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(submitResponse{JobID: "job-1"})
	})
	mux.HandleFunc("/jobs/job-1", func(w http.ResponseWriter, r *http.Request) {
		polls++
		if polls < 2 {
			_ = json.NewEncoder(w).Encode(jobStatusResponse{Status: "processing"})
			return
		}
		_ = json.NewEncoder(w).Encode(jobStatusResponse{
			Status:   "completed",
			Language: "en",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	audioPath := filepath.Join(t.TempDir(), "audio.mp3")
	require.NoError(t, os.WriteFile(audioPath, []byte("fake"), 0o644))

	c := New(srv.URL, 5*time.Millisecond)
	jobID, err := c.Submit(context.Background(), audioPath)
	require.NoError(t, err)
	assert.Equal(t, "job-1", jobID)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	res, err := c.WaitForCompletion(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, "en", res.Language)
}

func TestWaitForCompletion_Failed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/jobs/job-2", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(jobStatusResponse{Status: "failed", Error: "asr crashed"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL, 5*time.Millisecond)
	_, err := c.WaitForCompletion(context.Background(), "job-2")
	require.ErrorIs(t, err, ErrFailed)
}

func TestWaitForCompletion_Timeout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/jobs/job-3", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(jobStatusResponse{Status: "processing"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL, 5*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.WaitForCompletion(ctx, "job-3")
	require.ErrorIs(t, err, ErrTimeout)
}

func TestHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	require.NoError(t, c.HealthCheck(context.Background()))
}
