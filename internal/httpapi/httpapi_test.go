package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scribe/internal/artifact"
	"scribe/internal/audiocache"
	"scribe/internal/downloader"
	"scribe/internal/model"
	"scribe/internal/orchestrator"
	"scribe/internal/push"
	"scribe/internal/store"
	"scribe/internal/tagconfig"
	"scribe/internal/transcriber"
)

func fixtureTranscription(id string) *model.Transcription {
	return &model.Transcription{
		ID:         id,
		SourceType: model.SourcePodcastAddict,
		SourceURL:  "https://podcastaddict.com/show/episode/" + id,
		Status:     model.StatusPending,
		CreatedAt:  time.Now().UTC(),
	}
}

func newTestRouter(t *testing.T, asrURL string) (*gin.Engine, *store.Store, *tagconfig.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dataDir := t.TempDir()
	configDir := t.TempDir()

	st, err := store.Open(filepath.Join(dataDir, "scribe.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	artifacts := artifact.New(dataDir)
	cache := audiocache.New(dataDir)
	dl := downloader.New(cache, 10*1024*1024, time.Second, "yt-dlp")
	tc := transcriber.New(asrURL, 5*time.Millisecond)
	hub := push.NewHub(st.GetTranscription)
	done := make(chan struct{})
	go hub.Run(done)
	t.Cleanup(func() { close(done) })

	tcfg, err := tagconfig.New(configDir)
	require.NoError(t, err)

	o := orchestrator.New(st, artifacts, cache, dl, tc, hub, nil, nil, orchestrator.Options{
		DownloadTimeout:   time.Second,
		TranscribeTimeout: time.Second,
		AudioCacheDays:    7,
		MaxAudioBytes:     10 * 1024 * 1024,
	})

	r := gin.New()
	SetupRoutes(r, Deps{Store: st, Artifacts: artifacts, Orchestrator: o, Hub: hub, TagConfig: tcfg})

	return r, st, tcfg
}

func fakeTranscriberServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/transcribe", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"job_id": "job-1"})
	})
	mux.HandleFunc("/jobs/job-1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":   "completed",
			"language": "en",
			"segments": []map[string]any{
				{"id": 0, "start": 0.0, "end": 1.0, "text": "Hello."},
			},
		})
	})
	return httptest.NewServer(mux)
}

func directAudioServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("fake-audio-bytes"))
	}))
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	r, _, _ := newTestRouter(t, "http://unused")
	w := doJSON(t, r, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"healthy"`)
}

func TestSubmitAndGetTranscription(t *testing.T) {
	asr := fakeTranscriberServer(t)
	defer asr.Close()
	audio := directAudioServer(t)
	defer audio.Close()

	r, st, _ := newTestRouter(t, asr.URL)

	w := doJSON(t, r, http.MethodPost, "/api/transcribe", SubmitRequest{URL: audio.URL + "/ep.mp3", Tags: []string{"News"}})
	require.Equal(t, http.StatusAccepted, w.Code)

	var tr map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tr))
	id := tr["id"].(string)

	require.Eventually(t, func() bool {
		got, err := st.GetTranscription(context.Background(), id)
		return err == nil && got.Status == "completed"
	}, 2*time.Second, 10*time.Millisecond)

	w = doJSON(t, r, http.MethodGet, "/api/transcriptions/"+id, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"completed"`)
}

func TestSubmitDuplicateReturns409(t *testing.T) {
	asr := fakeTranscriberServer(t)
	defer asr.Close()
	r, _, _ := newTestRouter(t, asr.URL)

	w := doJSON(t, r, http.MethodPost, "/api/transcribe", SubmitRequest{URL: "https://youtu.be/dup1234567a"})
	require.Equal(t, http.StatusAccepted, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/transcribe", SubmitRequest{URL: "https://youtu.be/dup1234567a"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "youtube_dup1234567a")
}

func TestSubmitForceRetriesFailedRecord(t *testing.T) {
	asr := fakeTranscriberServer(t)
	defer asr.Close()
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	r, st, _ := newTestRouter(t, asr.URL)

	w := doJSON(t, r, http.MethodPost, "/api/transcribe", SubmitRequest{URL: failing.URL + "/ep.mp3"})
	require.Equal(t, http.StatusAccepted, w.Code)
	var tr model.Transcription
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tr))

	require.Eventually(t, func() bool {
		got, err := st.GetTranscription(context.Background(), tr.ID)
		return err == nil && got.Status == model.StatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	w = doJSON(t, r, http.MethodPost, "/api/transcribe", SubmitRequest{URL: failing.URL + "/ep.mp3"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/transcribe", SubmitRequest{URL: failing.URL + "/ep.mp3", Force: true})
	require.Equal(t, http.StatusAccepted, w.Code)

	got, err := st.GetTranscription(context.Background(), tr.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, tr.ID, got.ID)
}

func TestSubmitInvalidURLReturns400(t *testing.T) {
	asr := fakeTranscriberServer(t)
	defer asr.Close()
	r, _, _ := newTestRouter(t, asr.URL)

	w := doJSON(t, r, http.MethodPost, "/api/transcribe", SubmitRequest{URL: "not a url"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetTranscriptionNotFound(t *testing.T) {
	r, _, _ := newTestRouter(t, "http://unused")
	w := doJSON(t, r, http.MethodGet, "/api/transcriptions/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPatchTagsNormalizes(t *testing.T) {
	asr := fakeTranscriberServer(t)
	defer asr.Close()
	r, st, _ := newTestRouter(t, asr.URL)

	require.NoError(t, st.CreateTranscription(context.Background(), fixtureTranscription("podcast_addict_tagtest001")))

	w := doJSON(t, r, http.MethodPatch, "/api/transcriptions/podcast_addict_tagtest001", PatchTagsRequest{Tags: []string{"News ", "NEWS", "Tech"}})
	require.Equal(t, http.StatusOK, w.Code)

	var tr map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tr))
	tags := tr["tags"].([]any)
	require.Len(t, tags, 2)
	assert.Equal(t, "news", tags[0])
	assert.Equal(t, "tech", tags[1])
}

func TestListTagConfigsAndGetTag(t *testing.T) {
	r, _, _ := newTestRouter(t, "http://unused")

	w := doJSON(t, r, http.MethodGet, "/api/config/tags", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/tags/default", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/config/tags/missing-tag", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConfigSecretsNeverExposeValues(t *testing.T) {
	r, _, _ := newTestRouter(t, "http://unused")

	w := doJSON(t, r, http.MethodPost, "/api/config/secrets/openai", PutSecretRequest{Value: "sk-super-secret"})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/config/secrets", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "sk-super-secret")
	assert.Contains(t, w.Body.String(), "openai")
}
