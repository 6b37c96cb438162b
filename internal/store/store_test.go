package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scribe/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleTranscription(id string) *model.Transcription {
	title := "How Go Got Its Gopher"
	channel := "Golang Weekly"
	fullText := "a deep dive into gopher history and go concurrency patterns"
	return &model.Transcription{
		ID:         id,
		SourceType: model.SourceYouTube,
		SourceURL:  "https://youtu.be/" + id,
		Title:      &title,
		Channel:    &channel,
		FullText:   &fullText,
		Status:     model.StatusCompleted,
		Progress:   model.ProgressCompleted,
		Tags:       []string{"go", "history"},
	}
}

func TestCreateGetDeleteTranscription(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	tr := sampleTranscription("youtube_abc123456789")
	require.NoError(t, s.CreateTranscription(ctx, tr))

	got, err := s.GetTranscription(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, "How Go Got Its Gopher", *got.Title)
	assert.Equal(t, []string{"go", "history"}, got.Tags)
	assert.Equal(t, model.StatusCompleted, got.Status)

	require.NoError(t, s.DeleteTranscription(ctx, tr.ID))
	_, err = s.GetTranscription(ctx, tr.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateTranscription_DuplicateID(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	tr := sampleTranscription("youtube_dup0000000001")
	require.NoError(t, s.CreateTranscription(ctx, tr))

	dup := sampleTranscription("youtube_dup0000000001")
	err := s.CreateTranscription(ctx, dup)
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestUpdateTranscription_NotFound(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	tr := sampleTranscription("youtube_missing000001")
	err := s.UpdateTranscription(ctx, tr)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateTags(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	tr := sampleTranscription("youtube_tagtest000001")
	require.NoError(t, s.CreateTranscription(ctx, tr))

	require.NoError(t, s.UpdateTags(ctx, tr.ID, []string{"podcast"}))
	got, err := s.GetTranscription(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"podcast"}, got.Tags)
}

func TestListTranscriptions_FilterByStatusAndTag(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	a := sampleTranscription("youtube_listaaa000001")
	b := sampleTranscription("youtube_listbbb000002")
	b.Status = model.StatusFailed
	b.Tags = []string{"news"}

	require.NoError(t, s.CreateTranscription(ctx, a))
	require.NoError(t, s.CreateTranscription(ctx, b))

	results, total, err := s.ListTranscriptions(ctx, ListFilter{Status: "completed"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, results, 1)
	assert.Equal(t, a.ID, results[0].ID)

	results, total, err = s.ListTranscriptions(ctx, ListFilter{Tag: "news"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, results, 1)
	assert.Equal(t, b.ID, results[0].ID)
}

func TestListTranscriptions_Search(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	a := sampleTranscription("youtube_searcha000001")
	b := sampleTranscription("youtube_searchb000002")
	other := "a completely unrelated cooking episode about pasta"
	b.Title = strPtr("Pasta Night")
	b.FullText = &other

	require.NoError(t, s.CreateTranscription(ctx, a))
	require.NoError(t, s.CreateTranscription(ctx, b))

	results, total, err := s.ListTranscriptions(ctx, ListFilter{Search: "gopher"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, results, 1)
	assert.Equal(t, a.ID, results[0].ID)
}

func strPtr(s string) *string { return &s }

func TestListTags_AlphabeticalAndDistinct(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	a := sampleTranscription("youtube_tagsaaa000001")
	a.Tags = []string{"zeta", "go"}
	b := sampleTranscription("youtube_tagsbbb000002")
	b.Tags = []string{"go", "alpha"}

	require.NoError(t, s.CreateTranscription(ctx, a))
	require.NoError(t, s.CreateTranscription(ctx, b))

	tags, err := s.ListTags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "go", "zeta"}, tags)
}

func TestSummaryCRUD(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	tr := sampleTranscription("youtube_summary000001")
	require.NoError(t, s.CreateTranscription(ctx, tr))

	sm := &model.Summary{
		ID:              "sum_1",
		TranscriptionID: tr.ID,
		APIEndpoint:     "https://api.openai.com/v1",
		Model:           "gpt-4o-mini",
		Prompt:          "Summarize this",
		SummaryText:     "A short summary.",
		ConfigSource:    "default",
	}
	require.NoError(t, s.CreateSummary(ctx, sm))

	got, err := s.GetSummary(ctx, sm.ID)
	require.NoError(t, err)
	assert.Equal(t, "A short summary.", got.SummaryText)

	list, err := s.ListSummariesByTranscription(ctx, tr.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, s.DeleteSummary(ctx, sm.ID))
	_, err = s.GetSummary(ctx, sm.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateEpisodeSource_UnknownTranscription(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	es := &model.EpisodeSource{
		ID:              "ep_1",
		TranscriptionID: "youtube_doesnotexist1",
		SourceText:      "check this out",
		MatchedURL:      "https://youtu.be/doesnotexist1",
	}
	err := s.CreateEpisodeSource(ctx, es)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteTranscription_CascadesSummaries(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	tr := sampleTranscription("youtube_cascade000001")
	require.NoError(t, s.CreateTranscription(ctx, tr))
	sm := &model.Summary{ID: "sum_cascade", TranscriptionID: tr.ID, APIEndpoint: "e", Model: "m", Prompt: "p", SummaryText: "s", ConfigSource: "default"}
	require.NoError(t, s.CreateSummary(ctx, sm))

	require.NoError(t, s.DeleteTranscription(ctx, tr.ID))

	_, err := s.GetSummary(ctx, sm.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
