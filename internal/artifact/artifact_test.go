package artifact

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scribe/internal/model"
)

func TestExportTXT_ParagraphsOnGap(t *testing.T) {
	segs := []model.Segment{
		{Start: 0, End: 1, Text: "Hello."},
		{Start: 1, End: 2, Text: "World."},
		{Start: 5, End: 6, Text: "Next."},
	}
	assert.Equal(t, "Hello. World.\n\nNext.", ExportTXT(segs))
}

func TestExportTXT_FlushesTrailingBuffer(t *testing.T) {
	segs := []model.Segment{
		{Start: 0, End: 1, Text: "No terminal punctuation"},
	}
	assert.Equal(t, "No terminal punctuation", ExportTXT(segs))
}

func TestExportSRT_Formatting(t *testing.T) {
	segs := []model.Segment{{ID: 0, Start: 1.5, End: 2.25, Text: "Hi"}}
	assert.Equal(t, "1\n00:00:01,500 --> 00:00:02,250\nHi\n\n", ExportSRT(segs))
}

func TestStore_SaveLoadDelete(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	a := &model.TranscriptArtifact{}
	a.Source.ID = "direct_audio_abcdef123456"
	a.Transcription.FullText = "hello world"
	createdAt, err := time.Parse(time.RFC3339, "2026-03-01T00:00:00Z")
	require.NoError(t, err)
	a.CreatedAt = createdAt

	path, err := s.Save(a.Source.ID, a)
	require.NoError(t, err)
	assert.Contains(t, path, "/2026/03/")

	loaded, _, err := s.Load(a.Source.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello world", loaded.Transcription.FullText)

	require.NoError(t, s.Delete(a.Source.ID))
	_, _, err = s.Load(a.Source.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_LoadUnknownIsNotFoundNotPanic(t *testing.T) {
	s := New(t.TempDir())
	_, _, err := s.Load("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
