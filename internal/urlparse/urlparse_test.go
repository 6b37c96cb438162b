package urlparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scribe/internal/model"
)

func TestParse_YouTubeForms(t *testing.T) {
	cases := []string{
		"https://www.youtube.com/watch?v=abc12345678",
		"https://youtu.be/abc12345678",
		"https://youtube.com/embed/abc12345678",
		"https://youtube.com/live/abc12345678",
	}
	for _, u := range cases {
		p, err := Parse(u)
		require.NoError(t, err, u)
		assert.Equal(t, model.SourceYouTube, p.SourceType)
		assert.Equal(t, "youtube_abc12345678", p.CanonicalID)
	}
}

func TestParse_ApplePodcasts(t *testing.T) {
	p, err := Parse("https://podcasts.apple.com/us/podcast/example/id1234?i=987654321")
	require.NoError(t, err)
	assert.Equal(t, model.SourceApplePodcasts, p.SourceType)
	assert.Equal(t, "apple_podcasts_987654321", p.CanonicalID)

	p2, err := Parse("https://podcasts.apple.com/us/podcast/example/id1234")
	require.NoError(t, err)
	assert.Equal(t, "apple_podcasts_1234", p2.CanonicalID)
}

func TestParse_PodcastAddict_CaseInsensitive(t *testing.T) {
	p, err := Parse("https://podcastaddict.com/Hard-Fork/episode/215066511")
	require.NoError(t, err)
	assert.Equal(t, "podcast_addict_215066511", p.CanonicalID)

	p2, err := Parse("https://PodcastAddict.com/Hard-Fork/Episode/215066511")
	require.NoError(t, err)
	assert.Equal(t, "podcast_addict_215066511", p2.CanonicalID)
}

func TestParse_DirectAudioIsDeterministic(t *testing.T) {
	u := "https://example.com/some/file.mp3"
	p1, err := Parse(u)
	require.NoError(t, err)
	p2, err := Parse(u)
	require.NoError(t, err)
	assert.Equal(t, p1.CanonicalID, p2.CanonicalID)
	assert.Equal(t, model.SourceDirectAudio, p1.SourceType)
}

func TestParse_Invalid(t *testing.T) {
	cases := []string{
		"not-a-url",
		"https://youtube.com/watch?v=short",
		"https://podcasts.apple.com/us/podcast/example",
	}
	for _, u := range cases {
		_, err := Parse(u)
		assert.ErrorIs(t, err, ErrInvalid, u)
	}
}
