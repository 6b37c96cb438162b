package mailext

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractPlainText_DedupesPreservingOrder(t *testing.T) {
	body := "Check this out: https://youtu.be/abc12345678 and also https://youtu.be/abc12345678 plus https://example.com/ep.mp3."
	urls := ExtractPlainText(body)
	assert.Equal(t, []string{"https://youtu.be/abc12345678", "https://example.com/ep.mp3"}, urls)
}

func TestExtractHTML_AnchorsAndText(t *testing.T) {
	body := `<html><body><p>Listen here: <a href="https://podcasts.apple.com/us/podcast/x/id123?i=456">episode</a></p>
	<p>Or paste https://podcastaddict.com/show/episode/987654</p></body></html>`
	urls := ExtractHTML(body)
	assert.Equal(t, []string{
		"https://podcasts.apple.com/us/podcast/x/id123?i=456",
		"https://podcastaddict.com/show/episode/987654",
	}, urls)
}

func TestToPlainText_StripsTagsPreservesLines(t *testing.T) {
	body := `<html><body><p>Hello there</p><div>Second line</div></body></html>`
	text := ToPlainText(body)
	assert.Equal(t, "Hello there\nSecond line", text)
}

func TestIsTranscribable(t *testing.T) {
	cases := []struct {
		url  string
		want bool
	}{
		{"https://youtu.be/abc12345678", true},
		{"https://www.youtube.com/watch?v=abc12345678", true},
		{"https://podcasts.apple.com/us/podcast/x/id123?i=456", true},
		{"https://podcastaddict.com/show/episode/987654", true},
		{"https://example.com/episode.mp3", true},
		{"https://example.com/episode.mp4", false},
		{"https://example.com/blog-post", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, IsTranscribable(tc.url), tc.url)
	}
}

func TestIsEpisodeSourceURL_ExcludesAddictAndDirectAudio(t *testing.T) {
	assert.True(t, IsEpisodeSourceURL("https://youtu.be/abc12345678"))
	assert.True(t, IsEpisodeSourceURL("https://podcasts.apple.com/us/podcast/x/id123?i=456"))
	assert.False(t, IsEpisodeSourceURL("https://podcastaddict.com/show/episode/987654"))
	assert.False(t, IsEpisodeSourceURL("https://example.com/episode.mp3"))
}
