// Package mailext extracts candidate transcription URLs from mail bodies
// and degrades HTML bodies to plain text, per spec.md §4.8(a) and the
// episode-sources HTML-fallback rule.
package mailext

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

var directAudioExtensions = []string{"mp3", "m4a", "wav", "ogg", "flac", "aac"}

// ExtractPlainText returns every http(s) URL found in a text/plain body, in
// order of first appearance, deduplicated.
func ExtractPlainText(body string) []string {
	return dedup(urlPattern.FindAllString(body, -1))
}

// ExtractHTML returns every http(s) URL found in anchor hrefs and in the
// visible text of a text/html body, in document order, deduplicated.
func ExtractHTML(body string) []string {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil
	}

	var urls []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			for _, attr := range n.Attr {
				if attr.Key == "href" && urlPattern.MatchString(attr.Val) {
					urls = append(urls, urlPattern.FindString(attr.Val))
				}
			}
		}
		if n.Type == html.TextNode {
			urls = append(urls, urlPattern.FindAllString(n.Data, -1)...)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return dedup(urls)
}

// ToPlainText renders an HTML document's visible text, collapsing runs of
// whitespace, for bodies that carry no text/plain alternative.
func ToPlainText(body string) string {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return body
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		if n.DataAtom == atom.Br || n.DataAtom == atom.P || n.DataAtom == atom.Div {
			b.WriteString("\n")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	lines := strings.Split(b.String(), "\n")
	var out []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func dedup(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimRight(u, ").,;!?")
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

var (
	youtubeHostPattern       = regexp.MustCompile(`(?i)(^|\.)(youtube\.com|youtu\.be)$`)
	applePodcastsHostPattern = regexp.MustCompile(`(?i)podcasts\.apple\.com$`)
	podcastAddictHostPattern = regexp.MustCompile(`(?i)podcastaddict\.com$`)
)

// IsTranscribable reports whether rawURL matches one of the generic
// inbox's allowed patterns: YouTube, Apple Podcasts, Podcast Addict, or a
// direct-audio file extension.
func IsTranscribable(rawURL string) bool {
	host := hostOf(rawURL)
	if host == "" {
		return false
	}
	if youtubeHostPattern.MatchString(host) || applePodcastsHostPattern.MatchString(host) || podcastAddictHostPattern.MatchString(host) {
		return true
	}
	return hasDirectAudioExtension(rawURL)
}

// IsEpisodeSourceURL reports whether rawURL is eligible for the
// episode-sources pipeline: Apple Podcasts or YouTube only, never direct
// audio or Podcast Addict.
func IsEpisodeSourceURL(rawURL string) bool {
	host := hostOf(rawURL)
	if host == "" {
		return false
	}
	return youtubeHostPattern.MatchString(host) || applePodcastsHostPattern.MatchString(host)
}

func hasDirectAudioExtension(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	for _, ext := range directAudioExtensions {
		if strings.HasSuffix(lower, "."+ext) {
			return true
		}
	}
	return false
}

func hostOf(rawURL string) string {
	const schemeSep = "://"
	i := strings.Index(rawURL, schemeSep)
	if i < 0 {
		return ""
	}
	rest := rawURL[i+len(schemeSep):]
	end := strings.IndexAny(rest, "/?#")
	if end >= 0 {
		rest = rest[:end]
	}
	if at := strings.IndexByte(rest, '@'); at >= 0 {
		rest = rest[at+1:]
	}
	if colon := strings.IndexByte(rest, ':'); colon >= 0 {
		rest = rest[:colon]
	}
	return rest
}
