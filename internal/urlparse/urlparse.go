// Package urlparse classifies a submitted URL into a canonical
// {source_type, canonical_id, source_url} per the rules in spec.md §4.1.
package urlparse

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"scribe/internal/model"
)

// ErrInvalid classifies any URL that could not be parsed or matched.
var ErrInvalid = errors.New("invalid or unsupported url")

// Parsed is the outcome of a successful parse.
type Parsed struct {
	SourceType  model.SourceType
	CanonicalID string
	SourceURL   string
}

var (
	youtubeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
	appleEpisodeID   = regexp.MustCompile(`^[0-9]+$`)
	addictEpisodeRe  = regexp.MustCompile(`(?i)^/[^/]+/episode/([0-9]+)`)
)

// Parse classifies u per the ordered rules in spec.md §4.1: YouTube, Apple
// Podcasts, Podcast Addict, then a direct-audio MD5 fallback.
func Parse(rawURL string) (Parsed, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return Parsed{}, fmt.Errorf("%w: missing scheme or host", ErrInvalid)
	}

	host := strings.ToLower(u.Hostname())

	if id, ok := matchYouTube(u, host); ok {
		return Parsed{
			SourceType:  model.SourceYouTube,
			CanonicalID: "youtube_" + id,
			SourceURL:   rawURL,
		}, nil
	}
	if isYouTubeHost(host) {
		return Parsed{}, fmt.Errorf("%w: youtube host without extractable video id", ErrInvalid)
	}

	if id, ok := matchApplePodcasts(u, host); ok {
		return Parsed{
			SourceType:  model.SourceApplePodcasts,
			CanonicalID: "apple_podcasts_" + id,
			SourceURL:   rawURL,
		}, nil
	}
	if strings.Contains(host, "podcasts.apple.com") {
		return Parsed{}, fmt.Errorf("%w: apple podcasts host without numeric episode id", ErrInvalid)
	}

	if id, ok := matchPodcastAddict(u, host); ok {
		return Parsed{
			SourceType:  model.SourcePodcastAddict,
			CanonicalID: "podcast_addict_" + id,
			SourceURL:   rawURL,
		}, nil
	}

	hash := md5.Sum([]byte(rawURL))
	return Parsed{
		SourceType:  model.SourceDirectAudio,
		CanonicalID: "direct_audio_" + hex.EncodeToString(hash[:])[:12],
		SourceURL:   rawURL,
	}, nil
}

func isYouTubeHost(host string) bool {
	switch host {
	case "youtube.com", "www.youtube.com", "m.youtube.com", "youtu.be":
		return true
	}
	return false
}

func matchYouTube(u *url.URL, host string) (string, bool) {
	if !isYouTubeHost(host) {
		return "", false
	}

	if host == "youtu.be" {
		id := strings.Trim(u.Path, "/")
		if youtubeIDPattern.MatchString(id) {
			return id, true
		}
		return "", false
	}

	path := u.Path
	switch {
	case path == "/watch":
		id := u.Query().Get("v")
		if youtubeIDPattern.MatchString(id) {
			return id, true
		}
	case strings.HasPrefix(path, "/embed/"):
		id := strings.TrimPrefix(path, "/embed/")
		id = strings.SplitN(id, "/", 2)[0]
		if youtubeIDPattern.MatchString(id) {
			return id, true
		}
	case strings.HasPrefix(path, "/live/"):
		id := strings.TrimPrefix(path, "/live/")
		id = strings.SplitN(id, "/", 2)[0]
		if youtubeIDPattern.MatchString(id) {
			return id, true
		}
	case strings.HasPrefix(path, "/shorts/"):
		id := strings.TrimPrefix(path, "/shorts/")
		id = strings.SplitN(id, "/", 2)[0]
		if youtubeIDPattern.MatchString(id) {
			return id, true
		}
	}
	return "", false
}

func matchApplePodcasts(u *url.URL, host string) (string, bool) {
	if !strings.Contains(host, "podcasts.apple.com") {
		return "", false
	}

	if i := u.Query().Get("i"); i != "" && appleEpisodeID.MatchString(i) {
		return i, true
	}

	// Fallback: /id<N> appears as a path segment.
	for _, seg := range strings.Split(u.Path, "/") {
		if strings.HasPrefix(seg, "id") {
			rest := strings.TrimPrefix(seg, "id")
			if appleEpisodeID.MatchString(rest) {
				return rest, true
			}
		}
	}
	return "", false
}

func matchPodcastAddict(u *url.URL, host string) (string, bool) {
	if !strings.Contains(strings.ToLower(host), "podcastaddict.com") {
		return "", false
	}
	m := addictEpisodeRe.FindStringSubmatch(u.Path)
	if m == nil {
		return "", false
	}
	return m[1], true
}
