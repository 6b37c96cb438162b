// Package downloader implements the audio acquisition contract from
// spec.md §4.3: given a (url, canonical_id) pair, deposit a single audio
// file into the audio cache and return its path plus extracted metadata.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"scribe/internal/audiocache"
	"scribe/internal/model"
)

// Failure kinds, all recoverable — the orchestrator surfaces these as a
// failed transcription, never a panic past this package's boundary.
var (
	ErrSizeExceeded = errors.New("audio exceeds configured max size")
	ErrTimeout      = errors.New("download timed out")
	ErrUnsupported  = errors.New("unsupported source")
	ErrNetwork      = errors.New("network error fetching audio")
)

// Metadata describes what the downloader learned about the source media.
type Metadata struct {
	Title       *string
	Channel     *string
	Duration    *float64
	UploadDate  *string
	Thumbnail   *string
	Description *string
	Format      string
}

// Result is the outcome of a successful download.
type Result struct {
	AudioPath string
	Metadata  Metadata
}

// ExternalFetcher resolves a non-direct-audio URL (YouTube, Apple
// Podcasts, Podcast Addict) to a local audio file plus metadata by
// shelling out to an external resolver binary (e.g. yt-dlp). Kept as an
// interface so tests can substitute a fake without invoking a real
// subprocess, mirroring the teacher's swappable storage.Storage backends.
type ExternalFetcher interface {
	Fetch(ctx context.Context, url, destDirNoExt string) (Result, error)
}

// Downloader acquires audio for a parsed submission and writes it into the
// audio cache.
type Downloader struct {
	cache    *audiocache.Cache
	client   *http.Client
	maxBytes int64
	timeout  time.Duration
	external ExternalFetcher
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithExternalFetcher overrides the default yt-dlp-backed fetcher.
func WithExternalFetcher(f ExternalFetcher) Option {
	return func(d *Downloader) { d.external = f }
}

// New builds a Downloader bounded by maxBytes and timeout, writing into
// cache. If no ExternalFetcher is supplied, a yt-dlp subprocess wrapper is
// used for non-direct-audio sources.
func New(cache *audiocache.Cache, maxBytes int64, timeout time.Duration, ytDlpPath string, opts ...Option) *Downloader {
	d := &Downloader{
		cache:    cache,
		client:   &http.Client{},
		maxBytes: maxBytes,
		timeout:  timeout,
		external: &ytDlpFetcher{binPath: ytDlpPath},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Download acquires audio for sourceType/sourceURL under canonical id.
func (d *Downloader) Download(ctx context.Context, sourceType model.SourceType, sourceURL, id string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if sourceType == model.SourceDirectAudio {
		return d.downloadDirect(ctx, sourceURL, id)
	}
	if d.external == nil {
		return Result{}, fmt.Errorf("%w: no external fetcher configured for %s", ErrUnsupported, sourceType)
	}

	destDirNoExt, err := d.cache.Path(id, "")
	if err != nil {
		return Result{}, err
	}
	destDirNoExt = strings.TrimSuffix(destDirNoExt, ".")

	res, err := d.external.Fetch(ctx, sourceURL, destDirNoExt)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return Result{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return res, nil
}

func (d *Downloader) downloadDirect(ctx context.Context, sourceURL, id string) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return Result{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("%w: http status %d", ErrNetwork, resp.StatusCode)
	}

	if resp.ContentLength > 0 && resp.ContentLength > d.maxBytes {
		return Result{}, fmt.Errorf("%w: content-length %d exceeds limit %d", ErrSizeExceeded, resp.ContentLength, d.maxBytes)
	}

	ext := extensionFromURLOrContentType(sourceURL, resp.Header.Get("Content-Type"))
	path, err := d.cache.Path(id, ext)
	if err != nil {
		return Result{}, err
	}

	limited := io.LimitReader(resp.Body, d.maxBytes+1)
	n, err := writeAtomically(path, limited)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if n > d.maxBytes {
		_ = d.cache.Remove(path)
		return Result{}, fmt.Errorf("%w: downloaded %d bytes exceeds limit %d", ErrSizeExceeded, n, d.maxBytes)
	}

	return Result{
		AudioPath: path,
		Metadata:  Metadata{Format: ext},
	}, nil
}

func writeAtomically(path string, r io.Reader) (int64, error) {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, err
	}
	n, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if copyErr != nil {
		return n, copyErr
	}
	if closeErr != nil {
		return n, closeErr
	}
	if err := os.Rename(tmp, path); err != nil {
		return n, err
	}
	return n, nil
}

func extensionFromURLOrContentType(rawURL, contentType string) string {
	ext := strings.TrimPrefix(filepath.Ext(rawURL), ".")
	ext = strings.SplitN(ext, "?", 2)[0]
	if ext != "" {
		return ext
	}
	switch {
	case strings.Contains(contentType, "mpeg"):
		return "mp3"
	case strings.Contains(contentType, "wav"):
		return "wav"
	case strings.Contains(contentType, "ogg"):
		return "ogg"
	default:
		return "audio"
	}
}

// ytDlpFetcher shells out to an external resolver binary. This is the one
// concession to a real-world dependency the spec explicitly scopes out of
// core: the ASR engine is an external collaborator, and so, in practice,
// is the extractor that turns a YouTube/Apple/PodcastAddict page into raw
// audio bytes.
type ytDlpFetcher struct {
	binPath string
}

func (f *ytDlpFetcher) Fetch(ctx context.Context, url, destDirNoExt string) (Result, error) {
	outputTemplate := destDirNoExt + ".%(ext)s"
	cmd := exec.CommandContext(ctx, f.binPath,
		"--no-playlist",
		"-x",
		"--audio-format", "mp3",
		"--print", "after_move:filepath",
		"-o", outputTemplate,
		url,
	)
	out, err := cmd.Output()
	if err != nil {
		return Result{}, fmt.Errorf("external fetch failed: %w", err)
	}
	path := strings.TrimSpace(string(out))
	if path == "" {
		return Result{}, fmt.Errorf("external fetch produced no output path")
	}
	return Result{
		AudioPath: path,
		Metadata:  Metadata{Format: strings.TrimPrefix(filepath.Ext(path), ".")},
	}, nil
}
