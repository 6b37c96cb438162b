// Package artifact manages on-disk JSON transcript artifacts and their
// read-only SRT/TXT export projections, per spec.md §4.2.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"scribe/internal/model"
)

// ErrNotFound is returned when no artifact exists for an ID.
var ErrNotFound = errors.New("artifact not found")

// Store manages artifact files rooted at a base directory.
type Store struct {
	root string
}

// New creates an artifact Store rooted at dataDir/transcriptions.
func New(dataDir string) *Store {
	return &Store{root: filepath.Join(dataDir, "transcriptions")}
}

func (s *Store) pathFor(id string, year int, month time.Month) string {
	return filepath.Join(s.root, fmt.Sprintf("%04d", year), fmt.Sprintf("%02d", int(month)), id+".json")
}

// Save writes the artifact under <root>/<YYYY>/<MM>/<id>.json, creating
// parent directories as needed.
func (s *Store) Save(id string, a *model.TranscriptArtifact) (string, error) {
	when := a.CreatedAt
	if when.IsZero() {
		when = time.Now().UTC()
	}
	path := s.pathFor(id, when.Year(), when.Month())
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}

	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal artifact: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("rename artifact into place: %w", err)
	}
	return path, nil
}

// Load reads the stored artifact by scanning year/month subdirectories for
// id.json. Returns ErrNotFound if absent — never a raised failure.
func (s *Store) Load(id string) (*model.TranscriptArtifact, string, error) {
	path, err := s.find(id)
	if err != nil {
		return nil, "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("read artifact: %w", err)
	}

	var a model.TranscriptArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, "", fmt.Errorf("unmarshal artifact: %w", err)
	}
	return &a, path, nil
}

// LoadRaw returns the artifact bytes verbatim, for the JSON export endpoint.
func (s *Store) LoadRaw(id string) ([]byte, error) {
	path, err := s.find(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// Delete removes the artifact file across any year/month subdirectory.
// A missing artifact is not an error.
func (s *Store) Delete(id string) error {
	path, err := s.find(id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *Store) find(id string) (string, error) {
	years, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", err
	}
	for _, y := range years {
		if !y.IsDir() {
			continue
		}
		months, err := os.ReadDir(filepath.Join(s.root, y.Name()))
		if err != nil {
			continue
		}
		for _, m := range months {
			if !m.IsDir() {
				continue
			}
			candidate := filepath.Join(s.root, y.Name(), m.Name(), id+".json")
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
	}
	return "", ErrNotFound
}

// ExportSRT renders an artifact's segments as SRT.
func ExportSRT(segments []model.Segment) string {
	var b strings.Builder
	for i, seg := range segments {
		fmt.Fprintf(&b, "%d\n", i+1)
		fmt.Fprintf(&b, "%s --> %s\n", srtTimestamp(seg.Start), srtTimestamp(seg.End))
		fmt.Fprintf(&b, "%s\n\n", seg.Text)
	}
	return b.String()
}

func srtTimestamp(seconds float64) string {
	total := int64(seconds * 1000)
	ms := total % 1000
	total /= 1000
	s := total % 60
	total /= 60
	m := total % 60
	total /= 60
	h := total
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// ExportTXT composes segments into readable prose: segment texts are
// space-joined; at each segment whose trimmed text ends in '.', '?', or
// '!', a paragraph break is inserted if the gap to the next segment's
// start is >= 2.0 seconds. Any remaining buffered text is flushed as a
// final paragraph.
func ExportTXT(segments []model.Segment) string {
	var paragraphs []string
	var buf strings.Builder

	flush := func() {
		if buf.Len() > 0 {
			paragraphs = append(paragraphs, buf.String())
			buf.Reset()
		}
	}

	for i, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if buf.Len() > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(text)

		if endsSentence(text) && i+1 < len(segments) {
			gap := segments[i+1].Start - seg.End
			if gap >= 2.0 {
				flush()
			}
		}
	}
	flush()

	return strings.Join(paragraphs, "\n\n")
}

func endsSentence(s string) bool {
	if s == "" {
		return false
	}
	last := s[len(s)-1]
	return last == '.' || last == '?' || last == '!'
}
