// Package tagconfig resolves a transcription's tags to an LLM endpoint per
// spec.md §4.7, backed by two hot-reloadable JSON files: a tag-config map
// and a secret store. Both are written atomically (temp file + rename, via
// renameio) and watched with fsnotify so an operator editing the file on
// disk takes effect without a restart, mirroring the teacher corpus's
// config-reload pattern (ManuGH-xg2g's ConfigHolder).
package tagconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/renameio/v2"

	"scribe/internal/model"
)

// ErrNotFound is returned when a named tag config or secret does not exist.
var ErrNotFound = errors.New("not found")

// ErrCannotDeleteDefault is returned by DeleteTagConfig for the default entry.
var ErrCannotDeleteDefault = errors.New("cannot delete the default tag config")

const defaultTagName = "default"

// Resolved is the effective configuration for one summarization call.
type Resolved struct {
	APIEndpoint       string
	Model             string
	APIKey            string
	SystemPrompt      string
	ConfigSource      string
	DestinationEmails []string
}

// Overrides are caller-supplied fields applied on top of the resolved tag
// config, per spec.md §4.7 step 5.
type Overrides struct {
	APIEndpoint  *string
	Model        *string
	APIKey       *string
	SystemPrompt *string
}

type tagFile struct {
	Default model.TagConfig            `json:"default"`
	Tags    map[string]model.TagConfig `json:"tags"`
}

// Store holds the hot-reloaded tag configs and secret store, each guarded
// by an atomic snapshot pointer so readers never block on a reload.
type Store struct {
	configPath string
	secretPath string

	tags    atomic.Pointer[tagFile]
	secrets atomic.Pointer[map[string]string]

	mu      sync.Mutex // serializes writes to the JSON files
	watcher *fsnotify.Watcher
}

// New loads (or initializes with sensible defaults) the tag config and
// secret store files under configDir.
func New(configDir string) (*Store, error) {
	s := &Store{
		configPath: filepath.Join(configDir, "tags.json"),
		secretPath: filepath.Join(configDir, "secrets.json"),
	}
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	if err := s.reloadTags(); err != nil {
		return nil, err
	}
	if err := s.reloadSecrets(); err != nil {
		return nil, err
	}
	return s, nil
}

func defaultTagFile() *tagFile {
	return &tagFile{
		Default: model.TagConfig{
			APIEndpoint:  "https://api.openai.com/v1",
			Model:        "gpt-4o-mini",
			SystemPrompt: "You are a helpful assistant that summarizes podcast and video transcripts.",
		},
		Tags: map[string]model.TagConfig{},
	}
}

func (s *Store) reloadTags() error {
	data, err := os.ReadFile(s.configPath)
	if errors.Is(err, os.ErrNotExist) {
		tf := defaultTagFile()
		if err := s.writeTagFile(tf); err != nil {
			return err
		}
		s.tags.Store(tf)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read tag config: %w", err)
	}

	var tf tagFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return fmt.Errorf("parse tag config: %w", err)
	}
	if tf.Tags == nil {
		tf.Tags = map[string]model.TagConfig{}
	}
	s.tags.Store(&tf)
	return nil
}

func (s *Store) reloadSecrets() error {
	data, err := os.ReadFile(s.secretPath)
	if errors.Is(err, os.ErrNotExist) {
		empty := map[string]string{}
		if err := s.writeSecretFile(empty); err != nil {
			return err
		}
		s.secrets.Store(&empty)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read secret store: %w", err)
	}

	var secrets map[string]string
	if err := json.Unmarshal(data, &secrets); err != nil {
		return fmt.Errorf("parse secret store: %w", err)
	}
	s.secrets.Store(&secrets)
	return nil
}

func (s *Store) writeTagFile(tf *tagFile) error {
	data, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tag config: %w", err)
	}
	if err := renameio.WriteFile(s.configPath, data, 0o644); err != nil {
		return fmt.Errorf("write tag config: %w", err)
	}
	return nil
}

func (s *Store) writeSecretFile(secrets map[string]string) error {
	data, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal secret store: %w", err)
	}
	if err := renameio.WriteFile(s.secretPath, data, 0o600); err != nil {
		return fmt.Errorf("write secret store: %w", err)
	}
	return nil
}

// Watch starts an fsnotify watcher on the config directory, debouncing
// rapid successive writes before triggering a reload. Stop by closing done.
func (s *Store) Watch(done <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	s.watcher = watcher

	if err := watcher.Add(filepath.Dir(s.configPath)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}

	go s.watchLoop(done)
	return nil
}

func (s *Store) watchLoop(done <-chan struct{}) {
	var debounce *time.Timer
	const debounceDelay = 300 * time.Millisecond

	reload := func(name string) {
		var err error
		switch filepath.Base(name) {
		case filepath.Base(s.configPath):
			err = s.reloadTags()
		case filepath.Base(s.secretPath):
			err = s.reloadSecrets()
		default:
			return
		}
		if err != nil {
			slog.Error("tag config reload failed", "file", name, "error", err)
		} else {
			slog.Info("tag config reloaded", "file", name)
		}
	}

	for {
		select {
		case <-done:
			_ = s.watcher.Close()
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			name := ev.Name
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, func() { reload(name) })
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("tag config watcher error", "error", err)
		}
	}
}

// ListTagNames returns every configured tag name, excluding "default".
func (s *Store) ListTagNames() []string {
	tf := s.tags.Load()
	names := make([]string, 0, len(tf.Tags))
	for name := range tf.Tags {
		names = append(names, name)
	}
	return names
}

// GetTagConfig returns the full config for a named tag, or ErrNotFound.
func (s *Store) GetTagConfig(name string) (model.TagConfig, error) {
	tf := s.tags.Load()
	if name == defaultTagName {
		return tf.Default, nil
	}
	cfg, ok := tf.Tags[name]
	if !ok {
		return model.TagConfig{}, ErrNotFound
	}
	return cfg, nil
}

// PutTagConfig creates or replaces the config for a named tag.
func (s *Store) PutTagConfig(name string, cfg model.TagConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.tags.Load()
	next := &tagFile{Default: current.Default, Tags: map[string]model.TagConfig{}}
	for k, v := range current.Tags {
		next.Tags[k] = v
	}
	if name == defaultTagName {
		next.Default = cfg
	} else {
		next.Tags[name] = cfg
	}
	if err := s.writeTagFile(next); err != nil {
		return err
	}
	s.tags.Store(next)
	return nil
}

// DeleteTagConfig removes a named tag config (the default entry cannot be
// deleted).
func (s *Store) DeleteTagConfig(name string) error {
	if name == defaultTagName {
		return ErrCannotDeleteDefault
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.tags.Load()
	if _, ok := current.Tags[name]; !ok {
		return ErrNotFound
	}
	next := &tagFile{Default: current.Default, Tags: map[string]model.TagConfig{}}
	for k, v := range current.Tags {
		if k != name {
			next.Tags[k] = v
		}
	}
	if err := s.writeTagFile(next); err != nil {
		return err
	}
	s.tags.Store(next)
	return nil
}

// ListSecretNames returns the configured secret key names (never values).
func (s *Store) ListSecretNames() []string {
	secrets := s.secrets.Load()
	names := make([]string, 0, len(*secrets))
	for k := range *secrets {
		names = append(names, k)
	}
	return names
}

// PutSecret creates or updates a named secret's value.
func (s *Store) PutSecret(name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.secrets.Load()
	next := map[string]string{}
	for k, v := range *current {
		next[k] = v
	}
	next[name] = value
	if err := s.writeSecretFile(next); err != nil {
		return err
	}
	s.secrets.Store(&next)
	return nil
}

// DeleteSecret removes a named secret.
func (s *Store) DeleteSecret(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.secrets.Load()
	if _, ok := (*current)[name]; !ok {
		return ErrNotFound
	}
	next := map[string]string{}
	for k, v := range *current {
		if k != name {
			next[k] = v
		}
	}
	if err := s.writeSecretFile(next); err != nil {
		return err
	}
	s.secrets.Store(&next)
	return nil
}

func (s *Store) resolveAPIKey(ref string) string {
	if ref == "" {
		return ""
	}
	envKey := strings.ToUpper(ref) + "_API_KEY"
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	secrets := s.secrets.Load()
	if v, ok := (*secrets)[ref]; ok {
		return v
	}
	return ""
}

// Resolve implements spec.md §4.7's resolution order: first matching tag
// (in the transcription's tag order) wins, falling back to the default
// entry, then applies caller overrides on top.
func (s *Store) Resolve(tags []string, overrides Overrides) Resolved {
	tf := s.tags.Load()

	cfg := tf.Default
	source := "system_default"
	for _, t := range tags {
		if tagCfg, ok := tf.Tags[t]; ok {
			cfg = tagCfg
			source = "tag:" + t
			break
		}
	}

	resolved := Resolved{
		APIEndpoint:       cfg.APIEndpoint,
		Model:             cfg.Model,
		APIKey:            s.resolveAPIKey(cfg.APIKeyRef),
		SystemPrompt:      cfg.SystemPrompt,
		ConfigSource:      source,
		DestinationEmails: cfg.DestinationEmails,
	}

	if overrides.APIEndpoint != nil {
		resolved.APIEndpoint = *overrides.APIEndpoint
	}
	if overrides.Model != nil {
		resolved.Model = *overrides.Model
	}
	if overrides.SystemPrompt != nil {
		resolved.SystemPrompt = *overrides.SystemPrompt
	}
	if overrides.APIKey != nil {
		resolved.APIKey = *overrides.APIKey
	}

	return resolved
}

// TagExists reports whether name is a configured tag (used by the mail
// worker to decide whether a subject word names a real tag).
func (s *Store) TagExists(name string) bool {
	if name == defaultTagName {
		return true
	}
	_, ok := s.tags.Load().Tags[name]
	return ok
}
