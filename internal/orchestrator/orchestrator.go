// Package orchestrator owns the per-submission state machine from
// spec.md §4.5: pending → downloading → transcribing → completed|failed,
// persisting and broadcasting at every transition.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"scribe/internal/artifact"
	"scribe/internal/audiocache"
	"scribe/internal/downloader"
	"scribe/internal/jobqueue"
	"scribe/internal/model"
	"scribe/internal/push"
	"scribe/internal/store"
	"scribe/internal/transcriber"
	"scribe/internal/urlparse"
)

// ErrDuplicate is returned by Submit when source_url already has a record;
// ExistingID carries the conflicting record's ID.
type ErrDuplicate struct {
	ExistingID string
}

func (e *ErrDuplicate) Error() string {
	return fmt.Sprintf("source already submitted as %s", e.ExistingID)
}

// ErrInvalidURL wraps a urlparse failure surfaced to HTTP callers as 400.
var ErrInvalidURL = errors.New("invalid or unsupported url")

// Options bounds each pipeline stage's wall clock, per spec.md §7.
type Options struct {
	DownloadTimeout   time.Duration
	TranscribeTimeout time.Duration
	AudioCacheDays    int
	MaxAudioBytes     int64
}

// ShowNotesFetcher resolves an Apple Podcasts episode URL to its creator
// show notes, used to pre-fetch source_context per spec.md §4.5 step 3.
type ShowNotesFetcher interface {
	Fetch(ctx context.Context, episodeURL string) (string, error)
}

// Orchestrator wires together every collaborator needed to drive one
// submission from URL to terminal state.
type Orchestrator struct {
	store       *store.Store
	artifacts   *artifact.Store
	cache       *audiocache.Cache
	downloader  *downloader.Downloader
	transcriber *transcriber.Client
	hub         *push.Hub
	queue       *jobqueue.Queue
	showNotes   ShowNotesFetcher
	opts        Options
}

// New builds an Orchestrator from its collaborators. showNotes may be nil,
// in which case no source_context is ever pre-fetched.
func New(st *store.Store, artifacts *artifact.Store, cache *audiocache.Cache, dl *downloader.Downloader, tc *transcriber.Client, hub *push.Hub, queue *jobqueue.Queue, showNotes ShowNotesFetcher, opts Options) *Orchestrator {
	return &Orchestrator{
		store:       st,
		artifacts:   artifacts,
		cache:       cache,
		downloader:  dl,
		transcriber: tc,
		hub:         hub,
		queue:       queue,
		showNotes:   showNotes,
		opts:        opts,
	}
}

// Submit parses rawURL, checks for a dedup conflict, creates a pending
// record, and spawns the background pipeline. It returns immediately with
// the pending record, matching spec.md §5's "202 immediately" contract.
//
// Absent force, a pre-existing record for the canonical id always yields
// ErrDuplicate. With force set, a record in the terminal failed state is
// instead retried in place: retry_count advances and the pipeline re-runs
// against the existing id rather than erroring. The mail worker never sets
// force: on a duplicate it waits for the existing record instead.
func (o *Orchestrator) Submit(ctx context.Context, rawURL string, tags []string, sourceContext *string, force bool) (*model.Transcription, error) {
	parsed, err := urlparse.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	if sourceContext == nil {
		sourceContext = o.prefetchShowNotes(ctx, parsed.SourceType, rawURL)
	}

	existing, err := o.store.GetByCanonicalID(ctx, parsed.CanonicalID)
	if err == nil {
		if force && existing.Status == model.StatusFailed {
			return o.retry(ctx, existing, tags, sourceContext)
		}
		return nil, &ErrDuplicate{ExistingID: existing.ID}
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("check existing transcription: %w", err)
	}

	if o.queue != nil {
		if lockErr := o.queue.TryLock(ctx, parsed.CanonicalID); lockErr != nil {
			if errors.Is(lockErr, jobqueue.ErrAlreadyRunning) {
				return nil, &ErrDuplicate{ExistingID: parsed.CanonicalID}
			}
			return nil, lockErr
		}
	}

	now := time.Now().UTC()
	tr := &model.Transcription{
		ID:            parsed.CanonicalID,
		SourceType:    parsed.SourceType,
		SourceURL:     parsed.SourceURL,
		Status:        model.StatusPending,
		Progress:      model.ProgressPending,
		CreatedAt:     now,
		Tags:          model.NormalizeTags(tags),
		SourceContext: sourceContext,
	}

	if err := o.store.CreateTranscription(ctx, tr); err != nil {
		if o.queue != nil {
			_ = o.queue.Unlock(ctx, parsed.CanonicalID)
		}
		if errors.Is(err, store.ErrDuplicate) {
			return nil, &ErrDuplicate{ExistingID: tr.ID}
		}
		return nil, fmt.Errorf("create transcription: %w", err)
	}

	go o.run(context.Background(), tr.ID)

	return tr, nil
}

// prefetchShowNotes fetches Apple Podcasts creator notes for rawURL,
// non-fatally: a failure just leaves source_context unset, per spec.md
// §4.5 step 3.
func (o *Orchestrator) prefetchShowNotes(ctx context.Context, sourceType model.SourceType, rawURL string) *string {
	if o.showNotes == nil || sourceType != model.SourceApplePodcasts {
		return nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	notes, err := o.showNotes.Fetch(fetchCtx, rawURL)
	if err != nil {
		slog.Warn("orchestrator: show notes fetch failed, continuing without source_context", "url", rawURL, "error", err)
		return nil
	}
	if notes == "" {
		return nil
	}
	return &notes
}

// retry resets a terminally-failed record to pending and re-runs the
// pipeline in place, advancing retry_count. It never creates a new record.
func (o *Orchestrator) retry(ctx context.Context, tr *model.Transcription, tags []string, sourceContext *string) (*model.Transcription, error) {
	if o.queue != nil {
		if lockErr := o.queue.TryLock(ctx, tr.ID); lockErr != nil {
			if errors.Is(lockErr, jobqueue.ErrAlreadyRunning) {
				return nil, &ErrDuplicate{ExistingID: tr.ID}
			}
			return nil, lockErr
		}
	}

	tr.Status = model.StatusPending
	tr.Progress = model.ProgressPending
	tr.ErrorMessage = nil
	tr.RetryCount++
	if len(tags) > 0 {
		tr.Tags = model.NormalizeTags(tags)
	}
	if sourceContext != nil {
		tr.SourceContext = sourceContext
	}

	if err := o.store.UpdateTranscription(ctx, tr); err != nil {
		if o.queue != nil {
			_ = o.queue.Unlock(ctx, tr.ID)
		}
		return nil, fmt.Errorf("persist retry reset: %w", err)
	}
	o.hub.BroadcastStatus(tr.ID, tr.Status, tr.Progress, "")

	go o.run(context.Background(), tr.ID)

	return tr, nil
}

// run drives the pipeline to a terminal state. It is spawned detached from
// the originating HTTP request's context so client disconnects never abort
// an in-flight job.
func (o *Orchestrator) run(ctx context.Context, id string) {
	defer func() {
		if o.queue != nil {
			_ = o.queue.Unlock(ctx, id)
		}
	}()

	tr, err := o.store.GetTranscription(ctx, id)
	if err != nil {
		slog.Error("orchestrator: lost record at pipeline start", "id", id, "error", err)
		return
	}

	if err := o.downloadStage(ctx, tr); err != nil {
		o.fail(ctx, tr, err)
		return
	}
	if err := o.transcribeStage(ctx, tr); err != nil {
		o.fail(ctx, tr, err)
		return
	}
	o.complete(ctx, tr)
}

func (o *Orchestrator) downloadStage(ctx context.Context, tr *model.Transcription) error {
	now := time.Now().UTC()
	tr.Status = model.StatusDownloading
	tr.Progress = model.ProgressDownloading
	tr.StartedAt = &now
	if err := o.store.UpdateTranscription(ctx, tr); err != nil {
		return fmt.Errorf("persist downloading transition: %w", err)
	}
	o.hub.BroadcastStatus(tr.ID, tr.Status, tr.Progress, "")

	dlCtx, cancel := context.WithTimeout(ctx, o.opts.DownloadTimeout)
	defer cancel()

	result, err := o.downloader.Download(dlCtx, tr.SourceType, tr.SourceURL, tr.ID)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}

	tr.AudioPath = &result.AudioPath
	tr.AudioFormat = strPtrOrNil(result.Metadata.Format)
	tr.Title = result.Metadata.Title
	tr.Channel = result.Metadata.Channel
	tr.DurationSecs = result.Metadata.Duration
	tr.UploadDate = result.Metadata.UploadDate
	tr.Thumbnail = result.Metadata.Thumbnail
	tr.Description = result.Metadata.Description
	expiry := audiocache.ExpiryFor(time.Now().UTC(), o.opts.AudioCacheDays)
	tr.AudioCached = &expiry

	if err := o.store.UpdateTranscription(ctx, tr); err != nil {
		return fmt.Errorf("persist download metadata: %w", err)
	}
	return nil
}

func (o *Orchestrator) transcribeStage(ctx context.Context, tr *model.Transcription) error {
	tr.Status = model.StatusTranscribing
	tr.Progress = model.ProgressTranscribing
	if err := o.store.UpdateTranscription(ctx, tr); err != nil {
		return fmt.Errorf("persist transcribing transition: %w", err)
	}
	o.hub.BroadcastStatus(tr.ID, tr.Status, tr.Progress, "")

	if tr.AudioPath == nil {
		return fmt.Errorf("no audio path after download stage")
	}

	asrCtx, cancel := context.WithTimeout(ctx, o.opts.TranscribeTimeout)
	defer cancel()

	jobID, err := o.transcriber.Submit(asrCtx, *tr.AudioPath)
	if err != nil {
		return fmt.Errorf("submit to transcriber: %w", err)
	}

	result, err := o.transcriber.WaitForCompletion(asrCtx, jobID)
	if err != nil {
		return fmt.Errorf("wait for transcription: %w", err)
	}

	transcribedAt := time.Now().UTC()
	tr.TranscribedAt = &transcribedAt
	tr.Progress = model.ProgressSaving
	if err := o.store.UpdateTranscription(ctx, tr); err != nil {
		return fmt.Errorf("persist saving progress: %w", err)
	}

	return o.persistArtifact(ctx, tr, result)
}

func (o *Orchestrator) persistArtifact(ctx context.Context, tr *model.Transcription, result transcriber.Result) error {
	var a model.TranscriptArtifact
	a.Source.ID = tr.ID
	a.Source.Type = string(tr.SourceType)
	a.Source.URL = tr.SourceURL
	a.Source.Title = tr.Title
	a.Source.Channel = tr.Channel
	a.Source.Thumbnail = tr.Thumbnail
	a.Source.Description = tr.Description
	a.Source.UploadDate = tr.UploadDate
	a.Source.Duration = tr.DurationSecs

	fullText := joinSegments(result.Segments)
	a.Transcription.Language = result.Language
	if tr.DurationSecs != nil {
		a.Transcription.Duration = *tr.DurationSecs
	}
	a.Transcription.ModelUsed = "external-asr"
	a.Transcription.Segments = result.Segments
	a.Transcription.FullText = fullText
	a.Transcription.WordCount = model.WordCount(fullText)
	a.Transcription.SegmentsCount = len(result.Segments)
	a.SourceContext = tr.SourceContext
	a.CreatedAt = time.Now().UTC()

	path, err := o.artifacts.Save(tr.ID, &a)
	if err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}

	tr.Language = &a.Transcription.Language
	modelUsed := a.Transcription.ModelUsed
	tr.ModelUsed = &modelUsed
	wordCount := a.Transcription.WordCount
	tr.WordCount = &wordCount
	segmentsCount := a.Transcription.SegmentsCount
	tr.SegmentsCount = &segmentsCount
	tr.FullText = &fullText
	tr.TranscriptionPath = &path

	return nil
}

// Delete removes the DB record, its on-disk artifact, and any cached
// audio, per spec.md §6's DELETE /transcriptions/{id} contract. Missing
// artifact/audio files are not errors.
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	tr, err := o.store.GetTranscription(ctx, id)
	if err != nil {
		return err
	}

	if err := o.artifacts.Delete(id); err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}
	if tr.AudioPath != nil {
		if err := o.cache.Remove(*tr.AudioPath); err != nil {
			return fmt.Errorf("delete cached audio: %w", err)
		}
	}
	return o.store.DeleteTranscription(ctx, id)
}

func (o *Orchestrator) complete(ctx context.Context, tr *model.Transcription) {
	tr.Status = model.StatusCompleted
	tr.Progress = model.ProgressCompleted
	if err := o.store.UpdateTranscription(ctx, tr); err != nil {
		slog.Error("orchestrator: persist completion failed", "id", tr.ID, "error", err)
		return
	}
	o.hub.BroadcastCompleted(tr)
}

func (o *Orchestrator) fail(ctx context.Context, tr *model.Transcription, cause error) {
	msg := cause.Error()
	tr.Status = model.StatusFailed
	tr.ErrorMessage = &msg
	if err := o.store.UpdateTranscription(ctx, tr); err != nil {
		slog.Error("orchestrator: persist failure failed", "id", tr.ID, "error", err)
	}
	slog.Warn("orchestrator: job failed", "id", tr.ID, "error", msg)
	o.hub.BroadcastError(tr.ID, msg)
}

func joinSegments(segments []model.Segment) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		parts = append(parts, strings.TrimSpace(s.Text))
	}
	return strings.Join(parts, " ")
}

func strPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
