// Package store provides the SQLite-backed durable store for
// transcriptions, summaries, and episode sources, with a full-text index
// over title/channel/full_text maintained by triggers, per spec.md §4.2.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no CGO

	"scribe/internal/model"
)

// ErrNotFound is returned when a lookup by ID matches no row.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when a canonical ID already has a record.
var ErrDuplicate = errors.New("record already exists")

// Store wraps the relational store at <data>/scribe.db.
type Store struct {
	db *sql.DB
}

// Open initializes the SQLite store at dbPath and runs migrations.
// WAL mode and a busy timeout keep concurrent orchestrator workers and
// the HTTP API from tripping over "database is locked" under load.
func Open(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS transcriptions (
	id TEXT PRIMARY KEY,
	source_type TEXT NOT NULL,
	source_url TEXT NOT NULL,
	title TEXT,
	channel TEXT,
	thumbnail TEXT,
	description TEXT,
	upload_date TEXT,
	duration_seconds REAL,
	audio_path TEXT,
	audio_format TEXT,
	audio_cached_until TEXT,
	status TEXT NOT NULL DEFAULT 'pending',
	progress INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	started_at TEXT,
	transcribed_at TEXT,
	language TEXT,
	model_used TEXT,
	word_count INTEGER,
	segments_count INTEGER,
	full_text TEXT,
	transcription_path TEXT,
	error_message TEXT,
	retry_count INTEGER NOT NULL DEFAULT 0,
	tags TEXT NOT NULL DEFAULT '',
	source_context TEXT
);

CREATE INDEX IF NOT EXISTS idx_transcriptions_status ON transcriptions(status);
CREATE INDEX IF NOT EXISTS idx_transcriptions_created_at ON transcriptions(created_at);

CREATE VIRTUAL TABLE IF NOT EXISTS transcriptions_fts USING fts5(
	id UNINDEXED,
	title,
	channel,
	full_text,
	content=''
);

CREATE TRIGGER IF NOT EXISTS transcriptions_ai AFTER INSERT ON transcriptions BEGIN
	INSERT INTO transcriptions_fts(rowid, id, title, channel, full_text)
	VALUES (new.rowid, new.id, coalesce(new.title, ''), coalesce(new.channel, ''), coalesce(new.full_text, ''));
END;

CREATE TRIGGER IF NOT EXISTS transcriptions_ad AFTER DELETE ON transcriptions BEGIN
	INSERT INTO transcriptions_fts(transcriptions_fts, rowid, id, title, channel, full_text)
	VALUES ('delete', old.rowid, old.id, coalesce(old.title, ''), coalesce(old.channel, ''), coalesce(old.full_text, ''));
END;

CREATE TRIGGER IF NOT EXISTS transcriptions_au AFTER UPDATE ON transcriptions BEGIN
	INSERT INTO transcriptions_fts(transcriptions_fts, rowid, id, title, channel, full_text)
	VALUES ('delete', old.rowid, old.id, coalesce(old.title, ''), coalesce(old.channel, ''), coalesce(old.full_text, ''));
	INSERT INTO transcriptions_fts(rowid, id, title, channel, full_text)
	VALUES (new.rowid, new.id, coalesce(new.title, ''), coalesce(new.channel, ''), coalesce(new.full_text, ''));
END;

CREATE TABLE IF NOT EXISTS summaries (
	id TEXT PRIMARY KEY,
	transcription_id TEXT NOT NULL REFERENCES transcriptions(id) ON DELETE CASCADE,
	api_endpoint TEXT NOT NULL,
	model TEXT NOT NULL,
	prompt TEXT NOT NULL,
	api_key_used INTEGER NOT NULL DEFAULT 0,
	tags TEXT NOT NULL DEFAULT '',
	config_source TEXT NOT NULL,
	summary_text TEXT NOT NULL,
	created_at TEXT NOT NULL,
	generation_time_ms INTEGER NOT NULL,
	prompt_tokens INTEGER,
	completion_tokens INTEGER
);

CREATE INDEX IF NOT EXISTS idx_summaries_transcription ON summaries(transcription_id);

CREATE TABLE IF NOT EXISTS episode_sources (
	id TEXT PRIMARY KEY,
	transcription_id TEXT NOT NULL REFERENCES transcriptions(id) ON DELETE CASCADE,
	email_subject TEXT,
	email_from TEXT,
	source_text TEXT NOT NULL,
	matched_url TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_episode_sources_transcription ON episode_sources(transcription_id);
`

func (s *Store) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func parseNullTime(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v.String)
	if err != nil {
		return nil
	}
	return &t
}

func parseNullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func parseNullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func parseNullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

// CreateTranscription inserts a new pending record. Returns ErrDuplicate if
// the canonical ID already exists, matching the orchestrator's dedup
// contract in spec.md §4.1.
func (s *Store) CreateTranscription(ctx context.Context, tr *model.Transcription) error {
	now := time.Now().UTC()
	if tr.CreatedAt.IsZero() {
		tr.CreatedAt = now
	}
	tr.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transcriptions (
			id, source_type, source_url, title, channel, thumbnail, description,
			upload_date, duration_seconds, audio_path, audio_format, audio_cached_until,
			status, progress, created_at, updated_at, started_at, transcribed_at,
			language, model_used, word_count, segments_count, full_text, transcription_path,
			error_message, retry_count, tags, source_context
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`,
		tr.ID, string(tr.SourceType), tr.SourceURL,
		nullString(tr.Title), nullString(tr.Channel), nullString(tr.Thumbnail), nullString(tr.Description),
		nullString(tr.UploadDate), nullFloat(tr.DurationSecs), nullString(tr.AudioPath), nullString(tr.AudioFormat),
		nullTime(tr.AudioCached),
		string(tr.Status), tr.Progress,
		tr.CreatedAt.Format(time.RFC3339), tr.UpdatedAt.Format(time.RFC3339),
		nullTime(tr.StartedAt), nullTime(tr.TranscribedAt),
		nullString(tr.Language), nullString(tr.ModelUsed), nullInt(tr.WordCount), nullInt(tr.SegmentsCount),
		nullString(tr.FullText), nullString(tr.TranscriptionPath),
		nullString(tr.ErrorMessage), tr.RetryCount,
		strings.Join(tr.Tags, ","), nullString(tr.SourceContext),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert transcription: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// UpdateTranscription replaces the full row for tr.ID, bumping updated_at.
func (s *Store) UpdateTranscription(ctx context.Context, tr *model.Transcription) error {
	tr.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE transcriptions SET
			title=?, channel=?, thumbnail=?, description=?, upload_date=?, duration_seconds=?,
			audio_path=?, audio_format=?, audio_cached_until=?,
			status=?, progress=?, updated_at=?, started_at=?, transcribed_at=?,
			language=?, model_used=?, word_count=?, segments_count=?, full_text=?, transcription_path=?,
			error_message=?, retry_count=?, tags=?, source_context=?
		WHERE id=?
	`,
		nullString(tr.Title), nullString(tr.Channel), nullString(tr.Thumbnail), nullString(tr.Description),
		nullString(tr.UploadDate), nullFloat(tr.DurationSecs),
		nullString(tr.AudioPath), nullString(tr.AudioFormat), nullTime(tr.AudioCached),
		string(tr.Status), tr.Progress, tr.UpdatedAt.Format(time.RFC3339),
		nullTime(tr.StartedAt), nullTime(tr.TranscribedAt),
		nullString(tr.Language), nullString(tr.ModelUsed), nullInt(tr.WordCount), nullInt(tr.SegmentsCount),
		nullString(tr.FullText), nullString(tr.TranscriptionPath),
		nullString(tr.ErrorMessage), tr.RetryCount, strings.Join(tr.Tags, ","), nullString(tr.SourceContext),
		tr.ID,
	)
	if err != nil {
		return fmt.Errorf("update transcription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateTags replaces tags for id with already-normalized tags.
func (s *Store) UpdateTags(ctx context.Context, id string, tags []string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE transcriptions SET tags=?, updated_at=? WHERE id=?`,
		strings.Join(tags, ","), time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("update tags: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const selectColumns = `
	id, source_type, source_url, title, channel, thumbnail, description,
	upload_date, duration_seconds, audio_path, audio_format, audio_cached_until,
	status, progress, created_at, updated_at, started_at, transcribed_at,
	language, model_used, word_count, segments_count, full_text, transcription_path,
	error_message, retry_count, tags, source_context
`

func scanTranscription(row interface{ Scan(...any) error }) (*model.Transcription, error) {
	var tr model.Transcription
	var sourceType, status, tags string
	var title, channel, thumbnail, description, uploadDate, audioPath, audioFormat sql.NullString
	var audioCachedUntil, startedAt, transcribedAt sql.NullString
	var language, modelUsed, fullText, transcriptionPath, errorMessage, sourceContext sql.NullString
	var durationSeconds sql.NullFloat64
	var wordCount, segmentsCount sql.NullInt64
	var createdAt, updatedAt string

	if err := row.Scan(
		&tr.ID, &sourceType, &tr.SourceURL, &title, &channel, &thumbnail, &description,
		&uploadDate, &durationSeconds, &audioPath, &audioFormat, &audioCachedUntil,
		&status, &tr.Progress, &createdAt, &updatedAt, &startedAt, &transcribedAt,
		&language, &modelUsed, &wordCount, &segmentsCount, &fullText, &transcriptionPath,
		&errorMessage, &tr.RetryCount, &tags, &sourceContext,
	); err != nil {
		return nil, err
	}

	tr.SourceType = model.SourceType(sourceType)
	tr.Status = model.Status(status)
	tr.Title = parseNullString(title)
	tr.Channel = parseNullString(channel)
	tr.Thumbnail = parseNullString(thumbnail)
	tr.Description = parseNullString(description)
	tr.UploadDate = parseNullString(uploadDate)
	tr.DurationSecs = parseNullFloat(durationSeconds)
	tr.AudioPath = parseNullString(audioPath)
	tr.AudioFormat = parseNullString(audioFormat)
	tr.AudioCached = parseNullTime(audioCachedUntil)
	tr.StartedAt = parseNullTime(startedAt)
	tr.TranscribedAt = parseNullTime(transcribedAt)
	tr.Language = parseNullString(language)
	tr.ModelUsed = parseNullString(modelUsed)
	tr.WordCount = parseNullInt(wordCount)
	tr.SegmentsCount = parseNullInt(segmentsCount)
	tr.FullText = parseNullString(fullText)
	tr.TranscriptionPath = parseNullString(transcriptionPath)
	tr.ErrorMessage = parseNullString(errorMessage)
	tr.SourceContext = parseNullString(sourceContext)
	if tags != "" {
		tr.Tags = strings.Split(tags, ",")
	}

	var err error
	tr.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	tr.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &tr, nil
}

// GetTranscription fetches a single record by canonical ID.
func (s *Store) GetTranscription(ctx context.Context, id string) (*model.Transcription, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM transcriptions WHERE id=?", id)
	tr, err := scanTranscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transcription: %w", err)
	}
	return tr, nil
}

// GetByCanonicalID is an alias of GetTranscription kept for call sites that
// check dedup before insertion, returning ErrNotFound (not an error) when
// no collision exists.
func (s *Store) GetByCanonicalID(ctx context.Context, id string) (*model.Transcription, error) {
	return s.GetTranscription(ctx, id)
}

// DeleteTranscription removes the record (and, via FK cascade, its
// summaries and episode sources). Callers are responsible for removing the
// on-disk artifact and cached audio, per spec.md §4.1's separation of
// concerns.
func (s *Store) DeleteTranscription(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM transcriptions WHERE id=?", id)
	if err != nil {
		return fmt.Errorf("delete transcription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListFilter narrows ListTranscriptions.
type ListFilter struct {
	Status string
	Tag    string
	Search string
	Skip   int
	Limit  int
}

// ListTranscriptions returns a page of records plus the total matching
// count, ranked by FTS relevance when Search is set and by created_at
// descending otherwise.
func (s *Store) ListTranscriptions(ctx context.Context, f ListFilter) ([]*model.Transcription, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	var where []string
	var args []any

	if f.Status != "" {
		where = append(where, "t.status = ?")
		args = append(args, f.Status)
	}
	if f.Tag != "" {
		where = append(where, "(',' || t.tags || ',') LIKE ?")
		args = append(args, "%,"+f.Tag+",%")
	}

	var fromClause string
	var orderClause string
	if f.Search != "" {
		fromClause = "transcriptions t JOIN transcriptions_fts fts ON fts.rowid = t.rowid"
		where = append(where, "transcriptions_fts MATCH ?")
		args = append(args, ftsQuery(f.Search))
		orderClause = "ORDER BY rank"
	} else {
		fromClause = "transcriptions t"
		orderClause = "ORDER BY t.created_at DESC"
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s %s", fromClause, whereClause)
	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transcriptions: %w", err)
	}

	query := fmt.Sprintf("SELECT %s FROM %s %s %s LIMIT ? OFFSET ?",
		prefixColumns(selectColumns, "t"), fromClause, whereClause, orderClause)
	pagedArgs := append(append([]any{}, args...), limit, f.Skip)

	rows, err := s.db.QueryContext(ctx, query, pagedArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transcriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Transcription
	for rows.Next() {
		tr, err := scanTranscription(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, tr)
	}
	return out, total, rows.Err()
}

func prefixColumns(cols, alias string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// ftsQuery quotes each term so punctuation in a free-text search (URLs,
// apostrophes) doesn't trip the FTS5 query parser.
func ftsQuery(search string) string {
	fields := strings.Fields(search)
	for i, f := range fields {
		f = strings.ReplaceAll(f, `"`, `""`)
		fields[i] = `"` + f + `"*`
	}
	return strings.Join(fields, " ")
}

// ListTags returns the alphabetically sorted set of tags currently in use
// by at least one transcription.
func (s *Store) ListTags(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT tags FROM transcriptions WHERE tags != ''")
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer func() { _ = rows.Close() }()

	seen := map[string]bool{}
	for rows.Next() {
		var tags string
		if err := rows.Scan(&tags); err != nil {
			return nil, err
		}
		for _, t := range strings.Split(tags, ",") {
			if t != "" {
				seen[t] = true
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sortStrings(out)
	return out, nil
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// ExpiredAudio returns every transcription whose audio_cached_until is in
// the past and still has a non-null audio_path, for the cleanup sweep.
func (s *Store) ExpiredAudio(ctx context.Context, now time.Time) ([]*model.Transcription, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+selectColumns+` FROM transcriptions
		WHERE audio_cached_until IS NOT NULL AND audio_cached_until < ? AND audio_path IS NOT NULL`,
		now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("list expired audio: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Transcription
	for rows.Next() {
		tr, err := scanTranscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

// ClearAudioPath nulls out audio_path/audio_format/audio_cached_until once
// the cleanup sweep has removed the underlying file.
func (s *Store) ClearAudioPath(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE transcriptions
		SET audio_path=NULL, audio_format=NULL, audio_cached_until=NULL, updated_at=?
		WHERE id=?`, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("clear audio path: %w", err)
	}
	return nil
}

// DeleteFailedOlderThan removes failed records created before cutoff,
// returning the count removed.
func (s *Store) DeleteFailedOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transcriptions WHERE status='failed' AND created_at < ?`,
		cutoff.Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("delete old failed records: %w", err)
	}
	return res.RowsAffected()
}

// CreateSummary persists a generated summary.
func (s *Store) CreateSummary(ctx context.Context, sm *model.Summary) error {
	if sm.CreatedAt.IsZero() {
		sm.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO summaries (
			id, transcription_id, api_endpoint, model, prompt, api_key_used, tags,
			config_source, summary_text, created_at, generation_time_ms, prompt_tokens, completion_tokens
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
	`,
		sm.ID, sm.TranscriptionID, sm.APIEndpoint, sm.Model, sm.Prompt, boolToInt(sm.APIKeyUsed),
		strings.Join(sm.Tags, ","), sm.ConfigSource, sm.SummaryText, sm.CreatedAt.Format(time.RFC3339),
		sm.GenerationTimeMs, nullInt(sm.PromptTokens), nullInt(sm.CompletionTokens),
	)
	if err != nil {
		return fmt.Errorf("insert summary: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

const summaryColumns = `
	id, transcription_id, api_endpoint, model, prompt, api_key_used, tags,
	config_source, summary_text, created_at, generation_time_ms, prompt_tokens, completion_tokens
`

func scanSummary(row interface{ Scan(...any) error }) (*model.Summary, error) {
	var sm model.Summary
	var apiKeyUsed int
	var tags, createdAt string
	var promptTokens, completionTokens sql.NullInt64

	if err := row.Scan(
		&sm.ID, &sm.TranscriptionID, &sm.APIEndpoint, &sm.Model, &sm.Prompt, &apiKeyUsed, &tags,
		&sm.ConfigSource, &sm.SummaryText, &createdAt, &sm.GenerationTimeMs, &promptTokens, &completionTokens,
	); err != nil {
		return nil, err
	}
	sm.APIKeyUsed = apiKeyUsed != 0
	if tags != "" {
		sm.Tags = strings.Split(tags, ",")
	}
	sm.PromptTokens = parseNullInt(promptTokens)
	sm.CompletionTokens = parseNullInt(completionTokens)

	var err error
	sm.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse summary created_at: %w", err)
	}
	return &sm, nil
}

// GetSummary fetches a summary by ID.
func (s *Store) GetSummary(ctx context.Context, id string) (*model.Summary, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+summaryColumns+" FROM summaries WHERE id=?", id)
	sm, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get summary: %w", err)
	}
	return sm, nil
}

// ListSummariesByTranscription returns every summary for a transcription,
// newest first.
func (s *Store) ListSummariesByTranscription(ctx context.Context, transcriptionID string) ([]*model.Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+summaryColumns+" FROM summaries WHERE transcription_id=? ORDER BY created_at DESC", transcriptionID)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Summary
	for rows.Next() {
		sm, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

// DeleteSummary removes a summary by ID.
func (s *Store) DeleteSummary(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM summaries WHERE id=?", id)
	if err != nil {
		return fmt.Errorf("delete summary: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateEpisodeSource persists a preserved email body linked to a
// transcription. Returns ErrNotFound if the transcription doesn't exist
// (surfaced by the foreign key constraint).
func (s *Store) CreateEpisodeSource(ctx context.Context, es *model.EpisodeSource) error {
	if es.CreatedAt.IsZero() {
		es.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO episode_sources (id, transcription_id, email_subject, email_from, source_text, matched_url, created_at)
		VALUES (?,?,?,?,?,?,?)
	`,
		es.ID, es.TranscriptionID, nullString(es.EmailSubject), nullString(es.EmailFrom),
		es.SourceText, es.MatchedURL, es.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return ErrNotFound
		}
		return fmt.Errorf("insert episode source: %w", err)
	}
	return nil
}
