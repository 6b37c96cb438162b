package mailworker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"scribe/internal/mailext"
	"scribe/internal/mailfmt"
	"scribe/internal/model"
	"scribe/internal/retry"
)

const htmlSummarySuffix = "Format your response using valid HTML elements (headings, paragraphs, lists, tables, etc.). Do not include `<html>`, `<head>`, or `<body>` tags - only the inner content."

// Frontend is the subset of FrontendClient the processing pipelines call,
// narrowed to an interface so tests can substitute a fake.
type Frontend interface {
	Submit(ctx context.Context, rawURL string, tag string) (*model.Transcription, error)
	WaitForTerminal(ctx context.Context, id string) (*model.Transcription, error)
	RequestHTMLSummary(ctx context.Context, transcriptionID, htmlSuffix string) (string, error)
	ListTagNames(ctx context.Context) ([]string, error)
	CreateEpisodeSource(ctx context.Context, transcriptionID, sourceText, matchedURL string, subject, from *string) error
	DestinationEmails(ctx context.Context, tag string) ([]string, error)
}

// Folders names every mailbox the poll loop watches, per spec.md §4.8.
type Folders struct {
	Inbox               string
	Done                string
	Error               string
	EpisodeSources      string
	EpisodeSourcesDone  string
	EpisodeSourcesError string
}

// Config bounds the poll loop's timing and concurrency.
type Config struct {
	Folders          Folders
	PollInterval     time.Duration
	Concurrency      int
	OpTimeout        time.Duration
	RetryAttempts    int
	RetryBackoffBase time.Duration
	ReturnAddress    string
	FromAddress      string
	DefaultTag       string
	DigestTag        string
}

// Worker drives the generic-inbox and episode-sources poll cycles.
type Worker struct {
	mail     MailClient
	frontend Frontend
	mailer   Mailer
	cfg      Config
	delays   []time.Duration
}

// New builds a Worker from its collaborators.
func New(mail MailClient, frontend Frontend, mailer Mailer, cfg Config) *Worker {
	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 3
	}
	base := cfg.RetryBackoffBase
	if base <= 0 {
		base = 5 * time.Second
	}
	return &Worker{mail: mail, frontend: frontend, mailer: mailer, cfg: cfg, delays: retry.Schedule(base, attempts)}
}

// retryMail wraps an IMAP/SMTP operation with the 3-attempt (5s/15s/45s)
// exponential backoff spec.md §5/§7 requires.
func (w *Worker) retryMail(ctx context.Context, op string, fn func() error) error {
	err := retry.Do(ctx, w.delays, nil, fn)
	if err != nil {
		slog.Warn("mailworker: operation failed after retries", "op", op, "error", err)
	}
	return err
}

// Run polls both inbox pairs on cfg.PollInterval until done is closed.
func (w *Worker) Run(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	w.pollOnce(ctx)
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.pollOnce(ctx)
		}
	}
}

func (w *Worker) pollOnce(ctx context.Context) {
	w.pollMailbox(ctx, w.cfg.Folders.Inbox, w.processGeneric)
	w.pollMailbox(ctx, w.cfg.Folders.EpisodeSources, w.processEpisodeSource)
}

func (w *Worker) pollMailbox(ctx context.Context, mailbox string, process func(context.Context, Message)) {
	var messages []Message
	err := w.retryMail(ctx, "list unseen", func() error {
		var listErr error
		messages, listErr = w.mail.Unseen(ctx, mailbox)
		return listErr
	})
	if err != nil {
		slog.Error("mailworker: list unseen failed", "mailbox", mailbox, "error", err)
		return
	}
	if len(messages) == 0 {
		return
	}

	sem := make(chan struct{}, w.cfg.Concurrency)
	done := make(chan struct{}, len(messages))
	dispatched := 0

	for _, msg := range messages {
		msg := msg
		if err := w.retryMail(ctx, "mark seen", func() error { return w.mail.MarkSeen(ctx, mailbox, msg.UID) }); err != nil {
			slog.Error("mailworker: mark seen failed", "mailbox", mailbox, "uid", msg.UID, "error", err)
			continue
		}

		dispatched++
		sem <- struct{}{}
		go func() {
			defer func() { <-sem; done <- struct{}{} }()
			process(ctx, msg)
		}()
	}

	for i := 0; i < dispatched; i++ {
		<-done
	}
}

// processGeneric implements spec.md §4.8's generic-inbox message steps a-e.
func (w *Worker) processGeneric(ctx context.Context, msg Message) {
	urls := extractURLs(msg)
	transcribable := filterURLs(urls, mailext.IsTranscribable)

	if len(transcribable) == 0 {
		w.notifyNoURLs(ctx, msg)
		w.finish(ctx, w.cfg.Folders.Inbox, w.cfg.Folders.Error, msg.UID)
		return
	}

	tag := w.resolveTag(ctx, msg.Subject)

	anySucceeded := false
	for _, rawURL := range transcribable {
		if w.processOneURL(ctx, msg, rawURL, tag) {
			anySucceeded = true
		}
	}

	dest := w.cfg.Folders.Error
	if anySucceeded {
		dest = w.cfg.Folders.Done
	}
	w.finish(ctx, w.cfg.Folders.Inbox, dest, msg.UID)
}

func (w *Worker) submitAndAwait(ctx context.Context, rawURL, tag string) (*model.Transcription, error) {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.OpTimeout)
	defer cancel()

	tr, err := w.frontend.Submit(ctx, rawURL, tag)
	var dup *ErrDuplicate
	if err != nil {
		if errors.As(err, &dup) {
			tr, err = w.frontend.WaitForTerminal(ctx, dup.ExistingID)
		} else {
			return nil, err
		}
	}
	if err != nil {
		return nil, err
	}

	if tr.Status != model.StatusCompleted && tr.Status != model.StatusFailed {
		tr, err = w.frontend.WaitForTerminal(ctx, tr.ID)
		if err != nil {
			return nil, err
		}
	}
	if tr.Status != model.StatusCompleted {
		errMsg := "transcription failed"
		if tr.ErrorMessage != nil {
			errMsg = *tr.ErrorMessage
		}
		return nil, fmt.Errorf("%s", errMsg)
	}
	return tr, nil
}

func (w *Worker) processOneURL(ctx context.Context, msg Message, rawURL, tag string) bool {
	tr, err := w.submitAndAwait(ctx, rawURL, tag)
	if err != nil {
		w.notifyError(ctx, msg, rawURL, err)
		return false
	}

	summaryHTML, err := w.frontend.RequestHTMLSummary(ctx, tr.ID, htmlSummarySuffix)
	if err != nil {
		w.notifyError(ctx, msg, rawURL, err)
		return false
	}

	to := w.resolveDestination(ctx, tag, msg.From)

	body, err := mailfmt.BuildSuccess(mailfmt.SuccessInput{
		To:            to,
		From:          w.cfg.FromAddress,
		Subject:       successSubject(tr),
		Transcription: tr,
		SummaryHTML:   summaryHTML,
	})
	if err != nil {
		slog.Error("mailworker: compose success email failed", "error", err)
		return false
	}

	if err := w.retryMail(ctx, "send success email", func() error { return w.mailer.Send(to, body) }); err != nil {
		slog.Error("mailworker: send success email failed", "error", err)
		return false
	}

	return true
}

// resolveDestination is the tag's configured destination_emails override,
// joined for a multi-recipient To header, falling back to the original
// sender when no override is set or the lookup fails, per spec.md §4.7 and
// the mail happy-path scenario in §8.
func (w *Worker) resolveDestination(ctx context.Context, tag, from string) string {
	emails, err := w.frontend.DestinationEmails(ctx, tag)
	if err != nil {
		slog.Warn("mailworker: destination emails lookup failed, using sender", "tag", tag, "error", err)
		return extractAddress(from)
	}
	if len(emails) == 0 {
		return extractAddress(from)
	}
	return strings.Join(emails, ", ")
}

// processEpisodeSource implements spec.md §4.8's episode-sources steps a-e.
func (w *Worker) processEpisodeSource(ctx context.Context, msg Message) {
	urls := extractURLs(msg)
	eligible := filterURLs(urls, mailext.IsEpisodeSourceURL)

	if len(eligible) == 0 {
		w.notifyNoURLs(ctx, msg)
		w.finish(ctx, w.cfg.Folders.EpisodeSources, w.cfg.Folders.EpisodeSourcesError, msg.UID)
		return
	}
	matchedURL := eligible[0]

	sourceText := msg.PlainBody
	if !msg.HasPlainPart && msg.HTMLBody != "" {
		sourceText = mailext.ToPlainText(msg.HTMLBody)
	}

	tr, err := w.submitAndAwait(ctx, matchedURL, w.cfg.DigestTag)
	if err != nil {
		w.notifyError(ctx, msg, matchedURL, err)
		w.finish(ctx, w.cfg.Folders.EpisodeSources, w.cfg.Folders.EpisodeSourcesError, msg.UID)
		return
	}

	summaryHTML, err := w.frontend.RequestHTMLSummary(ctx, tr.ID, htmlSummarySuffix)
	if err != nil {
		w.notifyError(ctx, msg, matchedURL, err)
		w.finish(ctx, w.cfg.Folders.EpisodeSources, w.cfg.Folders.EpisodeSourcesError, msg.UID)
		return
	}

	subject := &msg.Subject
	from := &msg.From
	if err := w.frontend.CreateEpisodeSource(ctx, tr.ID, sourceText, matchedURL, subject, from); err != nil {
		slog.Error("mailworker: create episode source failed", "error", err)
	}

	body, err := mailfmt.BuildSuccess(mailfmt.SuccessInput{
		To:            w.cfg.ReturnAddress,
		From:          w.cfg.FromAddress,
		Subject:       "Scribe: " + msg.Subject,
		Transcription: tr,
		SummaryHTML:   "<p>Matched URL: " + matchedURL + "</p>\n" + summaryHTML,
	})
	if err == nil {
		if err := w.retryMail(ctx, "send episode source result", func() error { return w.mailer.Send(w.cfg.ReturnAddress, body) }); err != nil {
			slog.Error("mailworker: send episode source result failed", "error", err)
		}
	}

	w.finish(ctx, w.cfg.Folders.EpisodeSources, w.cfg.Folders.EpisodeSourcesDone, msg.UID)
}

func (w *Worker) finish(ctx context.Context, mailbox, dest string, uid uint32) {
	if err := w.retryMail(ctx, "move message", func() error { return w.mail.MoveTo(ctx, mailbox, dest, uid) }); err != nil {
		slog.Error("mailworker: move message failed", "mailbox", mailbox, "dest", dest, "uid", uid, "error", err)
	}
}

func (w *Worker) notifyNoURLs(ctx context.Context, msg Message) {
	body := mailfmt.NoTranscribableURLsBody(msg.Subject)
	raw, err := mailfmt.BuildNotice(extractAddress(msg.From), w.cfg.FromAddress, "Scribe: no transcribable URLs found", body)
	if err != nil {
		slog.Error("mailworker: compose no-urls notice failed", "error", err)
		return
	}
	if err := w.retryMail(ctx, "send no-urls notice", func() error { return w.mailer.Send(extractAddress(msg.From), raw) }); err != nil {
		slog.Error("mailworker: send no-urls notice failed", "error", err)
	}
}

func (w *Worker) notifyError(ctx context.Context, msg Message, rawURL string, cause error) {
	body := mailfmt.ProcessingErrorBody(rawURL, cause.Error())
	raw, err := mailfmt.BuildNotice(extractAddress(msg.From), w.cfg.FromAddress, "Scribe: processing failed", body)
	if err != nil {
		slog.Error("mailworker: compose error notice failed", "error", err)
		return
	}
	if err := w.retryMail(ctx, "send error notice", func() error { return w.mailer.Send(extractAddress(msg.From), raw) }); err != nil {
		slog.Error("mailworker: send error notice failed", "error", err)
	}
}

// resolveTag implements spec.md §4.8c: lowercase-split the subject on
// whitespace, the first word matching a known tag wins, else the
// configured default. A tag-fetch failure falls back to the default too.
func (w *Worker) resolveTag(ctx context.Context, subject string) string {
	tags, err := w.frontend.ListTagNames(ctx)
	if err != nil {
		slog.Warn("mailworker: list tags failed, using default", "error", err)
		return w.cfg.DefaultTag
	}

	known := make(map[string]bool, len(tags))
	for _, t := range tags {
		known[t] = true
	}

	for _, word := range strings.Fields(strings.ToLower(subject)) {
		if known[word] {
			return word
		}
	}
	return w.cfg.DefaultTag
}

func extractURLs(msg Message) []string {
	var urls []string
	if msg.PlainBody != "" {
		urls = append(urls, mailext.ExtractPlainText(msg.PlainBody)...)
	}
	if msg.HTMLBody != "" {
		urls = append(urls, mailext.ExtractHTML(msg.HTMLBody)...)
	}
	return dedupURLs(urls)
}

func dedupURLs(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

func filterURLs(urls []string, keep func(string) bool) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if keep(u) {
			out = append(out, u)
		}
	}
	return out
}

func successSubject(tr *model.Transcription) string {
	if tr.Title != nil && *tr.Title != "" {
		return "Scribe: " + *tr.Title
	}
	return "Scribe: transcription complete"
}
