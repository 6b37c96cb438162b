package mailworker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scribe/internal/model"
)

type fakeMailClient struct {
	mu     sync.Mutex
	unseen map[string][]Message
	seen   map[uint32]bool
	moved  map[uint32]string
}

func newFakeMailClient() *fakeMailClient {
	return &fakeMailClient{
		unseen: make(map[string][]Message),
		seen:   make(map[uint32]bool),
		moved:  make(map[uint32]string),
	}
}

func (f *fakeMailClient) Unseen(ctx context.Context, mailbox string) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.unseen[mailbox]
	f.unseen[mailbox] = nil
	return msgs, nil
}

func (f *fakeMailClient) MarkSeen(ctx context.Context, mailbox string, uid uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen[uid] = true
	return nil
}

func (f *fakeMailClient) MoveTo(ctx context.Context, mailbox, destMailbox string, uid uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moved[uid] = destMailbox
	return nil
}

func (f *fakeMailClient) Close() error { return nil }

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

type sentMail struct {
	to  string
	raw []byte
}

func (f *fakeMailer) Send(to string, raw []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMail{to: to, raw: raw})
	return nil
}

type fakeFrontend struct {
	mu                sync.Mutex
	submitErr         error
	submitResult      *model.Transcription
	tagNames          []string
	tagNamesErr       error
	summaryHTML       string
	createdSources    []string
	destinationEmails []string
	destinationErr    error
}

func (f *fakeFrontend) Submit(ctx context.Context, rawURL, tag string) (*model.Transcription, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return f.submitResult, nil
}

func (f *fakeFrontend) WaitForTerminal(ctx context.Context, id string) (*model.Transcription, error) {
	return f.submitResult, nil
}

func (f *fakeFrontend) RequestHTMLSummary(ctx context.Context, transcriptionID, htmlSuffix string) (string, error) {
	return f.summaryHTML, nil
}

func (f *fakeFrontend) ListTagNames(ctx context.Context) ([]string, error) {
	if f.tagNamesErr != nil {
		return nil, f.tagNamesErr
	}
	return f.tagNames, nil
}

func (f *fakeFrontend) CreateEpisodeSource(ctx context.Context, transcriptionID, sourceText, matchedURL string, subject, from *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createdSources = append(f.createdSources, matchedURL)
	return nil
}

func (f *fakeFrontend) DestinationEmails(ctx context.Context, tag string) ([]string, error) {
	if f.destinationErr != nil {
		return nil, f.destinationErr
	}
	return f.destinationEmails, nil
}

func completedTranscription(id string) *model.Transcription {
	title := "Test Episode"
	full := "hello world transcript"
	return &model.Transcription{
		ID:         id,
		SourceType: model.SourceYouTube,
		SourceURL:  "https://www.youtube.com/watch?v=abc12345678",
		Title:      &title,
		FullText:   &full,
		Status:     model.StatusCompleted,
	}
}

func testWorkerConfig() Config {
	return Config{
		Folders: Folders{
			Inbox:               "INBOX",
			Done:                "Done",
			Error:               "Error",
			EpisodeSources:      "EpisodeSources",
			EpisodeSourcesDone:  "EpisodeSources/Done",
			EpisodeSourcesError: "EpisodeSources/Error",
		},
		PollInterval:     10 * time.Millisecond,
		Concurrency:      3,
		OpTimeout:        2 * time.Second,
		RetryAttempts:    3,
		RetryBackoffBase: time.Millisecond,
		ReturnAddress:    "digest@example.com",
		FromAddress:      "scribe@example.com",
		DefaultTag:       "general",
		DigestTag:        "digest",
	}
}

func TestProcessGeneric_SubmitsAndSendsSuccess(t *testing.T) {
	mail := newFakeMailClient()
	mailer := &fakeMailer{}
	frontend := &fakeFrontend{
		submitResult: completedTranscription("tr-1"),
		tagNames:     []string{"general", "news"},
		summaryHTML:  "<p>summary</p>",
	}
	w := New(mail, frontend, mailer, testWorkerConfig())

	msg := Message{
		UID:       1,
		Subject:   "news today",
		From:      "Alice <alice@example.com>",
		PlainBody: "check this out https://www.youtube.com/watch?v=abc12345678",
	}

	w.processGeneric(context.Background(), msg)

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "alice@example.com", mailer.sent[0].to)
	assert.Equal(t, "Done", mail.moved[1])
}

func TestProcessGeneric_NoURLsMovesToError(t *testing.T) {
	mail := newFakeMailClient()
	mailer := &fakeMailer{}
	frontend := &fakeFrontend{}
	w := New(mail, frontend, mailer, testWorkerConfig())

	msg := Message{UID: 2, Subject: "hi", From: "bob@example.com", PlainBody: "no links here"}
	w.processGeneric(context.Background(), msg)

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "Error", mail.moved[2])
}

func TestProcessGeneric_SubmitFailureMovesToError(t *testing.T) {
	mail := newFakeMailClient()
	mailer := &fakeMailer{}
	frontend := &fakeFrontend{submitErr: assertErr("boom")}
	w := New(mail, frontend, mailer, testWorkerConfig())

	msg := Message{
		UID:       3,
		Subject:   "whoops",
		From:      "carol@example.com",
		PlainBody: "https://www.youtube.com/watch?v=abc12345678",
	}
	w.processGeneric(context.Background(), msg)

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "Error", mail.moved[3])
}

func TestProcessEpisodeSource_SendsToReturnAddress(t *testing.T) {
	mail := newFakeMailClient()
	mailer := &fakeMailer{}
	frontend := &fakeFrontend{
		submitResult: completedTranscription("tr-2"),
		summaryHTML:  "<p>digest</p>",
	}
	w := New(mail, frontend, mailer, testWorkerConfig())

	msg := Message{
		UID:       4,
		Subject:   "Episode drop",
		From:      "dana@example.com",
		PlainBody: "new one: https://www.youtube.com/watch?v=abc12345678",
	}
	w.processEpisodeSource(context.Background(), msg)

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "digest@example.com", mailer.sent[0].to)
	assert.Equal(t, "EpisodeSources/Done", mail.moved[4])
	assert.Len(t, frontend.createdSources, 1)
}

func TestProcessEpisodeSource_ExcludesDirectAudio(t *testing.T) {
	mail := newFakeMailClient()
	mailer := &fakeMailer{}
	frontend := &fakeFrontend{}
	w := New(mail, frontend, mailer, testWorkerConfig())

	msg := Message{
		UID:       5,
		Subject:   "raw file",
		From:      "eve@example.com",
		PlainBody: "https://files.example.com/episode.mp3",
	}
	w.processEpisodeSource(context.Background(), msg)

	assert.Equal(t, "EpisodeSources/Error", mail.moved[5])
	assert.Empty(t, frontend.createdSources)
}

func TestResolveTag_FallsBackOnListError(t *testing.T) {
	frontend := &fakeFrontend{tagNamesErr: assertErr("frontend unavailable")}
	w := New(newFakeMailClient(), frontend, &fakeMailer{}, testWorkerConfig())

	tag := w.resolveTag(context.Background(), "general updates")
	assert.Equal(t, "general", tag)
}

func TestResolveTag_MatchesSubjectWord(t *testing.T) {
	frontend := &fakeFrontend{tagNames: []string{"sports", "news"}}
	w := New(newFakeMailClient(), frontend, &fakeMailer{}, testWorkerConfig())

	tag := w.resolveTag(context.Background(), "Sports roundup for today")
	assert.Equal(t, "sports", tag)
}

func TestProcessGeneric_UsesTagDestinationEmailsOverride(t *testing.T) {
	mail := newFakeMailClient()
	mailer := &fakeMailer{}
	frontend := &fakeFrontend{
		submitResult:      completedTranscription("tr-3"),
		tagNames:          []string{"general", "news"},
		summaryHTML:       "<p>summary</p>",
		destinationEmails: []string{"team@example.com", "archive@example.com"},
	}
	w := New(mail, frontend, mailer, testWorkerConfig())

	msg := Message{
		UID:       6,
		Subject:   "news today",
		From:      "Alice <alice@example.com>",
		PlainBody: "check this out https://www.youtube.com/watch?v=abc12345678",
	}
	w.processGeneric(context.Background(), msg)

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "team@example.com, archive@example.com", mailer.sent[0].to)
}

func TestProcessGeneric_DestinationLookupFailureFallsBackToSender(t *testing.T) {
	mail := newFakeMailClient()
	mailer := &fakeMailer{}
	frontend := &fakeFrontend{
		submitResult:   completedTranscription("tr-4"),
		tagNames:       []string{"general"},
		summaryHTML:    "<p>summary</p>",
		destinationErr: assertErr("tag config unavailable"),
	}
	w := New(mail, frontend, mailer, testWorkerConfig())

	msg := Message{
		UID:       7,
		Subject:   "general",
		From:      "Frank <frank@example.com>",
		PlainBody: "https://www.youtube.com/watch?v=abc12345678",
	}
	w.processGeneric(context.Background(), msg)

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "frank@example.com", mailer.sent[0].to)
}

type flakyMailClient struct {
	*fakeMailClient
	failuresLeft int
}

func (f *flakyMailClient) Unseen(ctx context.Context, mailbox string) ([]Message, error) {
	if f.failuresLeft > 0 {
		f.failuresLeft--
		return nil, assertErr("transient imap error")
	}
	return f.fakeMailClient.Unseen(ctx, mailbox)
}

func TestPollMailbox_RetriesTransientUnseenFailure(t *testing.T) {
	mail := &flakyMailClient{fakeMailClient: newFakeMailClient(), failuresLeft: 2}
	mail.unseen["INBOX"] = []Message{{UID: 9, Subject: "hi", From: "gail@example.com", PlainBody: "no links"}}
	mailer := &fakeMailer{}
	frontend := &fakeFrontend{}
	w := New(mail, frontend, mailer, testWorkerConfig())

	w.pollMailbox(context.Background(), "INBOX", w.processGeneric)

	assert.Equal(t, 0, mail.failuresLeft)
	assert.Equal(t, "Error", mail.moved[9])
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func assertErr(msg string) error { return simpleErr(msg) }
