package mailworker

import "context"

// Message is one fetched mailbox entry: the pieces the state machine needs
// to extract URLs, derive a tag, and reply.
type Message struct {
	UID          uint32
	Subject      string
	From         string
	PlainBody    string
	HTMLBody     string
	HasPlainPart bool
}

// MailClient abstracts the IMAP operations the poll loop needs. The real
// implementation wraps go-imap/v2's imapclient.Client; tests substitute a
// fake so the state machine is exercised without a live IMAP server.
type MailClient interface {
	// Unseen selects mailbox and returns every message not yet flagged
	// \Seen, in ascending UID order.
	Unseen(ctx context.Context, mailbox string) ([]Message, error)
	// MarkSeen flags uid \Seen, done immediately on fetch per spec.md
	// §4.8 step 2's crash-safety rule.
	MarkSeen(ctx context.Context, mailbox string, uid uint32) error
	// MoveTo copies uid into destMailbox, flags it \Deleted in the
	// source, and expunges — the COPY+EXPUNGE transition spec.md §6
	// requires.
	MoveTo(ctx context.Context, mailbox, destMailbox string, uid uint32) error
	Close() error
}

// Mailer sends a pre-composed RFC 5322 message.
type Mailer interface {
	Send(to string, raw []byte) error
}
