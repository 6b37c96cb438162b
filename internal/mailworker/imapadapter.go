package mailworker

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/mail"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// IMAPAdapter wraps a single go-imap/v2 connection as a MailClient. The
// worker requires the server to support COPY+EXPUNGE moves and the \Seen
// flag, per spec.md §6.
type IMAPAdapter struct {
	client *imapclient.Client
}

// DialIMAP connects and authenticates against an IMAPS server.
func DialIMAP(host string, port int, user, password string) (*IMAPAdapter, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	c, err := imapclient.DialTLS(addr, &imapclient.Options{TLSConfig: &tls.Config{ServerName: host}})
	if err != nil {
		return nil, fmt.Errorf("dial imap: %w", err)
	}
	if err := c.Login(user, password).Wait(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("imap login: %w", err)
	}
	return &IMAPAdapter{client: c}, nil
}

func (a *IMAPAdapter) Close() error {
	return a.client.Close()
}

// Unseen selects mailbox, searches for messages lacking \Seen, and fetches
// their envelope and full raw body.
func (a *IMAPAdapter) Unseen(ctx context.Context, mailbox string) ([]Message, error) {
	if _, err := a.client.Select(mailbox, nil).Wait(); err != nil {
		return nil, fmt.Errorf("select %s: %w", mailbox, err)
	}

	searchData, err := a.client.Search(&imapv2.SearchCriteria{
		NotFlag: []imapv2.Flag{imapv2.FlagSeen},
	}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("search unseen in %s: %w", mailbox, err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	var uidSet imapv2.UIDSet
	uidSet.AddNum(uids...)

	fetchCmd := a.client.Fetch(uidSet, &imapv2.FetchOptions{
		Envelope:    true,
		BodySection: []*imapv2.FetchItemBodySection{{}},
	})
	defer fetchCmd.Close()

	var messages []Message
	for {
		item := fetchCmd.Next()
		if item == nil {
			break
		}
		msg, err := parseFetchItem(item)
		if err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("fetch unseen in %s: %w", mailbox, err)
	}

	return messages, nil
}

func parseFetchItem(item *imapclient.FetchMessageData) (Message, error) {
	var msg Message
	for {
		fi := item.Next()
		if fi == nil {
			break
		}
		switch data := fi.(type) {
		case imapclient.FetchItemDataUID:
			msg.UID = uint32(data.UID)
		case imapclient.FetchItemDataEnvelope:
			if data.Envelope != nil {
				msg.Subject = data.Envelope.Subject
				if len(data.Envelope.From) > 0 {
					msg.From = data.Envelope.From[0].Addr()
				}
			}
		case imapclient.FetchItemDataBodySection:
			raw, err := io.ReadAll(data.Literal)
			if err != nil {
				continue
			}
			fillBodyParts(&msg, raw)
		}
	}
	return msg, nil
}

func fillBodyParts(msg *Message, raw []byte) {
	m, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		msg.PlainBody = string(raw)
		msg.HasPlainPart = true
		return
	}
	contentType := m.Header.Get("Content-Type")
	body, err := io.ReadAll(m.Body)
	if err != nil {
		return
	}
	if containsHTML(contentType) {
		msg.HTMLBody = string(body)
	} else {
		msg.PlainBody = string(body)
		msg.HasPlainPart = true
	}
}

func containsHTML(contentType string) bool {
	for i := 0; i+9 <= len(contentType); i++ {
		if contentType[i:i+9] == "text/html" {
			return true
		}
	}
	return false
}

// MarkSeen flags uid \Seen immediately, per spec.md §4.8 step 2.
func (a *IMAPAdapter) MarkSeen(ctx context.Context, mailbox string, uid uint32) error {
	if _, err := a.client.Select(mailbox, nil).Wait(); err != nil {
		return fmt.Errorf("select %s: %w", mailbox, err)
	}
	var uidSet imapv2.UIDSet
	uidSet.AddNum(imapv2.UID(uid))

	return a.client.Store(uidSet, &imapv2.StoreFlags{
		Op:    imapv2.StoreFlagsAdd,
		Flags: []imapv2.Flag{imapv2.FlagSeen},
	}, nil).Close()
}

// MoveTo copies uid into destMailbox, marks it \Deleted, and expunges the
// source mailbox.
func (a *IMAPAdapter) MoveTo(ctx context.Context, mailbox, destMailbox string, uid uint32) error {
	if _, err := a.client.Select(mailbox, nil).Wait(); err != nil {
		return fmt.Errorf("select %s: %w", mailbox, err)
	}
	var uidSet imapv2.UIDSet
	uidSet.AddNum(imapv2.UID(uid))

	if _, err := a.client.Copy(uidSet, destMailbox).Wait(); err != nil {
		return fmt.Errorf("copy to %s: %w", destMailbox, err)
	}
	if err := a.client.Store(uidSet, &imapv2.StoreFlags{
		Op:    imapv2.StoreFlagsAdd,
		Flags: []imapv2.Flag{imapv2.FlagDeleted},
	}, nil).Close(); err != nil {
		return fmt.Errorf("flag deleted: %w", err)
	}
	if err := a.client.Expunge().Close(); err != nil {
		return fmt.Errorf("expunge %s: %w", mailbox, err)
	}
	return nil
}
