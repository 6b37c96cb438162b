package mailworker

import (
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPClient sends pre-composed RFC 5322 messages, choosing STARTTLS on
// 587 or implicit TLS on 465 per spec.md §6.
type SMTPClient struct {
	host     string
	port     int
	user     string
	password string
	from     string
}

// NewSMTPClient builds an SMTPClient.
func NewSMTPClient(host string, port int, user, password, from string) *SMTPClient {
	return &SMTPClient{host: host, port: port, user: user, password: password, from: from}
}

// Send delivers raw (a fully-formed RFC 5322 message) to recipients. to may
// be a single address or a comma-separated list, matching the message's To
// header.
func (c *SMTPClient) Send(to string, raw []byte) error {
	addr := fmt.Sprintf("%s:%d", c.host, c.port)
	auth := smtp.PlainAuth("", c.user, c.password, c.host)
	recipients := splitAddresses(to)

	if c.port == 465 {
		return c.sendImplicitTLS(addr, auth, recipients, raw)
	}
	return smtp.SendMail(addr, auth, c.from, recipients, raw)
}

func splitAddresses(to string) []string {
	parts := strings.Split(to, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *SMTPClient) sendImplicitTLS(addr string, auth smtp.Auth, recipients []string, raw []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: c.host})
	if err != nil {
		return fmt.Errorf("dial implicit tls: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, c.host)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(c.from); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt to %s: %w", rcpt, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("smtp write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close body: %w", err)
	}
	return client.Quit()
}

// extractAddress pulls the bare email out of a "Name <addr>" header value.
func extractAddress(header string) string {
	if i := strings.LastIndex(header, "<"); i >= 0 {
		if j := strings.LastIndex(header, ">"); j > i {
			return header[i+1 : j]
		}
	}
	return strings.TrimSpace(header)
}
