// Package mailfmt composes the success/error email bodies from spec.md
// §4.9: a multipart (HTML + plain-text) success message, and single-part
// plain-text error/no-URL notices.
package mailfmt

import (
	"bytes"
	"fmt"
	htmlpkg "html"
	"strings"
	"time"

	"github.com/emersion/go-message"

	"scribe/internal/mailext"
	"scribe/internal/model"
)

// htmlSummaryBoundary is the fixed MIME boundary token used for every
// multipart/alternative message this package builds.
const htmlSummaryBoundary = "scribe-alt-boundary"

// SuccessInput is everything needed to render a completed transcription's
// result email.
type SuccessInput struct {
	To            string
	From          string
	Transcription *model.Transcription
	SummaryHTML   string
	Subject       string
}

// BuildSuccess renders the multipart/alternative success message: an
// HTML part with Source/Duration/Transcribed metadata, the verbatim LLM
// summary HTML, an optional Creator's Notes section, and the HTML-escaped
// transcript; and a plain-text alternative with `---` section separators.
func BuildSuccess(in SuccessInput) ([]byte, error) {
	plain := composePlain(in)
	html := composeHTML(in)
	return buildMultipart(in.To, in.From, in.Subject, plain, html)
}

func composeHTML(in SuccessInput) string {
	tr := in.Transcription
	var b strings.Builder

	b.WriteString("<h2>Source</h2>\n<ul>\n")
	if tr.Title != nil {
		fmt.Fprintf(&b, "<li><strong>Title:</strong> %s</li>\n", htmlpkg.EscapeString(*tr.Title))
	}
	if tr.Channel != nil {
		fmt.Fprintf(&b, "<li><strong>Channel:</strong> %s</li>\n", htmlpkg.EscapeString(*tr.Channel))
	}
	fmt.Fprintf(&b, "<li><strong>URL:</strong> <a href=\"%s\">%s</a></li>\n", htmlpkg.EscapeString(tr.SourceURL), htmlpkg.EscapeString(tr.SourceURL))
	if tr.DurationSecs != nil {
		fmt.Fprintf(&b, "<li><strong>Duration:</strong> %s</li>\n", formatDuration(*tr.DurationSecs))
	}
	if tr.TranscribedAt != nil {
		fmt.Fprintf(&b, "<li><strong>Transcribed:</strong> %s</li>\n", tr.TranscribedAt.UTC().Format(time.RFC1123))
	}
	b.WriteString("</ul>\n")

	b.WriteString("<h2>Summary</h2>\n")
	b.WriteString(in.SummaryHTML)
	b.WriteString("\n")

	if tr.SourceContext != nil && strings.TrimSpace(*tr.SourceContext) != "" {
		b.WriteString("<h2>Creator's Notes</h2>\n<p>")
		b.WriteString(escapeWithBreaks(*tr.SourceContext))
		b.WriteString("</p>\n")
	}

	b.WriteString("<h2>Transcript</h2>\n<p>")
	if tr.FullText != nil {
		b.WriteString(escapeWithBreaks(*tr.FullText))
	}
	b.WriteString("</p>\n")

	return b.String()
}

func composePlain(in SuccessInput) string {
	tr := in.Transcription
	var b strings.Builder

	if tr.Title != nil {
		fmt.Fprintf(&b, "Title: %s\n", *tr.Title)
	}
	if tr.Channel != nil {
		fmt.Fprintf(&b, "Channel: %s\n", *tr.Channel)
	}
	fmt.Fprintf(&b, "URL: %s\n", tr.SourceURL)
	if tr.DurationSecs != nil {
		fmt.Fprintf(&b, "Duration: %s\n", formatDuration(*tr.DurationSecs))
	}
	if tr.TranscribedAt != nil {
		fmt.Fprintf(&b, "Transcribed: %s\n", tr.TranscribedAt.UTC().Format(time.RFC1123))
	}

	b.WriteString("\n--- SUMMARY ---\n")
	b.WriteString(mailext.ToPlainText(in.SummaryHTML))
	b.WriteString("\n")

	if tr.SourceContext != nil && strings.TrimSpace(*tr.SourceContext) != "" {
		b.WriteString("\n--- CREATOR'S NOTES ---\n")
		b.WriteString(*tr.SourceContext)
		b.WriteString("\n")
	}

	b.WriteString("\n--- TRANSCRIPT ---\n")
	if tr.FullText != nil {
		b.WriteString(*tr.FullText)
	}
	b.WriteString("\n")

	return b.String()
}

func escapeWithBreaks(s string) string {
	escaped := htmlpkg.EscapeString(s)
	return strings.ReplaceAll(escaped, "\n", "<br>")
}

func formatDuration(seconds float64) string {
	total := int64(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	return fmt.Sprintf("%dm %ds", m, s)
}

// BuildNotice renders a single-part plain-text error or "no transcribable
// URLs" notice. subject and body carry the fixed templates the caller
// selects.
func BuildNotice(to, from, subject, body string) ([]byte, error) {
	return buildPlain(to, from, subject, body)
}

// NoTranscribableURLsBody is the fixed template for spec.md §4.8(b).
func NoTranscribableURLsBody(originalSubject string) string {
	return fmt.Sprintf(
		"Scribe could not find any transcribable URLs in your message \"%s\".\n\n"+
			"Supported links: YouTube, Apple Podcasts, Podcast Addict, or a direct audio file (mp3, m4a, wav, ogg, flac, aac).\n",
		originalSubject,
	)
}

// ProcessingErrorBody is the fixed template for a terminal pipeline failure.
func ProcessingErrorBody(sourceURL, reason string) string {
	return fmt.Sprintf(
		"Scribe was unable to process %s.\n\nReason: %s\n",
		sourceURL, reason,
	)
}

func buildMultipart(to, from, subject, plain, html string) ([]byte, error) {
	var buf bytes.Buffer

	var h message.Header
	h.Set("MIME-Version", "1.0")
	h.Set("From", from)
	h.Set("To", to)
	h.Set("Subject", subject)
	h.Set("Date", time.Now().UTC().Format(time.RFC1123Z))
	h.Set("Content-Type", fmt.Sprintf(`multipart/alternative; boundary="%s"`, htmlSummaryBoundary))
	if _, err := h.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write mail header: %w", err)
	}

	fmt.Fprintf(&buf, "\r\n--%s\r\n", htmlSummaryBoundary)
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	buf.WriteString(plain)

	fmt.Fprintf(&buf, "\r\n--%s\r\n", htmlSummaryBoundary)
	buf.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	buf.WriteString(html)

	fmt.Fprintf(&buf, "\r\n--%s--\r\n", htmlSummaryBoundary)

	return buf.Bytes(), nil
}

func buildPlain(to, from, subject, body string) ([]byte, error) {
	var buf bytes.Buffer

	var h message.Header
	h.Set("MIME-Version", "1.0")
	h.Set("From", from)
	h.Set("To", to)
	h.Set("Subject", subject)
	h.Set("Date", time.Now().UTC().Format(time.RFC1123Z))
	h.Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := h.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write mail header: %w", err)
	}

	buf.WriteString("\r\n")
	buf.WriteString(body)

	return buf.Bytes(), nil
}
