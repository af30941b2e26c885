// Package eml extracts text from RFC 822 email messages.
package eml

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/extractors/html"
)

// Ensure Extractor implements the interface.
var _ driven.Extractor = (*Extractor)(nil)

// ContentType is the media type of a single email message.
const ContentType = "message/rfc822"

// Extractor renders the main headers followed by the message body.
// Plain text parts are preferred over HTML ones. Attachments are skipped.
type Extractor struct {
	html *html.Extractor
}

// New creates a new email extractor.
func New() *Extractor {
	return &Extractor{html: html.New()}
}

// Name identifies the extractor.
func (e *Extractor) Name() string { return "eml" }

// SupportedContentTypes returns the content types this extractor handles.
func (e *Extractor) SupportedContentTypes() []string {
	return []string{ContentType}
}

// Priority returns the selection priority.
func (e *Extractor) Priority() int {
	return 50
}

// Extract returns From, To, Date and Subject lines, a blank line and the body.
func (e *Extractor) Extract(ctx context.Context, content []byte, _ string) (string, error) {
	if content == nil {
		return "", domain.ErrInvalidInput
	}

	msg, err := mail.ReadMessage(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("%w: parse message: %v", domain.ErrInvalidInput, err)
	}

	var out strings.Builder
	for _, name := range []string{"From", "To", "Date", "Subject"} {
		if v := decodeHeader(msg.Header.Get(name)); v != "" {
			out.WriteString(name + ": " + v + "\n")
		}
	}

	body, err := e.body(ctx, msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"), msg.Body)
	if err != nil {
		return "", err
	}
	if body != "" {
		if out.Len() > 0 {
			out.WriteString("\n")
		}
		out.WriteString(body)
	}

	return strings.TrimSpace(out.String()), nil
}

func (e *Extractor) body(ctx context.Context, contentType, encoding string, r io.Reader) (string, error) {
	if contentType == "" {
		contentType = "text/plain"
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		return e.multipart(ctx, r, params["boundary"])
	}

	raw, err := io.ReadAll(decodeTransfer(r, encoding))
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", domain.ErrInvalidInput, err)
	}
	return e.text(ctx, mediaType, raw)
}

func (e *Extractor) text(ctx context.Context, mediaType string, raw []byte) (string, error) {
	switch mediaType {
	case "text/html":
		return e.html.Extract(ctx, raw, mediaType)
	case "text/plain":
		text := strings.ToValidUTF8(string(raw), "\uFFFD")
		return strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n")), nil
	default:
		return "", nil
	}
}

func (e *Extractor) multipart(ctx context.Context, r io.Reader, boundary string) (string, error) {
	if boundary == "" {
		return "", nil
	}

	var plain, rich []string
	mr := multipart.NewReader(r, boundary)
	for {
		part, err := mr.NextPart()
		if err != nil {
			// A truncated message keeps the parts read so far.
			break
		}

		disposition, _, _ := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
		if disposition == "attachment" {
			part.Close()
			continue
		}

		partType := part.Header.Get("Content-Type")
		mediaType, _, err := mime.ParseMediaType(partType)
		if err != nil {
			mediaType = "text/plain"
		}

		// multipart.Reader already decodes quoted-printable parts.
		text, err := e.body(ctx, partType, part.Header.Get("Content-Transfer-Encoding"), part)
		part.Close()
		if err != nil || text == "" {
			continue
		}

		if mediaType == "text/html" {
			rich = append(rich, text)
		} else {
			plain = append(plain, text)
		}
	}

	if len(plain) > 0 {
		return strings.Join(plain, "\n\n"), nil
	}
	return strings.Join(rich, "\n\n"), nil
}

func decodeTransfer(r io.Reader, encoding string) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	default:
		return r
	}
}

// decodeHeader decodes RFC 2047 encoded words, returning the input on failure.
func decodeHeader(header string) string {
	if header == "" {
		return ""
	}
	decoded, err := new(mime.WordDecoder).DecodeHeader(header)
	if err != nil {
		return header
	}
	return decoded
}
