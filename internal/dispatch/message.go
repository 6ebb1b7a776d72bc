// Package dispatch transmits finished archives to their recipient.
package dispatch

import (
	"bytes"
	"fmt"
	"io"

	"github.com/wneessen/go-mail"

	"photobox/internal/box"
)

// ArchiveContentType is the MIME type archives are attached with.
const ArchiveContentType = "application/zip"

// Template holds the envelope and body fields shared by every dispatched message.
type Template struct {
	Sender    string
	Recipient string
	Subject   string
	TextBody  string
	HTMLBody  string
}

// Attachment is a file carried by a Message.
type Attachment struct {
	Name        string
	ContentType string
	Content     []byte
}

// Message is one outbound notification carrying a run's archive.
type Message struct {
	Sender     string
	Recipient  string
	Subject    string
	TextBody   string
	HTMLBody   string
	Attachment Attachment
}

// NewMessage reads content fully and wraps it in a Message addressed per t.
func (t Template) NewMessage(archive *box.Archive, content io.Reader) (*Message, error) {
	if archive == nil {
		return nil, fmt.Errorf("archive is required")
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, fmt.Errorf("reading archive %s: %w", archive.Name, err)
	}
	return &Message{
		Sender:    t.Sender,
		Recipient: t.Recipient,
		Subject:   t.Subject,
		TextBody:  t.TextBody,
		HTMLBody:  t.HTMLBody,
		Attachment: Attachment{
			Name:        archive.Name,
			ContentType: ArchiveContentType,
			Content:     data,
		},
	}, nil
}

// toMsg renders m as a MIME message with a base64 encoded attachment.
func (m *Message) toMsg() (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.Sender); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", m.Sender, err)
	}
	if err := msg.To(m.Recipient); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", m.Recipient, err)
	}
	msg.Subject(m.Subject)
	msg.SetBodyString(mail.TypeTextPlain, m.TextBody)
	if m.HTMLBody != "" {
		msg.AddAlternativeString(mail.TypeTextHTML, m.HTMLBody)
	}

	err := msg.AttachReader(m.Attachment.Name, bytes.NewReader(m.Attachment.Content),
		mail.WithFileContentType(mail.ContentType(m.Attachment.ContentType)),
		mail.WithFileEncoding(mail.EncodingB64),
	)
	if err != nil {
		return nil, fmt.Errorf("attaching %s: %w", m.Attachment.Name, err)
	}
	return msg, nil
}

// WriteTo writes m in RFC 5322 form to w.
func (m *Message) WriteTo(w io.Writer) (int64, error) {
	msg, err := m.toMsg()
	if err != nil {
		return 0, err
	}
	return msg.WriteTo(w)
}

// deliveryDir returns the path element that keeps an archive apart from
// archives of other runs built in the same millisecond.
func deliveryDir(archive *box.Archive) (string, error) {
	dir, err := box.ArtifactName(archive.RunID)
	if err != nil || dir != archive.RunID {
		return "", fmt.Errorf("archive %s has invalid run id %q", archive.Name, archive.RunID)
	}
	return dir, nil
}
