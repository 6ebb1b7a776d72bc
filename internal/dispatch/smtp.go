package dispatch

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/wneessen/go-mail"

	"photobox/internal/box"
	"photobox/internal/config"
)

// SMTPDispatcher mails archives through an SMTP relay.
type SMTPDispatcher struct {
	tmpl   Template
	client *mail.Client
	logger box.Logger
}

var _ box.Dispatcher = (*SMTPDispatcher)(nil)

// NewSMTPDispatcher creates an SMTPDispatcher. No connection is made until Send.
func NewSMTPDispatcher(cfg config.SMTPConfig, tmpl Template, logger box.Logger) (*SMTPDispatcher, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}

	policy, err := tlsPolicy(cfg.TLS)
	if err != nil {
		return nil, err
	}

	opts := []mail.Option{
		mail.WithTLSPolicy(policy),
		mail.WithTimeout(30 * time.Second),
	}
	if cfg.Port != 0 {
		opts = append(opts, mail.WithPort(cfg.Port))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating smtp client: %w", err)
	}

	return &SMTPDispatcher{tmpl: tmpl, client: client, logger: logger}, nil
}

func tlsPolicy(name string) (mail.TLSPolicy, error) {
	switch name {
	case "mandatory", "":
		return mail.TLSMandatory, nil
	case "opportunistic":
		return mail.TLSOpportunistic, nil
	case "none":
		return mail.NoTLS, nil
	default:
		return mail.NoTLS, fmt.Errorf("unknown smtp tls policy: %q", name)
	}
}

// Send mails the archive as an attachment. A single delivery attempt is made.
func (d *SMTPDispatcher) Send(ctx context.Context, archive *box.Archive, content io.Reader) error {
	m, err := d.tmpl.NewMessage(archive, content)
	if err != nil {
		return err
	}
	msg, err := m.toMsg()
	if err != nil {
		return err
	}

	if err := d.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending %s to %s: %w", archive.Name, m.Recipient, err)
	}
	d.logger.Info("archive mailed", "archive", archive.Name, "recipient", m.Recipient, "size", len(m.Attachment.Content))
	return nil
}
