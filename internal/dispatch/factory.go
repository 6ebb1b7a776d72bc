package dispatch

import (
	"context"
	"fmt"

	"photobox/internal/box"
	"photobox/internal/config"
)

// TemplateFromConfig extracts the message template from the dispatch config.
func TemplateFromConfig(cfg config.DispatchConfig) Template {
	return Template{
		Sender:    cfg.Sender,
		Recipient: cfg.Recipient,
		Subject:   cfg.Subject,
		TextBody:  cfg.TextBody,
		HTMLBody:  cfg.HTMLBody,
	}
}

// NewDispatcherFromConfig creates a Dispatcher based on the configuration type.
// encryptor may be nil; it is used by the transports that keep archives at rest.
func NewDispatcherFromConfig(ctx context.Context, cfg config.DispatchConfig, encryptor box.Encryptor, logger box.Logger) (box.Dispatcher, error) {
	tmpl := TemplateFromConfig(cfg)

	switch cfg.Type {
	case "smtp":
		if cfg.Sender == "" || cfg.Recipient == "" {
			return nil, fmt.Errorf("smtp dispatch requires sender and recipient")
		}
		if encryptor != nil {
			logger.Warn("encryption is not applied to mailed archives")
		}
		return NewSMTPDispatcher(cfg.SMTP, tmpl, logger)
	case "s3":
		return NewS3Dispatcher(ctx, cfg.S3, tmpl, encryptor, logger)
	case "filesystem":
		return NewFileSystemDispatcher(cfg.FileSystem.OutboxDir, tmpl, encryptor, logger)
	case "memory":
		return NewMemoryDispatcher(tmpl), nil
	default:
		return nil, fmt.Errorf("unknown dispatch type: %q", cfg.Type)
	}
}
