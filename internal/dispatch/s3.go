package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"photobox/internal/box"
	"photobox/internal/config"
)

// encryptedSuffix is appended to object keys holding age ciphertext.
const encryptedSuffix = ".age"

// ObjectUploader is the subset of the S3 upload manager used by S3Dispatcher.
type ObjectUploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Dispatcher stores archives as objects in a bucket under
// <prefix>/<run_id>/<archive name>. Message fields travel as object metadata. When an Encryptor is set, the archive is encrypted
// before upload and the key gains an ".age" suffix.
type S3Dispatcher struct {
	uploader  ObjectUploader
	bucket    string
	prefix    string
	tmpl      Template
	encryptor box.Encryptor
	logger    box.Logger
}

var _ box.Dispatcher = (*S3Dispatcher)(nil)

// NewS3Dispatcher creates an S3Dispatcher backed by the AWS SDK. Static
// credentials are used when configured; otherwise the default chain applies.
func NewS3Dispatcher(ctx context.Context, cfg config.S3Config, tmpl Template, encryptor box.Encryptor, logger box.Logger) (*S3Dispatcher, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3DispatcherWithUploader(manager.NewUploader(client), cfg.Bucket, cfg.Prefix, tmpl, encryptor, logger), nil
}

// NewS3DispatcherWithUploader creates an S3Dispatcher around an existing uploader.
func NewS3DispatcherWithUploader(uploader ObjectUploader, bucket, prefix string, tmpl Template, encryptor box.Encryptor, logger box.Logger) *S3Dispatcher {
	return &S3Dispatcher{
		uploader:  uploader,
		bucket:    bucket,
		prefix:    prefix,
		tmpl:      tmpl,
		encryptor: encryptor,
		logger:    logger,
	}
}

// Key returns the object key the archive of runID is stored under.
func (d *S3Dispatcher) Key(runID, archiveName string) string {
	key := path.Join(d.prefix, runID, archiveName)
	if d.encryptor != nil {
		key += encryptedSuffix
	}
	return key
}

// Send uploads the archive in a single attempt.
func (d *S3Dispatcher) Send(ctx context.Context, archive *box.Archive, content io.Reader) error {
	dir, err := deliveryDir(archive)
	if err != nil {
		return err
	}
	m, err := d.tmpl.NewMessage(archive, content)
	if err != nil {
		return err
	}

	body := m.Attachment.Content
	contentType := m.Attachment.ContentType
	if d.encryptor != nil {
		var buf bytes.Buffer
		if err := d.encryptor.Encrypt(bytes.NewReader(body), &buf); err != nil {
			return fmt.Errorf("encrypting %s: %w", archive.Name, err)
		}
		body = buf.Bytes()
		contentType = "application/octet-stream"
	}

	key := d.Key(dir, archive.Name)
	_, err = d.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(d.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
		Metadata: map[string]string{
			"sender":    m.Sender,
			"recipient": m.Recipient,
			"subject":   m.Subject,
			"run":       archive.RunID,
		},
	})
	if err != nil {
		return fmt.Errorf("uploading %s to s3://%s/%s: %w", archive.Name, d.bucket, key, err)
	}

	d.logger.Info("archive uploaded", "run", archive.RunID, "archive", archive.Name, "bucket", d.bucket, "key", key, "size", len(body))
	return nil
}
