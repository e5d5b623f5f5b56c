package s3blob

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/alanyoungcy/darkpool/internal/domain"
)

const (
	// minPartSize is the S3 floor for multipart parts.
	minPartSize int64 = 5 * 1024 * 1024

	jsonlContentType = "application/x-ndjson"
)

var _ domain.BlobWriter = (*Writer)(nil)

// Writer uploads archive objects. On AWS they are stored with SSE-S3, as
// archives carry wallet addresses and stakes.
type Writer struct {
	client  *s3.Client
	bucket  string
	prefix  string
	encrypt bool
}

// NewWriter creates a Writer on c's bucket.
func NewWriter(c *Client) *Writer {
	return &Writer{client: c.S3(), bucket: c.Bucket(), prefix: c.prefix, encrypt: c.encrypt}
}

func (w *Writer) input(path string, data io.Reader, contentType string) *s3.PutObjectInput {
	if contentType == "" {
		contentType = jsonlContentType
	}
	in := &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(joinKey(w.prefix, path)),
		Body:        data,
		ContentType: aws.String(contentType),
	}
	if w.encrypt {
		in.ServerSideEncryption = types.ServerSideEncryptionAes256
	}
	return in
}

// Put uploads data in a single request.
func (w *Writer) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	if _, err := w.client.PutObject(ctx, w.input(path, data, contentType)); err != nil {
		return fmt.Errorf("s3blob: put %s: %w", path, err)
	}
	return nil
}

// PutMultipart uploads data through the multipart manager, for archive runs
// past multipartThreshold. partSize is raised to the S3 minimum.
func (w *Writer) PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error {
	uploader := manager.NewUploader(w.client, func(u *manager.Uploader) {
		u.PartSize = max(partSize, minPartSize)
	})
	if _, err := uploader.Upload(ctx, w.input(path, data, "")); err != nil {
		return fmt.Errorf("s3blob: multipart upload %s: %w", path, err)
	}
	return nil
}
