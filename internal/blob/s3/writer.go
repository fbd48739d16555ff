package s3blob

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/alanyoungcy/memebot/internal/domain"
)

const (
	// minPartSize is the smallest part S3 accepts in a multipart upload.
	minPartSize int64 = 5 << 20
	// multipartThreshold is the body size above which Upload goes through
	// the transfer manager.
	multipartThreshold = 8 << 20
)

// Writer uploads documents to the snapshot bucket.
type Writer struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
}

var _ domain.ObjectWriter = (*Writer)(nil)

// NewWriter creates a Writer for c's bucket.
func NewWriter(c *Client) *Writer {
	return &Writer{
		client: c.S3(),
		uploader: manager.NewUploader(c.S3(), func(u *manager.Uploader) {
			u.PartSize = minPartSize
		}),
		bucket: c.Bucket(),
	}
}

// Upload stores body under key. Small bodies go up in one PutObject call,
// large ones as a multipart upload.
func (w *Writer) Upload(ctx context.Context, key string, body []byte, meta domain.ObjectMeta) error {
	in := putInput(w.bucket, key, body, meta)

	var err error
	if len(body) > multipartThreshold {
		_, err = w.uploader.Upload(ctx, in)
	} else {
		in.ContentLength = aws.Int64(int64(len(body)))
		_, err = w.client.PutObject(ctx, in)
	}
	if err != nil {
		return fmt.Errorf("s3blob: upload %s: %w", key, err)
	}
	return nil
}

func putInput(bucket, key string, body []byte, meta domain.ObjectMeta) *s3.PutObjectInput {
	in := &s3.PutObjectInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		Body:     bytes.NewReader(body),
		Metadata: meta.Tags,
	}
	if meta.ContentType != "" {
		in.ContentType = aws.String(meta.ContentType)
	}
	if meta.CacheControl != "" {
		in.CacheControl = aws.String(meta.CacheControl)
	}
	return in
}
