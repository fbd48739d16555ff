package domain

import "context"

// ObjectMeta is attached to an uploaded object.
type ObjectMeta struct {
	ContentType  string
	CacheControl string
	Tags         map[string]string
}

// ObjectWriter stores whole documents in object storage under key.
type ObjectWriter interface {
	Upload(ctx context.Context, key string, body []byte, meta ObjectMeta) error
}
