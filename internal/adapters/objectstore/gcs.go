package objectstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/PabloGalante/chicha/internal/observability"
)

const gcsPublicBase = "https://storage.googleapis.com"

// GCS stores objects in a Cloud Storage bucket readable by the public.
type GCS struct {
	client *storage.Client
	bucket string
}

func NewGCS(ctx context.Context, bucket string) (*GCS, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs: bucket name is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}
	return &GCS{client: client, bucket: bucket}, nil
}

func (g *GCS) Upload(ctx context.Context, path, contentType string, data []byte) (string, error) {
	obj := g.client.Bucket(g.bucket).Object(path).If(storage.Conditions{DoesNotExist: true})

	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=3600"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write object %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize object %s: %w", path, err)
	}

	observability.LoggerFromContext(ctx).Debug("object uploaded",
		"bucket", g.bucket,
		"path", path,
		"bytes", len(data),
	)
	return PublicURL(g.bucket, path), nil
}

func (g *GCS) Close() error {
	return g.client.Close()
}

// PublicURL is the anonymous download URL of an object.
func PublicURL(bucket, path string) string {
	return gcsPublicBase + "/" + bucket + "/" + escapePath(path)
}

func escapePath(path string) string {
	segs := strings.Split(path, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}
