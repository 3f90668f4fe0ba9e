package gallery

import (
	"context"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/lck-sdk/recorder/internal/config"
)

// GCS uploads recordings to a Google Cloud Storage bucket. A client is
// created per save; saves are rare and the client holds connections.
type GCS struct {
	bucket string
	opts   []option.ClientOption
}

func NewGCS(cfg config.GCSConfig) *GCS {
	g := &GCS{bucket: cfg.Bucket}
	if cfg.CredentialsFile != "" {
		g.opts = append(g.opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	return g
}

func (g *GCS) Name() string { return "gcs" }

func (g *GCS) Save(ctx context.Context, srcPath, album string) (string, error) {
	client, err := storage.NewClient(ctx, g.opts...)
	if err != nil {
		return "", fmt.Errorf("gcs client: %w", err)
	}
	defer client.Close()

	f, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("failed to open source file: %w", err)
	}
	defer f.Close()

	key := objectKey(album, srcPath)
	w := client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	w.ContentType = "video/mp4"
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs upload %s: %w", key, err)
	}
	return fmt.Sprintf("gs://%s/%s", g.bucket, key), nil
}
