package gallery

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/Backblaze/blazer/b2"

	"github.com/lck-sdk/recorder/internal/config"
)

// B2 uploads recordings to a Backblaze B2 bucket.
type B2 struct {
	cfg config.B2Config
}

func NewB2(cfg config.B2Config) *B2 { return &B2{cfg: cfg} }

func (s *B2) Name() string { return "b2" }

func (s *B2) Save(ctx context.Context, srcPath, album string) (string, error) {
	client, err := b2.NewClient(ctx, s.cfg.AccountID, s.cfg.ApplicationKey)
	if err != nil {
		return "", fmt.Errorf("b2 client: %w", err)
	}
	bucket, err := client.Bucket(ctx, s.cfg.Bucket)
	if err != nil {
		return "", fmt.Errorf("b2 bucket %s: %w", s.cfg.Bucket, err)
	}

	f, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("failed to open source file: %w", err)
	}
	defer f.Close()

	key := objectKey(album, srcPath)
	obj := bucket.Object(key)
	w := obj.NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("b2 upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("b2 upload %s: %w", key, err)
	}
	return obj.URL(), nil
}
