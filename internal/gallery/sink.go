// Package gallery saves finished recordings to the user's video album and
// optional cloud buckets.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"

	"github.com/lck-sdk/recorder/internal/config"
	"github.com/lck-sdk/recorder/internal/logging"
)

var log = logging.L("gallery")

var ErrNotConfigured = errors.New("gallery: sink not configured")

// Sink stores a finished recording. Save returns where the file ended up:
// a filesystem path or an object URL.
type Sink interface {
	Name() string
	Save(ctx context.Context, srcPath, album string) (string, error)
}

// objectKey is the bucket key for a recording: {album}/{file}.
func objectKey(album, srcPath string) string {
	return path.Join(album, filepath.Base(srcPath))
}

// FromConfig builds the sink for cfg: the local album, mirrored to every
// bucket that is configured.
func FromConfig(ctx context.Context, cfg config.GalleryConfig) (Sink, error) {
	local := NewLocalAlbum(cfg.VideosDir)

	var remotes []Sink
	if cfg.S3.Bucket != "" {
		s, err := NewS3(ctx, cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("gallery s3: %w", err)
		}
		remotes = append(remotes, s)
	}
	if cfg.GCS.Bucket != "" {
		remotes = append(remotes, NewGCS(cfg.GCS))
	}
	if cfg.Azure.ConnectionString != "" {
		s, err := NewAzure(cfg.Azure)
		if err != nil {
			return nil, fmt.Errorf("gallery azure: %w", err)
		}
		remotes = append(remotes, s)
	}
	if cfg.B2.Bucket != "" {
		remotes = append(remotes, NewB2(cfg.B2))
	}

	if len(remotes) == 0 {
		return local, nil
	}
	names := make([]string, len(remotes))
	for i, r := range remotes {
		names[i] = r.Name()
	}
	log.Info("gallery mirroring enabled", "videosDir", cfg.VideosDir, "remotes", names)
	return NewMirror(local, remotes...), nil
}
