package gallery

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/lck-sdk/recorder/internal/health"
	"github.com/lck-sdk/recorder/internal/logging"
)

const maxConcurrentUploads = 4

// Mirror saves to a primary sink, then copies to every remote sink
// concurrently. The primary's destination is the reported result; remote
// failures are logged and do not fail the save.
type Mirror struct {
	primary Sink
	remotes []Sink
	health  *health.Monitor
}

func NewMirror(primary Sink, remotes ...Sink) *Mirror {
	return &Mirror{primary: primary, remotes: remotes}
}

// WithHealth reports remote upload outcomes under the gallery component.
func (m *Mirror) WithHealth(h *health.Monitor) *Mirror {
	m.health = h
	return m
}

func (m *Mirror) Name() string { return "mirror" }

func (m *Mirror) Save(ctx context.Context, srcPath, album string) (string, error) {
	sl := logging.FromContext(ctx)
	dest, err := m.primary.Save(ctx, srcPath, album)
	if err != nil {
		return "", err
	}

	// Uploads are independent: one failing bucket must not cancel the others.
	var g errgroup.Group
	g.SetLimit(maxConcurrentUploads)
	for _, r := range m.remotes {
		g.Go(func() error {
			url, err := r.Save(ctx, srcPath, album)
			if err != nil {
				return fmt.Errorf("%s: %w", r.Name(), err)
			}
			sl.Info("recording mirrored", "sink", r.Name(), "url", url)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		sl.Warn("recording mirror failed", "error", err)
		m.report(health.Degraded, err.Error())
	} else if len(m.remotes) > 0 {
		m.report(health.Healthy, fmt.Sprintf("mirrored to %d sinks", len(m.remotes)))
	}
	return dest, nil
}

func (m *Mirror) report(status health.Status, msg string) {
	if m.health != nil {
		m.health.Update(health.Gallery, status, msg)
	}
}
