package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lck-sdk/recorder/internal/filelock"
	"github.com/lck-sdk/recorder/internal/health"
	"github.com/lck-sdk/recorder/internal/logging"
)

// handoff waits for the encoder to release a finished file, then copies it
// to the gallery.
type handoff struct {
	path     string
	duration time.Duration
	log      *slog.Logger
	next     time.Time
	polls    int
}

// ready reports whether the copy can start: the file is no longer locked
// or no longer exists. A missing file fails in the copy.
func (h *handoff) ready() bool {
	if !filelock.IsLocked(h.path) {
		return true
	}
	_, err := os.Stat(h.path)
	return errors.Is(err, os.ErrNotExist)
}

func (r *Recorder) pollHandoffs(now time.Time) {
	if len(r.handoffs) == 0 {
		return
	}
	remaining := r.handoffs[:0]
	for _, h := range r.handoffs {
		if now.Before(h.next) {
			remaining = append(remaining, h)
			continue
		}
		h.polls++
		if !h.ready() {
			h.next = now.Add(r.opts.PollInterval)
			remaining = append(remaining, h)
			continue
		}
		if !r.startCopy(h) {
			// Retry on the next poll.
			h.next = now.Add(r.opts.PollInterval)
			remaining = append(remaining, h)
		}
	}
	clear(r.handoffs[len(remaining):])
	r.handoffs = remaining
}

func (r *Recorder) startCopy(h *handoff) bool {
	album := r.opts.Album
	var dest string
	task := func() error {
		if _, err := os.Stat(h.path); err != nil {
			return err
		}
		var err error
		dest, err = r.sink.Save(logging.NewContext(context.Background(), h.log), h.path, album)
		return err
	}
	done := func(err error) {
		r.post(func() {
			r.copying--
			if err != nil {
				h.log.Error("failed to copy recording to gallery", "path", h.path, "error", err)
				r.reportGallery(health.Unhealthy, err.Error())
				if r.onSaved != nil {
					r.onSaved(Saved{Duration: h.duration}, fmt.Errorf("%w: %w", ErrGalleryCopy, err))
				}
				return
			}
			h.log.Info("recording saved", "path", dest, "polls", h.polls)
			r.reportGallery(health.Healthy, "saved "+dest)
			if r.onSaved != nil {
				r.onSaved(Saved{FilePath: dest, Duration: h.duration}, nil)
			}
		})
	}
	if !r.copies.Go("gallery-copy", task, done) {
		return false
	}
	r.copying++
	return true
}

func (r *Recorder) reportGallery(status health.Status, msg string) {
	if r.opts.Health != nil {
		r.opts.Health.Update(health.Gallery, status, msg)
	}
}
