// Package storage watches free space on the volume recordings are written
// to.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/lck-sdk/recorder/internal/health"
	"github.com/lck-sdk/recorder/internal/logging"
)

var log = logging.L("storage")

const (
	DefaultMinFree       = 500 << 20
	DefaultCheckInterval = 5 * time.Second
)

// UsageFunc returns the free bytes on the volume holding path.
type UsageFunc func(path string) (free uint64, err error)

func diskFree(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// Option customizes a Watcher.
type Option func(*Watcher)

func WithUsageFunc(fn UsageFunc) Option { return func(w *Watcher) { w.usage = fn } }

func WithHealth(m *health.Monitor) Option { return func(w *Watcher) { w.health = m } }

// Watcher samples free space at a fixed interval from the caller's tick and
// reports the transition to low space once.
type Watcher struct {
	path     string
	minFree  uint64
	interval time.Duration
	usage    UsageFunc
	health   *health.Monitor

	mu        sync.Mutex
	lastCheck time.Time
	free      uint64
	known     bool
	low       bool
	onLow     func(free uint64)
}

// NewWatcher watches the volume holding dir. dir is created if missing.
func NewWatcher(dir string, minFree uint64, interval time.Duration, opts ...Option) *Watcher {
	if minFree == 0 {
		minFree = DefaultMinFree
	}
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	w := &Watcher{
		path:     dir,
		minFree:  minFree,
		interval: interval,
		usage:    diskFree,
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Warn("failed to create recording directory", "path", dir, "error", err)
	}
	return w
}

// OnLowSpace registers fn to run when free space drops below the minimum.
// It fires once per transition and runs on the goroutine calling Tick.
func (w *Watcher) OnLowSpace(fn func(free uint64)) {
	w.mu.Lock()
	w.onLow = fn
	w.mu.Unlock()
}

// HasEnoughFreeStorage samples the volume now. A failed sample is treated
// as enough space so a broken probe never blocks recording.
func (w *Watcher) HasEnoughFreeStorage() bool {
	free, err := w.sample()
	if err != nil {
		return true
	}
	return free >= w.minFree
}

// Free returns the last sampled free bytes.
func (w *Watcher) Free() (uint64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.free, w.known
}

// Tick samples the volume when the check interval has elapsed since the
// previous sample.
func (w *Watcher) Tick(now time.Time) {
	w.mu.Lock()
	if !w.lastCheck.IsZero() && now.Sub(w.lastCheck) < w.interval {
		w.mu.Unlock()
		return
	}
	w.lastCheck = now
	w.mu.Unlock()

	free, err := w.sample()
	if err != nil {
		return
	}

	w.mu.Lock()
	wasLow := w.low
	w.low = free < w.minFree
	fire := w.low && !wasLow
	onLow := w.onLow
	w.mu.Unlock()

	if fire {
		log.Warn("low storage space", "path", w.path, "freeMB", free>>20, "minFreeMB", w.minFree>>20)
		if onLow != nil {
			onLow(free)
		}
	}
}

func (w *Watcher) sample() (uint64, error) {
	free, err := w.usage(existingAncestor(w.path))
	if err != nil {
		log.Warn("failed to read free space", "path", w.path, "error", err)
		w.report(health.Degraded, fmt.Sprintf("free space unavailable: %v", err))
		return 0, err
	}

	w.mu.Lock()
	w.free = free
	w.known = true
	w.mu.Unlock()

	if free < w.minFree {
		w.report(health.Unhealthy, fmt.Sprintf("%d MB free, %d MB required", free>>20, w.minFree>>20))
	} else {
		w.report(health.Healthy, fmt.Sprintf("%d MB free", free>>20))
	}
	return free, nil
}

func (w *Watcher) report(status health.Status, msg string) {
	if w.health != nil {
		w.health.Update(health.Storage, status, msg)
	}
}

func existingAncestor(path string) string {
	p := filepath.Clean(path)
	for {
		if _, err := os.Stat(p); err == nil {
			return p
		}
		parent := filepath.Dir(p)
		if parent == p {
			return p
		}
		p = parent
	}
}
