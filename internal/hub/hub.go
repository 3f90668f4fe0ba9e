// Package hub tracks the cameras and monitors present in the scene and fans
// registration and lifecycle events out to observers.
package hub

import (
	"errors"
	"slices"
	"sync"

	"github.com/lck-sdk/recorder/internal/camera"
	"github.com/lck-sdk/recorder/internal/logging"
)

var log = logging.L("hub")

var (
	ErrDuplicateID = errors.New("hub: id already registered")
	ErrEmptyID     = errors.New("hub: empty id")
)

// Lifecycle is an application lifecycle transition.
type Lifecycle int

const (
	Pause Lifecycle = iota
	Resume
	Quit
)

func (l Lifecycle) String() string {
	switch l {
	case Pause:
		return "pause"
	case Resume:
		return "resume"
	case Quit:
		return "quit"
	}
	return "unknown"
}

// Observer receives hub events. Events are delivered synchronously on the
// goroutine that caused them, in subscription order.
type Observer interface {
	CameraRegistered(c camera.Provider)
	CameraUnregistered(c camera.Provider)
	MonitorRegistered(m camera.Monitor)
	MonitorUnregistered(m camera.Monitor)
	Lifecycle(ev Lifecycle)
}

// Funcs adapts optional functions to Observer. Nil fields are ignored.
type Funcs struct {
	OnCameraRegistered    func(camera.Provider)
	OnCameraUnregistered  func(camera.Provider)
	OnMonitorRegistered   func(camera.Monitor)
	OnMonitorUnregistered func(camera.Monitor)
	OnLifecycle           func(Lifecycle)
}

func (f Funcs) CameraRegistered(c camera.Provider) {
	if f.OnCameraRegistered != nil {
		f.OnCameraRegistered(c)
	}
}

func (f Funcs) CameraUnregistered(c camera.Provider) {
	if f.OnCameraUnregistered != nil {
		f.OnCameraUnregistered(c)
	}
}

func (f Funcs) MonitorRegistered(m camera.Monitor) {
	if f.OnMonitorRegistered != nil {
		f.OnMonitorRegistered(m)
	}
}

func (f Funcs) MonitorUnregistered(m camera.Monitor) {
	if f.OnMonitorUnregistered != nil {
		f.OnMonitorUnregistered(m)
	}
}

func (f Funcs) Lifecycle(ev Lifecycle) {
	if f.OnLifecycle != nil {
		f.OnLifecycle(ev)
	}
}

type subscription struct {
	id  uint64
	obs Observer
}

// Hub owns the camera and monitor registries.
type Hub struct {
	mu        sync.RWMutex
	cameras   map[string]camera.Provider
	monitors  map[string]camera.Monitor
	observers []subscription
	nextSub   uint64
}

func New() *Hub {
	return &Hub{
		cameras:  make(map[string]camera.Provider),
		monitors: make(map[string]camera.Monitor),
	}
}

// Subscribe adds an observer and returns a function that removes it.
func (h *Hub) Subscribe(obs Observer) (unsubscribe func()) {
	h.mu.Lock()
	h.nextSub++
	id := h.nextSub
	h.observers = append(h.observers, subscription{id: id, obs: obs})
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.observers = slices.DeleteFunc(h.observers, func(s subscription) bool { return s.id == id })
		})
	}
}

func (h *Hub) snapshot() []Observer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Observer, len(h.observers))
	for i, s := range h.observers {
		out[i] = s.obs
	}
	return out
}

func (h *Hub) RegisterCamera(c camera.Provider) error {
	id := c.ID()
	if id == "" {
		return ErrEmptyID
	}
	h.mu.Lock()
	if _, ok := h.cameras[id]; ok {
		h.mu.Unlock()
		return ErrDuplicateID
	}
	h.cameras[id] = c
	h.mu.Unlock()

	log.Debug("camera registered", "camera", id)
	for _, o := range h.snapshot() {
		o.CameraRegistered(c)
	}
	return nil
}

// UnregisterCamera removes the camera with id. It reports whether one was
// registered.
func (h *Hub) UnregisterCamera(id string) bool {
	h.mu.Lock()
	c, ok := h.cameras[id]
	delete(h.cameras, id)
	h.mu.Unlock()
	if !ok {
		return false
	}

	log.Debug("camera unregistered", "camera", id)
	for _, o := range h.snapshot() {
		o.CameraUnregistered(c)
	}
	return true
}

func (h *Hub) Camera(id string) (camera.Provider, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.cameras[id]
	return c, ok
}

// CameraIDs returns the registered camera ids in sorted order.
func (h *Hub) CameraIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.cameras))
	for id := range h.cameras {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (h *Hub) RegisterMonitor(m camera.Monitor) error {
	id := m.ID()
	if id == "" {
		return ErrEmptyID
	}
	h.mu.Lock()
	if _, ok := h.monitors[id]; ok {
		h.mu.Unlock()
		return ErrDuplicateID
	}
	h.monitors[id] = m
	h.mu.Unlock()

	log.Debug("monitor registered", "monitor", id)
	for _, o := range h.snapshot() {
		o.MonitorRegistered(m)
	}
	return nil
}

func (h *Hub) UnregisterMonitor(id string) bool {
	h.mu.Lock()
	m, ok := h.monitors[id]
	delete(h.monitors, id)
	h.mu.Unlock()
	if !ok {
		return false
	}

	log.Debug("monitor unregistered", "monitor", id)
	for _, o := range h.snapshot() {
		o.MonitorUnregistered(m)
	}
	return true
}

func (h *Hub) Monitor(id string) (camera.Monitor, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	m, ok := h.monitors[id]
	return m, ok
}

// MonitorIDs returns the registered monitor ids in sorted order.
func (h *Hub) MonitorIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.monitors))
	for id := range h.monitors {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Monitors returns the registered monitors ordered by id.
func (h *Hub) Monitors() []camera.Monitor {
	ids := h.MonitorIDs()
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]camera.Monitor, 0, len(ids))
	for _, id := range ids {
		if m, ok := h.monitors[id]; ok {
			out = append(out, m)
		}
	}
	return out
}

// Notify broadcasts an application lifecycle transition.
func (h *Hub) Notify(ev Lifecycle) {
	log.Debug("lifecycle event", "event", ev.String())
	for _, o := range h.snapshot() {
		o.Lifecycle(ev)
	}
}
