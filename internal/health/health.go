package health

import (
	"sort"
	"sync"
	"time"

	"github.com/lck-sdk/recorder/internal/logging"
)

var log = logging.L("health")

// Status represents the health status of a component.
type Status string

const (
	Healthy   Status = "healthy"
	Degraded  Status = "degraded"
	Unhealthy Status = "unhealthy"
	Unknown   Status = "unknown"
)

// Component names reported by the recording pipeline.
const (
	Audio   = "audio"
	Encoder = "encoder"
	Storage = "storage"
	Gallery = "gallery"
)

func (s Status) IsValid() bool {
	switch s {
	case Healthy, Degraded, Unhealthy, Unknown:
		return true
	}
	return false
}

// Check stores the latest health result for a named component.
type Check struct {
	Name      string    `json:"name" yaml:"name"`
	Status    Status    `json:"status" yaml:"status"`
	Message   string    `json:"message,omitempty" yaml:"message,omitempty"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updatedAt"`
}

// Monitor tracks health checks for multiple components.
type Monitor struct {
	mu     sync.RWMutex
	checks map[string]Check
}

func NewMonitor() *Monitor {
	return &Monitor{
		checks: make(map[string]Check),
	}
}

// Update records the health status for a named component. Transitions away
// from Healthy are logged once per change.
func (m *Monitor) Update(name string, status Status, message string) {
	if !status.IsValid() {
		status = Unhealthy
	}
	m.mu.Lock()
	prev, had := m.checks[name]
	m.checks[name] = Check{
		Name:      name,
		Status:    status,
		Message:   message,
		UpdatedAt: time.Now(),
	}
	m.mu.Unlock()

	if status != Healthy && (!had || prev.Status != status) {
		log.Warn("health check degraded", "check", name, "status", string(status), "message", message)
	} else if status == Healthy && had && prev.Status != Healthy {
		log.Info("health check recovered", "check", name)
	}
}

func (m *Monitor) Get(name string) (Check, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.checks[name]
	return c, ok
}

// Overall returns the worst status across all registered checks, or Unknown
// when nothing has reported yet.
func (m *Monitor) Overall() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.checks) == 0 {
		return Unknown
	}
	worst := Healthy
	for _, c := range m.checks {
		if statusRank(c.Status) > statusRank(worst) {
			worst = c.Status
		}
	}
	return worst
}

// All returns a snapshot of all current health checks sorted by name.
func (m *Monitor) All() []Check {
	m.mu.RLock()
	result := make([]Check, 0, len(m.checks))
	for _, c := range m.checks {
		result = append(result, c)
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Summary returns a map suitable for the status command's YAML output. The
// overall status and the component map come from the same snapshot.
func (m *Monitor) Summary() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	overall := Unknown
	if len(m.checks) > 0 {
		overall = Healthy
	}
	components := make(map[string]string, len(m.checks))
	for _, c := range m.checks {
		components[c.Name] = string(c.Status)
		if statusRank(c.Status) > statusRank(overall) {
			overall = c.Status
		}
	}

	return map[string]any{
		"status":     string(overall),
		"components": components,
	}
}

func statusRank(s Status) int {
	switch s {
	case Healthy:
		return 0
	case Degraded:
		return 1
	case Unhealthy:
		return 2
	default:
		return 3
	}
}
