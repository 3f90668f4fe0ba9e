package health

import (
	"sync"
	"testing"
)

func TestNewMonitorOverallReturnsUnknown(t *testing.T) {
	m := NewMonitor()
	if got := m.Overall(); got != Unknown {
		t.Fatalf("Overall() on empty monitor = %q, want %q", got, Unknown)
	}
}

func TestSummaryOnEmptyMonitor(t *testing.T) {
	m := NewMonitor()
	s := m.Summary()
	if s["status"] != "unknown" {
		t.Fatalf("Summary status = %v, want unknown", s["status"])
	}
	components, _ := s["components"].(map[string]string)
	if len(components) != 0 {
		t.Fatalf("Summary components = %v, want empty", components)
	}
}

func TestOverallReturnsWorstStatus(t *testing.T) {
	m := NewMonitor()
	m.Update(Audio, Healthy, "")
	m.Update(Storage, Degraded, "low space")
	m.Update(Encoder, Healthy, "")

	if got := m.Overall(); got != Degraded {
		t.Fatalf("Overall() = %q, want %q", got, Degraded)
	}
}

func TestOverallUnhealthyWorseThanDegraded(t *testing.T) {
	m := NewMonitor()
	m.Update(Storage, Degraded, "")
	m.Update(Encoder, Unhealthy, "submit failed")

	if got := m.Overall(); got != Unhealthy {
		t.Fatalf("Overall() = %q, want %q", got, Unhealthy)
	}
}

func TestUpdateCoercesInvalidStatus(t *testing.T) {
	m := NewMonitor()
	m.Update(Gallery, Status("invalid"), "bad value")

	c, ok := m.Get(Gallery)
	if !ok {
		t.Fatal("component not found after Update")
	}
	if c.Status != Unhealthy {
		t.Fatalf("Status = %q, want %q (coerced from invalid)", c.Status, Unhealthy)
	}
}

func TestSummaryAtomicity(t *testing.T) {
	m := NewMonitor()
	m.Update(Encoder, Healthy, "")

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				m.Update(Encoder, Degraded, "test")
			} else {
				m.Update(Encoder, Healthy, "")
			}
		}(i)
	}

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := m.Summary()
			status, _ := s["status"].(string)
			components, _ := s["components"].(map[string]string)
			if status != components[Encoder] {
				t.Errorf("summary inconsistency: overall=%q encoder=%q", status, components[Encoder])
			}
		}()
	}

	wg.Wait()
}

func TestAllIsSortedSnapshot(t *testing.T) {
	m := NewMonitor()
	m.Update(Storage, Healthy, "")
	m.Update(Audio, Degraded, "no sources")

	all := m.All()
	if len(all) != 2 {
		t.Fatalf("All() returned %d checks, want 2", len(all))
	}
	if all[0].Name != Audio || all[1].Name != Storage {
		t.Fatalf("All() not sorted: %v", all)
	}
}
