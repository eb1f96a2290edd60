package health

import (
	"context"
	"sync"
	"time"
)

// Check probes one dependency. A failing critical check makes the system
// critical; any other failure degrades it.
type Check struct {
	Name     string
	Critical bool
	Probe    func(ctx context.Context) error
}

// Monitor aggregates health status from various system components.
type Monitor struct {
	checks     []Check
	cacheTTL   time.Duration
	lastCheck  time.Time
	lastReport HealthReport
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor.
func NewMonitor(checks ...Check) *Monitor {
	return &Monitor{
		checks:   checks,
		cacheTTL: 10 * time.Second,
	}
}

// CheckHealth runs every check. Results are cached for a short window so
// probes are not repeated on every request.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	if time.Since(m.lastCheck) < m.cacheTTL && m.lastReport.Components != nil {
		return m.lastReport
	}

	report := HealthReport{
		SystemStatus: StatusHealthy,
		Components:   make(map[string]ComponentHealth, len(m.checks)),
	}

	for _, c := range m.checks {
		health := ComponentHealth{Name: c.Name, Status: StatusHealthy}
		if err := c.Probe(ctx); err != nil {
			health.Error = err.Error()
			health.Status = StatusDegraded
			if c.Critical {
				health.Status = StatusCritical
			}
		}
		report.Components[c.Name] = health

		// Aggregate status (worst case wins)
		switch {
		case health.Status == StatusCritical:
			report.SystemStatus = StatusCritical
		case health.Status == StatusDegraded && report.SystemStatus == StatusHealthy:
			report.SystemStatus = StatusDegraded
		}
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}
