package entity

import "time"

type HealthStatus string

const (
	Healthy   HealthStatus = "healthy"
	Degraded  HealthStatus = "degraded"
	Unhealthy HealthStatus = "unhealthy"
)

func (s HealthStatus) severity() int {
	switch s {
	case Healthy:
		return 0
	case Degraded:
		return 1
	}
	return 2
}

// Worse returns the more severe of s and other.
func (s HealthStatus) Worse(other HealthStatus) HealthStatus {
	if other.severity() > s.severity() {
		return other
	}
	return s
}

type DependencyCheck struct {
	Name      string       `json:"name"`
	Status    HealthStatus `json:"status"`
	LatencyMS int64        `json:"latency_ms"`
	Detail    string       `json:"detail,omitempty"`
}

// HealthReport is the JSON document served by the health endpoint.
type HealthReport struct {
	Overall      HealthStatus      `json:"overall"`
	CheckedAt    time.Time         `json:"checked_at"`
	LastSyncAge  string            `json:"last_sync_age,omitempty"`
	LeadCount    int64             `json:"lead_count"`
	Dependencies []DependencyCheck `json:"dependencies"`
}

// Dependency returns the named check.
func (r *HealthReport) Dependency(name string) (DependencyCheck, bool) {
	for _, d := range r.Dependencies {
		if d.Name == name {
			return d, true
		}
	}
	return DependencyCheck{}, false
}
