package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/conneroisu/quire/internal/errors"
	"github.com/conneroisu/quire/internal/snapshot"
	"github.com/conneroisu/quire/internal/version"
)

// HealthStatus is the overall verdict reported by /healthz.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck is one named check in the health response.
type HealthCheck struct {
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status     HealthStatus           `json:"status"`
	Timestamp  time.Time              `json:"timestamp"`
	Version    string                 `json:"version"`
	Generation uint64                 `json:"generation"`
	BuiltAt    *time.Time             `json:"built_at,omitempty"`
	Reload     ReloadHealth           `json:"reload"`
	Content    *snapshot.Stats        `json:"content,omitempty"`
	Clients    int                    `json:"clients"`
	Checks     map[string]HealthCheck `json:"checks"`
}

// ReloadHealth mirrors the coordinator status.
type ReloadHealth struct {
	State        string     `json:"state"`
	Runs         int        `json:"runs"`
	LastSuccess  *time.Time `json:"last_success,omitempty"`
	LastFailure  *time.Time `json:"last_failure,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	LastDuration string     `json:"last_duration,omitempty"`
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}

	return &t
}

// Health assembles the current health report. Without a snapshot the site
// is unhealthy; a degraded watcher or a failed last reload is degraded.
func (s *Server) Health() HealthResponse {
	status := s.source.Status()
	snap := s.source.Current()

	resp := HealthResponse{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now().UTC(),
		Version:   version.GetShortVersion(),
		Reload: ReloadHealth{
			State:       status.State.String(),
			Runs:        status.Runs,
			LastSuccess: timePtr(status.LastSuccess),
			LastFailure: timePtr(status.LastFailure),
			LastError:   status.LastError,
		},
		Clients: s.hub.Len(),
		Checks:  make(map[string]HealthCheck),
	}
	if status.LastDuration > 0 {
		resp.Reload.LastDuration = status.LastDuration.String()
	}

	if snap == nil {
		resp.Status = HealthStatusUnhealthy
		resp.Checks["content"] = HealthCheck{Status: HealthStatusUnhealthy, Message: errors.SnapshotMissing().Error()}
	} else {
		stats := snap.Stats()
		resp.Generation = snap.Generation()
		resp.BuiltAt = timePtr(snap.BuiltAt())
		resp.Content = &stats
		resp.Checks["content"] = HealthCheck{Status: HealthStatusHealthy}
	}

	switch {
	case !s.config.Watch.Enabled:
		resp.Checks["watcher"] = HealthCheck{Status: HealthStatusHealthy, Message: "disabled"}
	case status.Watch.Degraded:
		msg := "notifications stopped; using periodic rescans"
		if status.Watch.Err != nil {
			msg = status.Watch.Err.Error()
		}
		resp.Checks["watcher"] = HealthCheck{Status: HealthStatusDegraded, Message: msg}
	default:
		resp.Checks["watcher"] = HealthCheck{Status: HealthStatusHealthy}
	}

	if status.LastFailure.After(status.LastSuccess) {
		resp.Checks["reload"] = HealthCheck{Status: HealthStatusDegraded, Message: status.LastError}
	} else {
		resp.Checks["reload"] = HealthCheck{Status: HealthStatusHealthy}
	}

	if resp.Status == HealthStatusHealthy {
		for _, check := range resp.Checks {
			if check.Status != HealthStatusHealthy {
				resp.Status = HealthStatusDegraded
			}
		}
	}

	return resp
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.Health()

	code := http.StatusOK
	if health.Status == HealthStatusUnhealthy {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.logger.Error(r.Context(), err, "Failed to encode health response")
	}
}
