package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"snda-portal/internal/realtime"
)

// ChannelProbe reports the live feed connection
type ChannelProbe interface {
	State() realtime.State
	Retries() int
	URL() string
}

// BrokerProbe reports the publisher connection
type BrokerProbe interface {
	IsClosed() bool
}

// SessionProbe reports the relay's own session
type SessionProbe interface {
	Loading() bool
	IsAuthenticated() bool
}

// Health returns basic health check
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status   string         `json:"status"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// Ready reports whether the relay is following the feed. broker may be nil
// when stories are only logged.
func Ready(channel ChannelProbe, broker BrokerProbe, session SessionProbe) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]HealthCheckResult{
			"channel": checkChannel(channel),
			"broker":  checkBroker(broker),
			"session": checkSession(session),
		}

		ready := true
		for _, c := range checks {
			if c.Status == "down" {
				ready = false
			}
		}

		response := map[string]any{
			"timestamp": time.Now().Format(time.RFC3339),
			"checks":    checks,
		}

		if ready {
			response["status"] = "ready"
			writeJSON(w, http.StatusOK, response)
			return
		}
		response["status"] = "not_ready"
		writeJSON(w, http.StatusServiceUnavailable, response)
	}
}

func checkChannel(ch ChannelProbe) HealthCheckResult {
	if ch == nil {
		return HealthCheckResult{Status: "down", Error: "channel not started"}
	}

	state := ch.State()
	meta := map[string]any{
		"state":   state.String(),
		"retries": ch.Retries(),
		"url":     ch.URL(),
	}
	if state != realtime.Open {
		return HealthCheckResult{Status: "down", Metadata: meta, Error: "channel " + state.String()}
	}
	return HealthCheckResult{Status: "up", Metadata: meta}
}

func checkBroker(broker BrokerProbe) HealthCheckResult {
	if broker == nil {
		return HealthCheckResult{Status: "disabled"}
	}
	if broker.IsClosed() {
		return HealthCheckResult{
			Status: "down",
			Error:  "connection closed",
		}
	}
	return HealthCheckResult{Status: "up"}
}

func checkSession(session SessionProbe) HealthCheckResult {
	if session.Loading() {
		return HealthCheckResult{Status: "down", Error: "session restore in progress"}
	}
	return HealthCheckResult{
		Status:   "up",
		Metadata: map[string]any{"authenticated": session.IsAuthenticated()},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
