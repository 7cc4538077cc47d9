package api

import (
	"github.com/voxdeck/voxdeck/internal/command"
	"github.com/voxdeck/voxdeck/internal/dispatch"
	"github.com/voxdeck/voxdeck/internal/telemetry"
)

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	SessionID      string `json:"session_id,omitempty"`
	Fingerprint    string `json:"config_fingerprint,omitempty"`
	CommandsLoaded int    `json:"commands_loaded"`
	CommandsReady  int    `json:"commands_ready"`
	Recording      bool   `json:"recording"`
	Playing        bool   `json:"playing"`
	PendingQueue   int    `json:"pending_queue"`
}

// CommandInfo is one command table entry as served by GET /v1/commands.
type CommandInfo struct {
	Key                string   `json:"key"`
	Description        string   `json:"description,omitempty"`
	Group              string   `json:"group,omitempty"`
	Patterns           []string `json:"patterns"`
	Steps              []string `json:"steps"`
	AvailableWhileBusy bool     `json:"available_while_busy"`
	CooldownMS         int64    `json:"cooldown_ms,omitempty"`
	Executable         bool     `json:"executable"`
	MissingEffects     []string `json:"missing_effects,omitempty"`
}

// CommandsResponse is returned by GET /v1/commands.
type CommandsResponse struct {
	Commands []CommandInfo     `json:"commands"`
	Problems []command.Problem `json:"problems,omitempty"`
}

// EventsResponse is one page of the polling telemetry tail. Next is the
// cursor to pass as ?after= on the following request.
type EventsResponse struct {
	Events []telemetry.Event `json:"events"`
	Next   int64             `json:"next"`
}

// SayRequest is the JSON body for POST /v1/say.
type SayRequest struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// SayResponse is returned on accepted injection.
type SayResponse struct {
	Seq int64 `json:"seq"`
}

// StatsResponse is returned by GET /v1/stats.
type StatsResponse struct {
	SessionID string                 `json:"session_id,omitempty"`
	Stats     dispatch.StatsSnapshot `json:"stats"`
}

// ErrorResponse is returned on errors.
type ErrorResponse struct {
	Error string `json:"error"`
}
