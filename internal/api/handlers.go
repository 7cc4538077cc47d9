package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/voxdeck/voxdeck/internal/command"
	"github.com/voxdeck/voxdeck/internal/speech"
)

const (
	defaultEventPage = 200
	maxEventPage     = 1000
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:        "ok",
		Version:       s.cfg.Version,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		SessionID:     s.cfg.SessionID,
		Fingerprint:   s.cfg.Fingerprint,
		PendingQueue:  s.pipeline.Pending(),
	}

	if rt := s.pipeline.Runtime(); rt != nil {
		resp.CommandsLoaded = rt.Table.Len()
		for _, spec := range rt.Table.Specs() {
			if command.Executable(spec, rt.Bindings) {
				resp.CommandsReady++
			}
		}
	}

	snap := s.remote.Snapshot()
	resp.Recording = snap.Recording
	resp.Playing = snap.Playing

	s.writeJSON(w, http.StatusOK, resp)
}

// handleCommands handles GET /v1/commands.
func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	rt := s.pipeline.Runtime()
	if rt == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no command table loaded")
		return
	}

	resp := CommandsResponse{Problems: rt.Table.Problems()}
	for _, spec := range rt.Table.Specs() {
		info := CommandInfo{
			Key:                spec.Key,
			Description:        spec.Description,
			Group:              spec.Group,
			Patterns:           spec.Patterns,
			AvailableWhileBusy: spec.AvailableWhileBusy,
			CooldownMS:         spec.Cooldown.Milliseconds(),
			Executable:         command.Executable(spec, rt.Bindings),
			MissingEffects:     command.MissingEffects(spec, rt.Bindings),
		}
		for _, step := range spec.Steps {
			info.Steps = append(info.Steps, step.String())
		}
		resp.Commands = append(resp.Commands, info)
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// handleState handles GET /v1/state.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.remote.Snapshot())
}

// handleEvents handles GET /v1/events?after=N&limit=M, the polling tail.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	after := parseInt64(r.URL.Query().Get("after"), 0)
	limit := int(parseInt64(r.URL.Query().Get("limit"), defaultEventPage))
	if limit <= 0 {
		limit = defaultEventPage
	}
	if limit > maxEventPage {
		limit = maxEventPage
	}

	events := s.bus.Since(after)
	if len(events) > limit {
		events = events[:limit]
	}

	next := after
	if len(events) > 0 {
		next = events[len(events)-1].Seq
	}
	s.writeJSON(w, http.StatusOK, EventsResponse{Events: events, Next: next})
}

// handleStats handles GET /v1/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, StatsResponse{
		SessionID: s.cfg.SessionID,
		Stats:     s.pipeline.Stats(),
	})
}

// handleSay handles POST /v1/say: inject an utterance as source "api".
func (s *Server) handleSay(w http.ResponseWriter, r *http.Request) {
	var req SayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	confidence := 1.0
	if req.Confidence != nil {
		confidence = *req.Confidence
	}

	seq, ok := s.pipeline.Submit(speech.Utterance{
		Text:       req.Text,
		Confidence: confidence,
		Source:     "api",
	})
	if !ok {
		s.writeError(w, http.StatusServiceUnavailable, "intake queue full")
		return
	}
	s.writeJSON(w, http.StatusAccepted, SayResponse{Seq: seq})
}

func parseInt64(v string, fallback int64) int64 {
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, ErrorResponse{Error: msg})
}
