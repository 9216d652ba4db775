package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"gfc/internal/event"
	"gfc/internal/journal"
)

// recentBuildsLimit is how many journal entries the status endpoint returns.
const recentBuildsLimit = 20

// handleWebhook is the core handler: parse, filter, admission, build.
// Authentication and body materialization already happened in the
// middleware chain.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ev, err := event.Parse(requestBody(r), r.Header, s.UseSSH)
	if err != nil {
		// Fail closed: malformed payloads and missing repository URLs are
		// client errors, decided before any filtering runs.
		s.Logger.Warn("webhook payload rejected", "error", err, "remote", r.RemoteAddr)
		respondText(w, http.StatusBadRequest, "unusable webhook payload")
		return
	}

	logger := s.Logger.With("repo", ev.RepoURL, "ref", ev.Ref, "delivery", ev.Delivery)

	switch decision := s.Filter.Evaluate(ev); decision {
	case event.RejectRepo:
		logger.Warn("repository not allowed")
		s.record(r, ev, decision.String(), "repository not allowed", nil)
		respondText(w, http.StatusBadRequest, "repository not allowed")
		return
	case event.SkipEventType:
		// Legitimate no-op, not an error.
		logger.Info("ignoring event", "type", ev.Type)
		respondText(w, http.StatusOK, "ignoring non-push event")
		return
	case event.SkipRef:
		logger.Info("ignoring ref")
		respondText(w, http.StatusOK, "ref is not deployable, ignoring")
		return
	case event.RejectCommit:
		logger.Warn("push without commit SHA")
		s.record(r, ev, decision.String(), "push carried no commit SHA", nil)
		respondText(w, http.StatusBadRequest, "push carried no commit SHA")
		return
	}

	if !s.Gate.TryReserve() {
		logger.Warn("build capacity exceeded", "in_flight", s.Gate.InFlight())
		s.record(r, ev, "rejected_capacity", "too many builds in flight", nil)
		respondText(w, http.StatusTooManyRequests, "too many builds in flight, retry later")
		return
	}
	// Exactly one release for this reservation, on every exit path.
	defer s.Gate.Release()

	// An admitted build runs to completion or failure: a client disconnect
	// must not cancel the external processes mid-flight.
	start := time.Now()
	outcome := s.Builder.Run(context.WithoutCancel(r.Context()), ev)
	duration := time.Since(start).Seconds()

	s.record(r, ev, outcome.Status.String(), outcome.Message, &duration)
	if s.Metrics != nil {
		s.Metrics.ObserveBuild(outcome.Status.String())
	}

	if outcome.Status.OK() {
		respondText(w, http.StatusOK, outcome.Message)
		return
	}
	// Outcome messages never carry process output or command arguments.
	respondText(w, http.StatusInternalServerError, outcome.Message)
}

// record writes a journal entry; journal failures are logged, never fatal.
func (s *Server) record(r *http.Request, ev *event.Event, status, message string, duration *float64) {
	if s.Journal == nil {
		return
	}
	_, err := s.Journal.Record(r.Context(), &journal.Entry{
		Repo:            ev.RepoURL,
		Ref:             ev.Ref,
		Commit:          ev.Commit,
		Delivery:        ev.Delivery,
		Status:          status,
		Message:         message,
		DurationSeconds: duration,
	})
	if err != nil {
		s.Logger.Error("recording journal entry failed", "error", err)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"in_flight": s.Gate.InFlight(),
		"capacity":  s.Gate.Capacity(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.Journal == nil {
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "journal not available"})
		return
	}

	entries, err := s.Journal.Recent(r.Context(), recentBuildsLimit)
	if err != nil {
		s.Logger.Error("querying journal failed", "error", err)
		s.respondJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to query build journal"})
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}

	s.respondJSON(w, http.StatusOK, map[string]any{"recent_builds": entries})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.Logger.Error("encoding JSON response failed", "error", err)
	}
}
