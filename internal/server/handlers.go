package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/quillagent/quill/internal/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListActions returns every registered action descriptor. Handlers are
// never serialized.
func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"actions": s.deps.Registry.ListActions(),
	})
}

func (s *Server) handleListTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"types": s.deps.Registry.ListTypes(),
	})
}

// handleExecute runs one action and returns the uniform envelope. The HTTP
// status mirrors the error class; the body shape never changes.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Action string         `json:"action"`
		Params map[string]any `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if body.Action == "" {
		writeError(w, http.StatusBadRequest, "action is required")
		return
	}

	resp := s.deps.Runner.Execute(r.Context(), body.Action, body.Params)
	writeJSON(w, statusForResponse(resp), resp)
}

// handleStoreToken accepts an OAuth token payload. Loopback only; this is the
// one way to hand the server a credential so it never crosses the network.
func (s *Server) handleStoreToken(w http.ResponseWriter, r *http.Request) {
	if !isLocalRequest(r) {
		writeError(w, http.StatusForbidden, "token submission is only allowed from localhost")
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if err := s.deps.Tokens.Store(r.Context(), raw); err != nil {
		writeCodedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stored"})
}

// --- Schedules ---

type scheduleBody struct {
	Name           string          `json:"name"`
	Action         string          `json:"action"`
	Params         json.RawMessage `json:"params"`
	CronExpression string          `json:"cron_expression"`
	When           string          `json:"when"`
	Enabled        *bool           `json:"enabled"`
}

func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var body scheduleBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if body.Action == "" {
		writeError(w, http.StatusBadRequest, "action is required")
		return
	}
	if body.CronExpression == "" {
		writeError(w, http.StatusBadRequest, "cron_expression is required")
		return
	}
	if _, err := s.deps.Registry.Get(body.Action); err != nil {
		writeCodedError(w, err)
		return
	}
	schedule, err := s.parser.Parse(body.CronExpression)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid cron expression: %v", err))
		return
	}

	enabled := true
	if body.Enabled != nil {
		enabled = *body.Enabled
	}
	now := time.Now().UTC()
	next := schedule.Next(now)
	sp := &store.ScheduledPublish{
		ID:             uuid.New().String(),
		Name:           body.Name,
		Action:         body.Action,
		Params:         body.Params,
		CronExpression: body.CronExpression,
		When:           body.When,
		Enabled:        enabled,
		NextRunAt:      &next,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.deps.Store.CreateScheduledPublish(r.Context(), sp); err != nil {
		s.deps.Logger.Error("failed to create schedule", slog.String("error", err.Error()))
		writeCodedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sp)
}

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	filter := store.ScheduledPublishFilter{}
	if v := r.URL.Query().Get("enabled"); v == "true" || v == "false" {
		enabled := v == "true"
		filter.Enabled = &enabled
	}
	if v := r.URL.Query().Get("action"); v != "" {
		filter.Action = v
	}

	scheds, err := s.deps.Store.ListScheduledPublishes(r.Context(), filter)
	if err != nil {
		writeCodedError(w, err)
		return
	}
	if scheds == nil {
		scheds = []*store.ScheduledPublish{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"schedules": scheds})
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	sp, err := s.deps.Store.GetScheduledPublish(r.Context(), r.PathValue("id"))
	if err != nil {
		writeCodedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sp)
}

func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body scheduleBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	update := store.ScheduledPublishUpdate{Params: body.Params, Enabled: body.Enabled}
	if body.Name != "" {
		update.Name = &body.Name
	}
	if body.Action != "" {
		if _, err := s.deps.Registry.Get(body.Action); err != nil {
			writeCodedError(w, err)
			return
		}
		update.Action = &body.Action
	}
	if body.When != "" {
		update.When = &body.When
	}
	if body.CronExpression != "" {
		schedule, err := s.parser.Parse(body.CronExpression)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid cron expression: %v", err))
			return
		}
		update.CronExpression = &body.CronExpression
		next := schedule.Next(time.Now().UTC())
		update.NextRunAt = &next
	}

	if err := s.deps.Store.UpdateScheduledPublish(r.Context(), id, update); err != nil {
		writeCodedError(w, err)
		return
	}
	sp, err := s.deps.Store.GetScheduledPublish(r.Context(), id)
	if err != nil {
		writeCodedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sp)
}

func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.DeleteScheduledPublish(r.Context(), r.PathValue("id")); err != nil {
		writeCodedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
