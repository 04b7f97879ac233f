package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/defi-yield-agent/internal/agent"
	"github.com/yourorg/defi-yield-agent/internal/llm"
	"github.com/yourorg/defi-yield-agent/internal/model"
	"github.com/yourorg/defi-yield-agent/internal/store"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// PoolsResponse is one page of the pool listing
type PoolsResponse struct {
	Pools  []model.Pool `json:"pools"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

// parsePoolQuery reads filters, sort and pagination from the query string
func parsePoolQuery(r *http.Request) (store.PoolQuery, error) {
	v := r.URL.Query()
	q := store.PoolQuery{
		PoolFilter: store.PoolFilter{
			Chain:    strings.TrimSpace(v.Get("chain")),
			Protocol: strings.TrimSpace(v.Get("protocol")),
		},
		SortBy:    "apy",
		Ascending: strings.EqualFold(v.Get("order"), "asc"),
		Limit:     defaultLimit,
	}

	if s := v.Get("sortBy"); s != "" {
		if !store.IsSortColumn(s) {
			return q, fmt.Errorf("invalid sortBy %q", s)
		}
		q.SortBy = s
	}
	if s := v.Get("minRiskScore"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return q, fmt.Errorf("invalid minRiskScore %q", s)
		}
		q.MinRiskScore = n
	}
	if s := v.Get("minAPY"); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return q, fmt.Errorf("invalid minAPY %q", s)
		}
		q.MinAPY = f
	}
	if s := v.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return q, fmt.Errorf("invalid limit %q", s)
		}
		q.Limit = n
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	if s := v.Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return q, fmt.Errorf("invalid offset %q", s)
		}
		q.Offset = n
	}
	return q, nil
}

// handleListPools serves GET /api/pools
func (s *Server) handleListPools(w http.ResponseWriter, r *http.Request) {
	q, err := parsePoolQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	pools, err := s.deps.Store.ListPools(ctx, q)
	if err != nil {
		logrus.WithError(err).Error("Error fetching pools")
		writeError(w, http.StatusInternalServerError, "Failed to fetch pools")
		return
	}
	total, err := s.deps.Store.CountPools(ctx, q.PoolFilter)
	if err != nil {
		logrus.WithError(err).Error("Error counting pools")
		writeError(w, http.StatusInternalServerError, "Failed to fetch pools")
		return
	}

	if pools == nil {
		pools = []model.Pool{}
	}
	writeJSON(w, http.StatusOK, PoolsResponse{
		Pools:  pools,
		Total:  total,
		Limit:  q.Limit,
		Offset: q.Offset,
	})
}

// handlePoolStats serves GET /api/pools/stats, read through the stats cache
func (s *Server) handlePoolStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	cached, err := s.deps.Cache.Get(ctx)
	if err != nil {
		logrus.WithError(err).Warn("Stats cache read failed")
	}
	if cached != nil {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	stats, err := s.deps.Store.PoolStats(ctx)
	if err != nil {
		logrus.WithError(err).Error("Error computing pool stats")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if err := s.deps.Cache.Set(ctx, stats); err != nil {
		logrus.WithError(err).Warn("Stats cache write failed")
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleGetPool serves GET /api/pools/{id}
func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusNotFound, "Pool not found")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	pool, err := s.deps.Store.GetPool(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Pool not found")
		return
	}
	if err != nil {
		logrus.WithError(err).WithField("id", id).Error("Error fetching pool")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

// AgentRequest is the body of POST /api/agent
type AgentRequest struct {
	Messages []model.Message `json:"messages"`
	Stream   bool            `json:"stream"`
	UserID   string          `json:"user_id"`
}

// handleAgent serves POST /api/agent as JSON or as server-sent events
func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil && !s.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
		return
	}

	var body AgentRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Messages == nil {
		writeError(w, http.StatusBadRequest, "Messages array is required")
		return
	}

	req := agent.Request{Messages: body.Messages, UserID: body.UserID}
	if body.Stream {
		s.streamAgent(w, r, req)
		return
	}

	// A client disconnect must not abort a completion already in flight.
	answer, err := s.deps.Agent.Answer(context.WithoutCancel(r.Context()), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (s *Server) streamAgent(w http.ResponseWriter, r *http.Request, req agent.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Keep draining after a disconnect so the producer finishes its work.
	gone := false
	for ev := range s.deps.Agent.Stream(r.Context(), req) {
		if gone {
			continue
		}
		name, payload := sseEvent(ev)
		if err := writeSSE(w, name, payload); err != nil {
			logrus.WithError(err).Debug("Agent stream client went away")
			gone = true
			continue
		}
		flusher.Flush()
	}
}

func sseEvent(ev agent.Event) (string, interface{}) {
	switch ev.Stage {
	case agent.StageComplete:
		return "complete", ev.Answer
	case agent.StageError:
		return "error", map[string]string{"message": ev.Message}
	default:
		return "intermediate", map[string]string{"type": string(ev.Stage), "message": ev.Message}
	}
}

func writeSSE(w http.ResponseWriter, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

// handleGetSettings serves GET /api/settings/ai. A user without settings gets null.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = agent.DefaultUserID
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	settings, err := s.deps.Store.GetAISettings(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Error fetching AI settings")
		writeError(w, http.StatusInternalServerError, "Failed to fetch AI settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// SettingsRequest is the body of POST /api/settings/ai
type SettingsRequest struct {
	Provider string            `json:"provider"`
	APIKeys  map[string]string `json:"api_keys"`
	UserID   string            `json:"user_id"`
}

// handleSaveSettings serves POST /api/settings/ai
func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var body SettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Provider == "" || body.APIKeys == nil {
		writeError(w, http.StatusBadRequest, "Provider and API keys are required")
		return
	}
	kind, err := llm.ParseKind(body.Provider)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unsupported provider")
		return
	}
	if body.UserID == "" {
		body.UserID = agent.DefaultUserID
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	saved, err := s.deps.Store.SaveAISettings(ctx, model.AISettings{
		UserID:   body.UserID,
		Provider: string(kind),
		APIKeys:  body.APIKeys,
	})
	if err != nil {
		logrus.WithError(err).WithField("user_id", body.UserID).Error("Error saving AI settings")
		writeError(w, http.StatusInternalServerError, "Failed to save AI settings")
		return
	}
	writeJSON(w, http.StatusOK, saved)
}
