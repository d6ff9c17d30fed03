package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/xactions/xactions-a2a/pkg/a2a"
	"github.com/xactions/xactions-a2a/pkg/card"
	"github.com/xactions/xactions-a2a/pkg/discovery"
	"github.com/xactions/xactions-a2a/pkg/skills"
)

func listFiltersFromQuery(r *http.Request) discovery.ListFilters {
	q := r.URL.Query()
	return discovery.ListFilters{
		SkillID:     q.Get("skill"),
		Tag:         q.Get("tag"),
		HealthyOnly: q.Get("healthy") == "true",
		Provider:    q.Get("provider"),
	}
}

// handleAgentCard serves /.well-known/agent.json.
func (s *Server) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(card.CacheTTL.Seconds())))

	if r.URL.Query().Get("format") == "minimal" {
		minimal, err := s.Card.Minimal()
		if err != nil {
			writeRPCError(w, http.StatusInternalServerError, nil, a2a.CodeInternalError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, minimal)
		return
	}

	agentCard, err := s.Card.Card()
	if err != nil {
		writeRPCError(w, http.StatusInternalServerError, nil, a2a.CodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, agentCard)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"agent":   s.Config.AgentName,
		"version": s.Config.AgentVersion,
		"uptime":  int(time.Since(s.startedAt).Seconds()),
		"tasks":   s.Store.Stats(),
		"skills":  s.Registry.Count(),
	})
}

// handleSkills lists skills, honoring q, category, and limit.
func (s *Server) handleSkills(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	category := r.URL.Query().Get("category")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	matched := s.Registry.Search(query, nil)
	var out []a2a.Skill
	for _, skill := range matched {
		if category != "" && skills.CategoryOf(strings.TrimPrefix(skill.ID, skills.Namespace)) != category {
			continue
		}
		out = append(out, skill)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	if out == nil {
		out = []a2a.Skill{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"skills": out, "total": len(out)})
}

func (s *Server) handleSkillsRefresh(w http.ResponseWriter, r *http.Request) {
	s.Registry.Refresh()
	s.Card.Refresh()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "skills": s.Registry.Count()})
}

// ===== DISCOVERY =====

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	entries := s.Agents.List(listFiltersFromQuery(r))
	writeJSON(w, http.StatusOK, map[string]any{"agents": entries, "total": len(entries)})
}

// handleDiscoverAgents registers each URL in the request, reporting
// per-URL outcomes.
func (s *Server) handleDiscoverAgents(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URLs []string `json:"urls"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		writeRPCError(w, http.StatusBadRequest, nil, a2a.CodeParseError, "malformed JSON")
		return
	}
	if len(req.URLs) == 0 {
		writeRPCError(w, http.StatusBadRequest, nil, a2a.CodeInvalidParams, "urls is required")
		return
	}

	type result struct {
		URL    string         `json:"url"`
		Status string         `json:"status"`
		Agent  *a2a.AgentCard `json:"agent,omitempty"`
		Error  string         `json:"error,omitempty"`
	}

	results := make([]result, 0, len(req.URLs))
	for _, u := range req.URLs {
		entry, err := s.Agents.Register(r.Context(), u)
		if err != nil {
			results = append(results, result{URL: u, Status: "error", Error: err.Error()})
			continue
		}
		results = append(results, result{URL: entry.URL, Status: "registered", Agent: entry.Card})
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleUnregisterAgent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		writeRPCError(w, http.StatusBadRequest, nil, a2a.CodeParseError, "malformed JSON")
		return
	}
	if req.URL == "" {
		writeRPCError(w, http.StatusBadRequest, nil, a2a.CodeInvalidParams, "url is required")
		return
	}
	if err := s.Agents.Unregister(req.URL); err != nil {
		writeRPCError(w, http.StatusNotFound, nil, a2a.CodeInvalidParams, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleAgentTrust exposes the trust score and history summary for one
// agent.
func (s *Server) handleAgentTrust(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		writeRPCError(w, http.StatusBadRequest, nil, a2a.CodeInvalidParams, "url is required")
		return
	}

	response := map[string]any{
		"url":   url,
		"score": s.Trust.Score(url),
	}
	if record, ok := s.Trust.Get(url); ok {
		response["firstSeen"] = record.FirstSeen
		response["events"] = len(record.Events)
	}
	writeJSON(w, http.StatusOK, response)
}

// ===== ORCHESTRATION =====

type orchestrateRequest struct {
	Description string `json:"description"`
	StopOnError bool   `json:"stopOnError,omitempty"`
}

func (s *Server) handleOrchestrate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeOrchestrate(w, r)
	if !ok {
		return
	}
	outcome := s.Orchestrator.Execute(r.Context(), req.Description, req.StopOnError, nil)
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleOrchestratePlan(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeOrchestrate(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Orchestrator.Plan(req.Description))
}

func decodeOrchestrate(w http.ResponseWriter, r *http.Request) (orchestrateRequest, bool) {
	var req orchestrateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		writeRPCError(w, http.StatusBadRequest, nil, a2a.CodeParseError, "malformed JSON")
		return req, false
	}
	if strings.TrimSpace(req.Description) == "" {
		writeRPCError(w, http.StatusBadRequest, nil, a2a.CodeInvalidParams, "description is required")
		return req, false
	}
	return req, true
}
