package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/h10086733/es-admin-sub000/internal/core/domain"
)

// ErrorResponse represents an API error response
// @Description API error response
type ErrorResponse struct {
	Error string `json:"error" example:"source not found"`
}

// StatusResponse represents a simple status response
// @Description Simple status response
type StatusResponse struct {
	Status string `json:"status" example:"ok"`
}

// ReadyResponse reports readiness and the failing dependencies
// @Description Readiness status with per-dependency errors
type ReadyResponse struct {
	Status string            `json:"status" example:"ready"`
	Errors map[string]string `json:"errors,omitempty"`
}

// VersionResponse represents the API version response
// @Description API version response
type VersionResponse struct {
	Version string `json:"version" example:"1.0.0"`
}

// SourceSummary is the listing view of a configured source
// @Description Configured sync source
type SourceSummary struct {
	ID        string   `json:"id" example:"leave"`
	Name      string   `json:"name" example:"Leave Request"`
	Table     string   `json:"table" example:"form_leave"`
	AutoSync  bool     `json:"auto_sync"`
	Fields    int      `json:"fields" example:"12"`
	SubTables []string `json:"sub_tables,omitempty"`
}

func summarize(s *domain.Source) SourceSummary {
	out := SourceSummary{
		ID:       s.ID,
		Name:     s.Name,
		Table:    s.Table,
		AutoSync: s.AutoSync,
		Fields:   len(s.Fields),
	}
	for _, sub := range s.SubTables {
		out.SubTables = append(out.SubTables, sub.Name)
	}
	return out
}

// Health endpoints

// handleHealth godoc
// @Summary      Health check
// @Description  Returns the health status of the API
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// handleReady godoc
// @Summary      Readiness check
// @Description  Pings the relational store, the search cluster and the lock backend
// @Tags         Health
// @Produce      json
// @Success      200  {object}  ReadyResponse
// @Failure      503  {object}  ReadyResponse
// @Router       /ready [get]
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	failures := make(map[string]string)
	for name, check := range s.checks {
		if err := check.Ping(ctx); err != nil {
			failures[name] = err.Error()
		}
	}

	if len(failures) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{Status: "unavailable", Errors: failures})
		return
	}
	writeJSON(w, http.StatusOK, ReadyResponse{Status: "ready"})
}

// handleVersion godoc
// @Summary      Get API version
// @Description  Returns the current API version
// @Tags         Health
// @Produce      json
// @Success      200  {object}  VersionResponse
// @Router       /version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: s.version})
}

// Source endpoints

// handleListSources godoc
// @Summary      List sources
// @Description  List every configured sync source
// @Tags         Sources
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   SourceSummary
// @Failure      401  {object}  ErrorResponse  "Unauthorized"
// @Failure      403  {object}  ErrorResponse  "Forbidden - admin only"
// @Failure      500  {object}  ErrorResponse  "Internal server error"
// @Router       /sources [get]
func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.catalog.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list sources")
		return
	}

	out := make([]SourceSummary, 0, len(sources))
	for _, src := range sources {
		out = append(out, summarize(src))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

// handleGetSource godoc
// @Summary      Get source
// @Description  Get the full configuration of one source
// @Tags         Sources
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Source ID"
// @Success      200  {object}  domain.Source
// @Failure      404  {object}  ErrorResponse  "Source not found"
// @Router       /sources/{id} [get]
func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	source, err := s.catalog.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, domain.ErrSourceNotFound) {
			writeError(w, http.StatusNotFound, "source not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get source")
		return
	}
	writeJSON(w, http.StatusOK, source)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
