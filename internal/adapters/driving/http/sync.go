package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/h10086733/es-admin-sub000/internal/core/domain"
)

// SyncAcceptedResponse is returned when a sync task is started
// @Description Accepted sync task
type SyncAcceptedResponse struct {
	TaskID   string `json:"task_id" example:"3f0c7a52-1d0e-4e0b-9f3a-8d6c2b1e4a77"`
	SourceID string `json:"source_id" example:"leave"`
	FullSync bool   `json:"full_sync"`
}

// SyncAllResponse lists the tasks started for every source
// @Description Tasks started by a sync-all request
type SyncAllResponse struct {
	Tasks   []SyncAcceptedResponse `json:"tasks"`
	Skipped []string               `json:"skipped,omitempty"`
}

// TaskResponse is the polled state of a sync task
// @Description Sync task progress and, once finished, its result
type TaskResponse struct {
	Progress domain.ProgressSnapshot `json:"progress"`
	Result   *domain.SyncResult      `json:"result,omitempty"`
}

func fullSyncParam(r *http.Request) (bool, error) {
	raw := r.URL.Query().Get("full")
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}

// handleTriggerSync godoc
// @Summary      Trigger sync
// @Description  Start a detached sync task for one source (admin only)
// @Tags         Sync
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string  true   "Source ID"
// @Param        full  query     bool    false  "Re-read the whole table instead of an incremental pass"
// @Success      202   {object}  SyncAcceptedResponse
// @Failure      400   {object}  ErrorResponse  "Invalid full parameter"
// @Failure      401   {object}  ErrorResponse  "Unauthorized"
// @Failure      403   {object}  ErrorResponse  "Forbidden - admin only"
// @Failure      404   {object}  ErrorResponse  "Source not found"
// @Failure      409   {object}  ErrorResponse  "Sync already running for this source"
// @Router       /sources/{id}/sync [post]
func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	sourceID := r.PathValue("id")
	full, err := fullSyncParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid full parameter")
		return
	}

	if _, err := s.catalog.Get(r.Context(), sourceID); err != nil {
		if errors.Is(err, domain.ErrSourceNotFound) {
			writeError(w, http.StatusNotFound, "source not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get source")
		return
	}

	taskID, err := s.tracker.Start(r.Context(), sourceID, full)
	if err != nil {
		if errors.Is(err, domain.ErrSyncInProgress) {
			writeError(w, http.StatusConflict, "sync already in progress")
			return
		}
		s.logger.Error("failed to start sync", "source_id", sourceID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start sync")
		return
	}

	writeJSON(w, http.StatusAccepted, SyncAcceptedResponse{TaskID: taskID, SourceID: sourceID, FullSync: full})
}

// handleTriggerSyncAll godoc
// @Summary      Sync all sources
// @Description  Start a sync task for every configured source; sources already syncing are skipped
// @Tags         Sync
// @Produce      json
// @Security     BearerAuth
// @Param        full  query     bool  false  "Re-read whole tables"
// @Success      202   {object}  SyncAllResponse
// @Failure      400   {object}  ErrorResponse  "Invalid full parameter"
// @Failure      500   {object}  ErrorResponse  "Internal server error"
// @Router       /sync [post]
func (s *Server) handleTriggerSyncAll(w http.ResponseWriter, r *http.Request) {
	full, err := fullSyncParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid full parameter")
		return
	}

	sources, err := s.catalog.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list sources")
		return
	}

	resp := SyncAllResponse{Tasks: []SyncAcceptedResponse{}}
	for _, src := range sources {
		taskID, err := s.tracker.Start(r.Context(), src.ID, full)
		if err != nil {
			if !errors.Is(err, domain.ErrSyncInProgress) {
				s.logger.Error("failed to start sync", "source_id", src.ID, "error", err)
			}
			resp.Skipped = append(resp.Skipped, src.ID)
			continue
		}
		resp.Tasks = append(resp.Tasks, SyncAcceptedResponse{TaskID: taskID, SourceID: src.ID, FullSync: full})
	}

	writeJSON(w, http.StatusAccepted, resp)
}

// handleGetTask godoc
// @Summary      Poll sync task
// @Description  Current progress snapshot of a sync task; includes the result once finished
// @Tags         Sync
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Task ID"
// @Success      200  {object}  TaskResponse
// @Failure      404  {object}  ErrorResponse  "Unknown or expired task"
// @Router       /sync/tasks/{id} [get]
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	snap, err := s.tracker.Get(taskID)
	if err != nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	result, _ := s.tracker.Result(taskID)

	writeJSON(w, http.StatusOK, TaskResponse{Progress: snap, Result: result})
}

// handleStreamTask godoc
// @Summary      Stream sync task progress
// @Description  Server-sent events: "progress" after every batch, then one "complete" or "error" event. The stream closes after a period without events.
// @Tags         Sync
// @Produce      text/event-stream
// @Security     BearerAuth
// @Param        id   path      string  true  "Task ID"
// @Success      200  {object}  domain.TaskEvent
// @Failure      404  {object}  ErrorResponse  "Unknown or expired task"
// @Router       /sync/tasks/{id}/stream [get]
func (s *Server) handleStreamTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	sub, err := s.tracker.Subscribe(taskID)
	if err != nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	defer sub.Close()

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return
	}

	idle := time.NewTimer(s.streamIdleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-idle.C:
			s.logger.Debug("progress stream idle, closing", "task_id", taskID)
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
			if ev.Type != domain.TaskEventProgress {
				return
			}
			idle.Reset(s.streamIdleTimeout)
		}
	}
}

// writeEvent writes one server-sent event named after the event type.
func writeEvent(w io.Writer, ev domain.TaskEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}
