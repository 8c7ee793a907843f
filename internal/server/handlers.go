package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vk/gridci/internal/event"
	"github.com/vk/gridci/internal/model"
	"github.com/vk/gridci/internal/service"
	"github.com/vk/gridci/internal/store"
)

// dispatchRequest is the body of POST /api/workflows/{name}/dispatch.
type dispatchRequest struct {
	Ref    string         `json:"ref"`
	Actor  string         `json:"actor"`
	Inputs map[string]any `json:"inputs"`
}

// runRef is the compact run identifier returned from creation endpoints.
type runRef struct {
	ID           int64        `json:"id"`
	WorkflowName string       `json:"workflow_name"`
	RunNumber    int64        `json:"run_number"`
	Status       model.Status `json:"status"`
}

func toRunRef(run *model.Run) runRef {
	return runRef{
		ID:           run.ID,
		WorkflowName: run.WorkflowName,
		RunNumber:    run.RunNumber,
		Status:       run.Status,
	}
}

func (s *Server) handlePushEvent(w http.ResponseWriter, r *http.Request) {
	var ev event.PushEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid push payload: "+err.Error())
		return
	}
	if ev.Ref == "" {
		writeError(w, http.StatusBadRequest, "push payload missing ref")
		return
	}

	runs, err := s.svc.HandlePush(r.Context(), ev)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	refs := make([]runRef, 0, len(runs))
	for _, run := range runs {
		refs = append(refs, toRunRef(run))
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"runs": refs})
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid dispatch payload: "+err.Error())
		return
	}

	run, err := s.svc.DispatchWorkflow(r.Context(), name, req.Ref, req.Actor, req.Inputs)
	if err != nil {
		if errors.Is(err, service.ErrUnknownWorkflow) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, toRunRef(run))
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(w, r)
	if !ok {
		return
	}

	run, err := s.store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleGetRunJobs(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(w, r)
	if !ok {
		return
	}

	if _, err := s.store.GetRun(r.Context(), id); errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	jobRuns, err := s.store.GetJobRuns(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobRuns})
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(w, r)
	if !ok {
		return
	}

	err := s.svc.CancelRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

func runID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "run id must be an integer")
		return 0, false
	}
	return id, true
}
