package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/zhubert/eve/model"
	"github.com/zhubert/eve/repository"
	"github.com/zhubert/eve/workspace"
)

// maxBodySize bounds request bodies.
const maxBodySize = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type inputRequest struct {
	Input *string `json:"input"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// errorStatus maps the error taxonomy to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, model.ErrValidation), errors.Is(err, model.ErrInvalidState):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		s.log.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeError(w, status, err.Error())
}

// decode reads a JSON body into v. Malformed bodies are validation errors.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", model.ErrValidation, err)
	}
	return nil
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": s.version})
}

func (s *Server) handleListRepositories(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	repos, err := s.repos.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(repos))
}

func (s *Server) handleCreateRepository(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req repository.CreateRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	repo, err := s.repos.Create(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, repo)
}

func (s *Server) handleGetRepository(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	result, err := s.repos.GetWithWorkspaces(r.Context(), ps.ByName("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if result == nil {
		writeError(w, http.StatusNotFound, "Repository not found")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleUpdateRepository(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req repository.UpdateRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	repo, err := s.repos.Update(r.Context(), ps.ByName("id"), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, repo)
}

func (s *Server) handleDeleteRepository(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := s.repos.Delete(r.Context(), ps.ByName("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// repository loads the :id repository, writing a 404 when it is missing.
func (s *Server) repository(w http.ResponseWriter, r *http.Request, ps httprouter.Params) (*model.Repository, bool) {
	repo, err := s.repos.Get(r.Context(), ps.ByName("id"))
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	if repo == nil {
		writeError(w, http.StatusNotFound, "Repository not found")
		return nil, false
	}
	return repo, true
}

func (s *Server) handleListRepositoryWorkspaces(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	repo, ok := s.repository(w, r, ps)
	if !ok {
		return
	}
	workspaces, err := s.workspaces.List(r.Context(), repo.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(workspaces))
}

func (s *Server) handleCreateWorkspace(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	repo, ok := s.repository(w, r, ps)
	if !ok {
		return
	}
	var req workspace.CreateRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	ws, err := s.workspaces.Create(r.Context(), repo, req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ws)
}

func (s *Server) handleListWorkspaces(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	workspaces, err := s.workspaces.List(r.Context(), r.URL.Query().Get("repositoryId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(workspaces))
}

func (s *Server) handleGetWorkspace(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ws, err := s.workspaces.Get(r.Context(), ps.ByName("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if ws == nil {
		writeError(w, http.StatusNotFound, "Workspace not found")
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (s *Server) handleDeleteWorkspace(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := s.workspaces.Delete(r.Context(), ps.ByName("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSendInput(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req inputRequest
	if err := decode(r, &req); err != nil || req.Input == nil {
		writeError(w, http.StatusBadRequest, "Input must be a string")
		return
	}
	if err := s.workspaces.SendInput(r.Context(), ps.ByName("id"), *req.Input); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := s.workspaces.Resume(r.Context(), ps.ByName("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := s.workspaces.Archive(r.Context(), ps.ByName("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) handleGitStatus(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	status, err := s.workspaces.GitStatus(r.Context(), ps.ByName("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	diff, err := s.workspaces.Diff(r.Context(), ps.ByName("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"diff": diff})
}
