package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/foxzi/phishdrill/internal/models"
	"github.com/foxzi/phishdrill/internal/store"
)

// CreateTargetRequest is the request body for POST /api/targets
type CreateTargetRequest struct {
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Department string `json:"department"`
}

// handleListTargets handles GET /api/targets
func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := s.store.ListTargets(r.Context())
	if err != nil {
		s.internalError(w, "failed to list targets", err)
		return
	}
	s.sendJSON(w, http.StatusOK, targets)
}

// handleCreateTarget handles POST /api/targets
func (s *Server) handleCreateTarget(w http.ResponseWriter, r *http.Request) {
	req, ok := readBody[CreateTargetRequest](s, w, r)
	if !ok {
		return
	}

	email := strings.TrimSpace(req.Email)
	if email == "" {
		s.sendError(w, http.StatusBadRequest, "Email is required")
		return
	}

	target := &models.Target{
		Email:      email,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Department: req.Department,
	}
	if err := s.store.AddTarget(r.Context(), target); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			s.sendError(w, http.StatusBadRequest, "Email already exists")
			return
		}
		s.internalError(w, "failed to add target", err)
		return
	}

	s.logger.Info("target added", "id", target.ID, "email", target.Email)
	s.sendJSON(w, http.StatusCreated, MessageResponse{Message: "Target added", ID: target.ID})
}

// handleDeleteTarget handles DELETE /api/targets/{id}
func (s *Server) handleDeleteTarget(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "id")
	if !ok {
		s.sendError(w, http.StatusBadRequest, "Invalid ID")
		return
	}

	if err := s.store.DeleteTarget(r.Context(), id); err != nil {
		s.internalError(w, "failed to delete target", err)
		return
	}

	s.logger.Info("target deleted", "id", id)
	s.sendJSON(w, http.StatusOK, MessageResponse{Message: "Target deleted"})
}

// internalError logs err and answers 500 with its message
func (s *Server) internalError(w http.ResponseWriter, msg string, err error) {
	s.logger.Error(msg, "error", err)
	s.sendError(w, http.StatusInternalServerError, err.Error())
}
