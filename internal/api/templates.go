package api

import (
	"errors"
	"net/http"

	"github.com/foxzi/phishdrill/internal/models"
	"github.com/foxzi/phishdrill/internal/store"
)

// SaveTemplateRequest is the request body for POST /api/templates
type SaveTemplateRequest struct {
	Name        string `json:"name"`
	Subject     string `json:"subject"`
	BodyContent string `json:"body_content"`
	// Body is accepted in place of body_content
	Body          string    `json:"body"`
	IsAIGenerated bool      `json:"is_ai_generated"`
	UserID        flexInt64 `json:"user_id"`
	CreatedBy     flexInt64 `json:"created_by"`
}

// UpdateTemplateRequest is the request body for PUT /api/templates/{id}.
// Other fields are ignored.
type UpdateTemplateRequest struct {
	Name        *string `json:"name"`
	Subject     *string `json:"subject"`
	BodyContent *string `json:"body_content"`
}

// GenerateTemplateRequest is the request body for POST /api/templates/generate
type GenerateTemplateRequest struct {
	Type       string `json:"type"`
	SenderName string `json:"sender_name"`
	Context    string `json:"context"`
}

// AnalyzeTemplateRequest is the request body for POST /api/templates/analyze
type AnalyzeTemplateRequest struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// AnalyzeResponse lists the red flags of an email
type AnalyzeResponse struct {
	Analysis []string `json:"analysis"`
}

// handleListTemplates handles GET /api/templates
func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.store.ListTemplates(r.Context())
	if err != nil {
		s.internalError(w, "failed to list templates", err)
		return
	}
	s.sendJSON(w, http.StatusOK, templates)
}

// handleSaveTemplate handles POST /api/templates
func (s *Server) handleSaveTemplate(w http.ResponseWriter, r *http.Request) {
	req, ok := readBody[SaveTemplateRequest](s, w, r)
	if !ok {
		return
	}

	tmpl := &models.Template{
		Name:          req.Name,
		Subject:       req.Subject,
		BodyContent:   req.BodyContent,
		IsAIGenerated: req.IsAIGenerated,
	}
	if tmpl.BodyContent == "" {
		tmpl.BodyContent = req.Body
	}
	for _, owner := range []flexInt64{req.UserID, req.CreatedBy} {
		if owner.Set && owner.Valid {
			id := owner.Value
			tmpl.CreatedBy = &id
			break
		}
	}

	if err := s.store.AddTemplate(r.Context(), tmpl); err != nil {
		s.logger.Error("failed to save template", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to save template: "+err.Error())
		return
	}

	s.logger.Info("template saved", "id", tmpl.ID, "name", tmpl.Name, "ai", tmpl.IsAIGenerated)
	s.sendJSON(w, http.StatusCreated, MessageResponse{Message: "Template saved", ID: tmpl.ID})
}

// handleUpdateTemplate handles PUT /api/templates/{id}
func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "id")
	if !ok {
		s.sendError(w, http.StatusBadRequest, "Invalid ID")
		return
	}

	req, ok := readBody[UpdateTemplateRequest](s, w, r)
	if !ok {
		return
	}

	tmpl, err := s.store.UpdateTemplate(r.Context(), id, models.TemplateUpdate{
		Name:        req.Name,
		Subject:     req.Subject,
		BodyContent: req.BodyContent,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.sendError(w, http.StatusNotFound, "Template not found")
			return
		}
		s.internalError(w, "failed to update template", err)
		return
	}

	s.logger.Info("template updated", "id", id)
	s.sendJSON(w, http.StatusOK, tmpl)
}

// handleDeleteTemplate handles DELETE /api/templates/{id}
func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "id")
	if !ok {
		s.sendError(w, http.StatusBadRequest, "Invalid ID")
		return
	}

	if err := s.store.DeleteTemplate(r.Context(), id); err != nil {
		s.internalError(w, "failed to delete template", err)
		return
	}

	s.logger.Info("template deleted", "id", id)
	s.sendJSON(w, http.StatusOK, MessageResponse{Message: "Template deleted"})
}

// handleGenerateTemplate handles POST /api/templates/generate. The draft is
// returned, not stored.
func (s *Server) handleGenerateTemplate(w http.ResponseWriter, r *http.Request) {
	req, ok := readBody[GenerateTemplateRequest](s, w, r)
	if !ok {
		return
	}

	if req.Type == "" {
		s.sendError(w, http.StatusBadRequest, "Template type is required")
		return
	}

	draft, err := s.ai.Generate(r.Context(), req.Type, req.SenderName, req.Context)
	if err != nil {
		s.logger.Error("template generation failed", "type", req.Type, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to generate template: "+err.Error())
		return
	}

	s.sendJSON(w, http.StatusOK, draft)
}

// handleAnalyzeTemplate handles POST /api/templates/analyze
func (s *Server) handleAnalyzeTemplate(w http.ResponseWriter, r *http.Request) {
	req, ok := readBody[AnalyzeTemplateRequest](s, w, r)
	if !ok {
		return
	}

	if req.Subject == "" || req.Body == "" {
		s.sendError(w, http.StatusBadRequest, "Subject and Body required")
		return
	}

	s.sendJSON(w, http.StatusOK, AnalyzeResponse{Analysis: s.ai.Analyze(r.Context(), req.Subject, req.Body)})
}
