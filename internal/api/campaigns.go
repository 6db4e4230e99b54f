package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/foxzi/phishdrill/internal/mailer"
	"github.com/foxzi/phishdrill/internal/metrics"
	"github.com/foxzi/phishdrill/internal/models"
	"github.com/foxzi/phishdrill/internal/store"
)

// CreateCampaignRequest is the request body for POST /api/campaigns
type CreateCampaignRequest struct {
	Name       string    `json:"name"`
	TemplateID flexInt64 `json:"template_id"`
}

// LaunchCampaignRequest is the request body for POST /api/campaigns/{id}/launch
type LaunchCampaignRequest struct {
	// TargetIDs restricts the launch. Empty targets everyone.
	TargetIDs flexInt64List `json:"target_ids"`
}

// LaunchCampaignResponse is the response for POST /api/campaigns/{id}/launch
type LaunchCampaignResponse struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
	// Set only when the mailer is enabled
	Delivered *int `json:"delivered,omitempty"`
	Failed    *int `json:"failed,omitempty"`
}

// handleListCampaigns handles GET /api/campaigns
func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := s.store.ListCampaigns(r.Context())
	if err != nil {
		s.internalError(w, "failed to list campaigns", err)
		return
	}
	s.sendJSON(w, http.StatusOK, campaigns)
}

// handleCreateCampaign handles POST /api/campaigns
func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	req, ok := readBody[CreateCampaignRequest](s, w, r)
	if !ok {
		return
	}

	if req.Name == "" || !req.TemplateID.Set {
		s.sendError(w, http.StatusBadRequest, "Name and Template ID required")
		return
	}
	if !req.TemplateID.Valid {
		s.sendError(w, http.StatusBadRequest, "Invalid Template ID")
		return
	}

	campaign, err := s.store.CreateCampaign(r.Context(), req.Name, req.TemplateID.Value)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.sendError(w, http.StatusBadRequest, "Template not found")
			return
		}
		s.internalError(w, "failed to create campaign", err)
		return
	}

	s.logger.Info("campaign created", "id", campaign.ID, "name", campaign.Name, "template_id", req.TemplateID.Value)
	s.sendJSON(w, http.StatusCreated, MessageResponse{Message: "Campaign created", ID: campaign.ID})
}

// handleLaunchCampaign handles POST /api/campaigns/{id}/launch
func (s *Server) handleLaunchCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "id")
	if !ok {
		s.sendError(w, http.StatusBadRequest, "Invalid Campaign ID")
		return
	}

	req, ok := readBody[LaunchCampaignRequest](s, w, r)
	if !ok {
		return
	}

	results, err := s.store.LaunchCampaign(r.Context(), id, req.TargetIDs)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			s.sendError(w, http.StatusBadRequest, "Campaign not found")
		case errors.Is(err, store.ErrCampaignNotDraft):
			s.sendError(w, http.StatusBadRequest, "Campaign already active or completed")
		default:
			s.internalError(w, "failed to launch campaign", err)
		}
		return
	}

	metrics.IncCampaignLaunched(len(results))
	s.logger.Info("campaign launched", "id", id, "targets", len(results))

	resp := LaunchCampaignResponse{
		Message: fmt.Sprintf("Campaign launched to %d targets", len(results)),
		Count:   len(results),
	}
	if s.mailer.Enabled() {
		report := s.deliver(r.Context(), id, results)
		resp.Delivered = &report.Delivered
		resp.Failed = &report.Failed
	}

	s.sendJSON(w, http.StatusOK, resp)
}

// deliver mails the launched campaign. Problems are counted as failed
// deliveries and never undo the launch.
func (s *Server) deliver(ctx context.Context, campaignID int64, results []models.Result) mailer.Report {
	failAll := mailer.Report{Failed: len(results)}
	logger := s.logger.With("campaign_id", campaignID)

	campaign, err := s.store.GetCampaign(ctx, campaignID)
	if err != nil {
		logger.Error("failed to load launched campaign", "error", err)
		return failAll
	}
	if campaign.TemplateID == nil {
		logger.Warn("campaign has no template, nothing to send")
		return failAll
	}
	tmpl, err := s.store.GetTemplate(ctx, *campaign.TemplateID)
	if err != nil {
		logger.Error("failed to load campaign template", "template_id", *campaign.TemplateID, "error", err)
		return failAll
	}

	deliveries := make([]mailer.Delivery, 0, len(results))
	var report mailer.Report
	for _, res := range results {
		target, err := s.store.GetTarget(ctx, res.TargetID)
		if err != nil {
			logger.Error("failed to load target", "target_id", res.TargetID, "error", err)
			report.Failed++
			continue
		}
		deliveries = append(deliveries, mailer.Delivery{Result: res, Target: *target})
	}

	sent := s.mailer.Deliver(ctx, tmpl, deliveries)
	report.Delivered += sent.Delivered
	report.Failed += sent.Failed

	logger.Info("campaign delivered", "delivered", report.Delivered, "failed", report.Failed)
	return report
}

// handleCampaignStats handles GET /api/campaigns/{id}/stats
func (s *Server) handleCampaignStats(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "id")
	if !ok {
		s.sendError(w, http.StatusBadRequest, "Invalid Campaign ID")
		return
	}

	stats, err := s.store.CampaignStats(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.sendError(w, http.StatusNotFound, "Campaign not found")
			return
		}
		s.internalError(w, "failed to get campaign stats", err)
		return
	}

	s.sendJSON(w, http.StatusOK, stats)
}

// handleDeleteCampaign handles DELETE /api/campaigns/{id}
func (s *Server) handleDeleteCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "id")
	if !ok {
		s.sendError(w, http.StatusBadRequest, "Invalid Campaign ID")
		return
	}

	if err := s.store.DeleteCampaign(r.Context(), id); err != nil {
		s.internalError(w, "failed to delete campaign", err)
		return
	}

	s.logger.Info("campaign deleted", "id", id)
	s.sendJSON(w, http.StatusOK, MessageResponse{Message: "Campaign deleted"})
}
