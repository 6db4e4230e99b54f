// Package store persists targets, templates, campaigns and their results.
package store

import (
	"context"
	"errors"

	"github.com/foxzi/phishdrill/internal/models"
)

var (
	// ErrNotFound is returned when a referenced record does not exist
	ErrNotFound = errors.New("not found")
	// ErrDuplicateEmail is returned when a target email is already registered
	ErrDuplicateEmail = errors.New("email already exists")
	// ErrCampaignNotDraft is returned when launching a campaign that was already launched
	ErrCampaignNotDraft = errors.New("campaign already active or completed")
	// ErrInvalidAction is returned for tracking actions other than open and click
	ErrInvalidAction = errors.New("invalid tracking action")
)

// Store is the data store shared by every HTTP handler
type Store interface {
	ListTemplates(ctx context.Context) ([]models.Template, error)
	GetTemplate(ctx context.Context, id int64) (*models.Template, error)
	// AddTemplate assigns the template an ID. An empty name becomes "Untitled".
	AddTemplate(ctx context.Context, tmpl *models.Template) error
	UpdateTemplate(ctx context.Context, id int64, upd models.TemplateUpdate) (*models.Template, error)
	// DeleteTemplate clears the template reference of campaigns that used it
	DeleteTemplate(ctx context.Context, id int64) error

	ListTargets(ctx context.Context) ([]models.TargetWithHistory, error)
	GetTarget(ctx context.Context, id int64) (*models.Target, error)
	AddTarget(ctx context.Context, target *models.Target) error
	// DeleteTarget removes the target and its results
	DeleteTarget(ctx context.Context, id int64) error

	ListCampaigns(ctx context.Context) ([]models.Campaign, error)
	GetCampaign(ctx context.Context, id int64) (*models.Campaign, error)
	CreateCampaign(ctx context.Context, name string, templateID int64) (*models.Campaign, error)
	// LaunchCampaign creates one result per selected target and marks the
	// campaign active. An empty targetIDs selects every target.
	LaunchCampaign(ctx context.Context, id int64, targetIDs []int64) ([]models.Result, error)
	CampaignStats(ctx context.Context, id int64) (*models.CampaignStats, error)
	// DeleteCampaign removes the campaign and its results
	DeleteCampaign(ctx context.Context, id int64) error

	GetResult(ctx context.Context, id int64) (*models.Result, error)
	// TrackAction records an interaction. It reports false when the result does not exist.
	TrackAction(ctx context.Context, resultID int64, action models.TrackingAction) (bool, error)

	Close() error
}

// selectTargets filters targets by the requested IDs. Unknown IDs are ignored.
func selectTargets(all []models.Target, ids []int64) []models.Target {
	if len(ids) == 0 {
		return all
	}

	wanted := make(map[int64]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	var selected []models.Target
	for _, t := range all {
		if wanted[t.ID] {
			selected = append(selected, t)
		}
	}
	return selected
}

// validAction rejects tracking tokens the store does not understand
func validAction(action models.TrackingAction) error {
	if _, ok := models.ParseTrackingAction(string(action)); !ok {
		return ErrInvalidAction
	}
	return nil
}

var (
	_ Store = (*SQLStore)(nil)
	_ Store = (*BoltStore)(nil)
)
