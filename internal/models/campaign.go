package models

import "time"

// CampaignStatus is the lifecycle state of a campaign
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignCompleted CampaignStatus = "completed"
)

// Campaign associates a template with a launch against targets
type Campaign struct {
	ID         int64          `json:"id"`
	Name       string         `json:"name"`
	TemplateID *int64         `json:"template_id"` // nil once the template is deleted
	Status     CampaignStatus `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
}

// CampaignStats aggregates the results of one campaign
type CampaignStats struct {
	Campaign  string         `json:"campaign"`
	Status    CampaignStatus `json:"status"`
	TotalSent int            `json:"total_sent"`
	Opened    int            `json:"opened"`
	Clicked   int            `json:"clicked"`
	Submitted int            `json:"submitted"`
}
