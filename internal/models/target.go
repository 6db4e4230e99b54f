package models

import "time"

// Target represents a simulated phishing recipient
type Target struct {
	ID         int64  `json:"id"`
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Department string `json:"department"`
}

// HistoryEntry is one campaign exposure of a target, resolved for display
type HistoryEntry struct {
	ResultID     int64     `json:"result_id"`
	CampaignName string    `json:"campaign_name"`
	EmailSubject string    `json:"email_subject"`
	EmailBody    string    `json:"email_body"`
	SentAt       time.Time `json:"sent_at"`
	Status       string    `json:"status"` // Sent, Opened, Clicked
}

// TargetWithHistory includes the target's send history
type TargetWithHistory struct {
	Target
	History []HistoryEntry `json:"history"`
}

// Values returned by HistoryStatus
const (
	HistorySent    = "Sent"
	HistoryOpened  = "Opened"
	HistoryClicked = "Clicked"
)

// Unresolved campaign or template references render as this
const Unknown = "Unknown"
