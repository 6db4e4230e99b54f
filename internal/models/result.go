package models

import "time"

// Result records one target's exposure to one campaign
type Result struct {
	ID                   int64     `json:"id"`
	CampaignID           int64     `json:"campaign_id"`
	TargetID             int64     `json:"target_id"`
	SentAt               time.Time `json:"sent_at"`
	Opened               bool      `json:"opened"`
	ClickedLink          bool      `json:"clicked_link"`
	SubmittedCredentials bool      `json:"submitted_credentials"`
}

// HistoryStatus reports the furthest interaction recorded for the result
func (r *Result) HistoryStatus() string {
	switch {
	case r.ClickedLink:
		return HistoryClicked
	case r.Opened:
		return HistoryOpened
	default:
		return HistorySent
	}
}

// TrackingAction is an interaction reported by a tracking callback
type TrackingAction string

const (
	ActionOpen  TrackingAction = "open"
	ActionClick TrackingAction = "click"
)

// ParseTrackingAction returns the action for a path token
func ParseTrackingAction(s string) (TrackingAction, bool) {
	switch TrackingAction(s) {
	case ActionOpen:
		return ActionOpen, true
	case ActionClick:
		return ActionClick, true
	}
	return "", false
}

// Apply sets the flags implied by the action. Clicking implies opening.
func (a TrackingAction) Apply(r *Result) {
	switch a {
	case ActionOpen:
		r.Opened = true
	case ActionClick:
		r.ClickedLink = true
		r.Opened = true
	}
}
