package models

import "testing"

func TestTrackingAction_Apply(t *testing.T) {
	r := &Result{}

	ActionClick.Apply(r)
	if !r.ClickedLink || !r.Opened {
		t.Fatalf("click should set clicked_link and opened, got %+v", r)
	}

	ActionOpen.Apply(r)
	if !r.ClickedLink {
		t.Error("open after click must not clear clicked_link")
	}
}

func TestResult_HistoryStatus(t *testing.T) {
	tests := []struct {
		name   string
		result Result
		want   string
	}{
		{"sent", Result{}, HistorySent},
		{"opened", Result{Opened: true}, HistoryOpened},
		{"clicked", Result{Opened: true, ClickedLink: true}, HistoryClicked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.result.HistoryStatus(); got != tt.want {
				t.Errorf("HistoryStatus() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseTrackingAction(t *testing.T) {
	if a, ok := ParseTrackingAction("open"); !ok || a != ActionOpen {
		t.Errorf("ParseTrackingAction(open) = %q, %v", a, ok)
	}
	if a, ok := ParseTrackingAction("click"); !ok || a != ActionClick {
		t.Errorf("ParseTrackingAction(click) = %q, %v", a, ok)
	}
	if _, ok := ParseTrackingAction("submit"); ok {
		t.Error("ParseTrackingAction(submit) should not match")
	}
}
