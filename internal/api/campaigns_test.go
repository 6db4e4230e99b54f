package api

import (
	"context"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/foxzi/phishdrill/internal/config"
	"github.com/foxzi/phishdrill/internal/models"
)

func TestCampaignScenario(t *testing.T) {
	env := setupTestServer(t, testOptions{})

	env.mustCreate(t, "/api/targets", `{"email":"a@x.com"}`)
	tmplID := env.mustCreate(t, "/api/templates", `{"name":"T1","subject":"S","body_content":"B"}`)

	w := env.do(t, http.MethodPost, "/api/campaigns", jsonf(`{"name":"C1","template_id":%d}`, tmplID))
	mustStatus(t, w, http.StatusCreated)
	created := decode[MessageResponse](t, w)
	if created.Message != "Campaign created" {
		t.Errorf("Message = %q, want %q", created.Message, "Campaign created")
	}

	campaigns := decode[[]models.Campaign](t, env.do(t, http.MethodGet, "/api/campaigns", ""))
	if len(campaigns) != 1 {
		t.Fatalf("len(campaigns) = %d, want 1", len(campaigns))
	}
	if campaigns[0].Status != models.CampaignDraft {
		t.Errorf("Status = %q, want %q", campaigns[0].Status, models.CampaignDraft)
	}
	if campaigns[0].TemplateID == nil || *campaigns[0].TemplateID != tmplID {
		t.Errorf("TemplateID = %v, want %d", campaigns[0].TemplateID, tmplID)
	}

	w = env.do(t, http.MethodPost, pathf("/api/campaigns/%d/launch", created.ID), "")
	mustStatus(t, w, http.StatusOK)
	if strings.Contains(w.Body.String(), "delivered") {
		t.Errorf("launch without a mailer reported delivery: %s", w.Body.String())
	}
	launched := decode[LaunchCampaignResponse](t, w)
	if launched.Count != 1 || launched.Message != "Campaign launched to 1 targets" {
		t.Errorf("launch = %+v", launched)
	}
	if launched.Delivered != nil {
		t.Errorf("Delivered = %d, want nil", *launched.Delivered)
	}

	campaigns = decode[[]models.Campaign](t, env.do(t, http.MethodGet, "/api/campaigns", ""))
	if campaigns[0].Status != models.CampaignActive {
		t.Errorf("Status after launch = %q, want %q", campaigns[0].Status, models.CampaignActive)
	}

	w = env.do(t, http.MethodGet, pathf("/api/campaigns/%d/stats", created.ID), "")
	mustStatus(t, w, http.StatusOK)
	want := models.CampaignStats{Campaign: "C1", Status: models.CampaignActive, TotalSent: 1}
	if got := decode[models.CampaignStats](t, w); got != want {
		t.Errorf("stats = %+v, want %+v", got, want)
	}
}

func TestCreateCampaign_Validation(t *testing.T) {
	env := setupTestServer(t, testOptions{})

	tmplID := env.mustCreate(t, "/api/templates", `{"name":"T1","subject":"S","body_content":"B"}`)

	tests := []struct {
		name    string
		body    string
		want    int
		wantErr string
	}{
		{"missing name", jsonf(`{"template_id":%d}`, tmplID), http.StatusBadRequest, "Name and Template ID required"},
		{"missing template", `{"name":"C"}`, http.StatusBadRequest, "Name and Template ID required"},
		{"zero template", `{"name":"C","template_id":0}`, http.StatusBadRequest, "Name and Template ID required"},
		{"empty body", ``, http.StatusBadRequest, "Name and Template ID required"},
		{"non-numeric template", `{"name":"C","template_id":"abc"}`, http.StatusBadRequest, "Invalid Template ID"},
		{"fractional template", `{"name":"C","template_id":1.5}`, http.StatusBadRequest, "Invalid Template ID"},
		{"absent template", `{"name":"C","template_id":999}`, http.StatusBadRequest, "Template not found"},
		{"numeric string", jsonf(`{"name":"C","template_id":"%d"}`, tmplID), http.StatusCreated, ""},
		{"number", jsonf(`{"name":"C","template_id":%d}`, tmplID), http.StatusCreated, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/campaigns", tt.body)
			if tt.wantErr != "" {
				expectError(t, w, tt.want, tt.wantErr)
				return
			}
			mustStatus(t, w, tt.want)
		})
	}
}

// launchFixture creates five targets and a draft campaign
func launchFixture(t *testing.T, env *testEnv) (campaignID int64, targetIDs []int64) {
	t.Helper()

	for _, email := range []string{"t1@x.com", "t2@x.com", "t3@x.com", "t4@x.com", "t5@x.com"} {
		targetIDs = append(targetIDs, env.mustCreate(t, "/api/targets", jsonf(`{"email":%q,"first_name":"T"}`, email)))
	}
	tmplID := env.mustCreate(t, "/api/templates", `{"name":"T1","subject":"Hi {{.FirstName}}","body_content":"<a href=\"https://login.example\">go</a>"}`)
	campaignID = env.mustCreate(t, "/api/campaigns", jsonf(`{"name":"C1","template_id":%d}`, tmplID))
	return campaignID, targetIDs
}

func TestLaunchCampaign(t *testing.T) {
	t.Run("selected targets", func(t *testing.T) {
		env := setupTestServer(t, testOptions{})
		campaignID, ids := launchFixture(t, env)

		body := jsonf(`{"target_ids":[%d,"%d",12345,"junk"]}`, ids[0], ids[2])
		w := env.do(t, http.MethodPost, pathf("/api/campaigns/%d/launch", campaignID), body)
		mustStatus(t, w, http.StatusOK)
		if got := decode[LaunchCampaignResponse](t, w).Count; got != 2 {
			t.Errorf("Count = %d, want 2", got)
		}

		stats := env.stats(t, campaignID)
		if stats.TotalSent != 2 || stats.Opened != 0 || stats.Clicked != 0 {
			t.Errorf("stats = %+v, want 2 sent and nothing else", stats)
		}
	})

	everyone := []struct {
		name string
		body string
	}{
		{"empty list targets everyone", `{"target_ids":[]}`},
		{"malformed target_ids targets everyone", `{"target_ids":"1,2"}`},
	}
	for _, tt := range everyone {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestServer(t, testOptions{})
			campaignID, _ := launchFixture(t, env)

			w := env.do(t, http.MethodPost, pathf("/api/campaigns/%d/launch", campaignID), tt.body)
			mustStatus(t, w, http.StatusOK)
			if got := decode[LaunchCampaignResponse](t, w).Count; got != 5 {
				t.Errorf("Count = %d, want 5", got)
			}
		})
	}

	t.Run("errors", func(t *testing.T) {
		env := setupTestServer(t, testOptions{})
		campaignID, _ := launchFixture(t, env)

		expectError(t, env.do(t, http.MethodPost, "/api/campaigns/abc/launch", ""), http.StatusBadRequest, "Invalid Campaign ID")
		expectError(t, env.do(t, http.MethodPost, "/api/campaigns/999/launch", ""), http.StatusBadRequest, "Campaign not found")

		mustStatus(t, env.do(t, http.MethodPost, pathf("/api/campaigns/%d/launch", campaignID), ""), http.StatusOK)

		w := env.do(t, http.MethodPost, pathf("/api/campaigns/%d/launch", campaignID), "")
		expectError(t, w, http.StatusBadRequest, "Campaign already active or completed")

		if got := env.stats(t, campaignID).TotalSent; got != 5 {
			t.Errorf("TotalSent = %d, want 5", got)
		}
	})
}

func TestLaunchCampaign_MailerFailuresDoNotFailLaunch(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	addr := l.Addr().String()
	l.Close()

	env := setupTestServer(t, testOptions{mailer: config.MailerConfig{
		Enabled:  true,
		Addr:     addr,
		Security: config.SecurityNone,
		From:     "it@drill.example.com",
		BaseURL:  "http://localhost:3000",
		Timeout:  time.Second,
	}})
	campaignID, ids := launchFixture(t, env)

	w := env.do(t, http.MethodPost, pathf("/api/campaigns/%d/launch", campaignID), jsonf(`{"target_ids":[%d,%d]}`, ids[0], ids[1]))
	mustStatus(t, w, http.StatusOK)

	resp := decode[LaunchCampaignResponse](t, w)
	if resp.Count != 2 {
		t.Errorf("Count = %d, want 2", resp.Count)
	}
	if resp.Delivered == nil || resp.Failed == nil {
		t.Fatalf("delivery report missing: %s", w.Body.String())
	}
	if *resp.Delivered != 0 || *resp.Failed != 2 {
		t.Errorf("delivered=%d failed=%d, want 0/2", *resp.Delivered, *resp.Failed)
	}

	campaign, err := env.store.GetCampaign(context.Background(), campaignID)
	if err != nil {
		t.Fatalf("GetCampaign() error = %v", err)
	}
	if campaign.Status != models.CampaignActive {
		t.Errorf("Status = %q, want %q", campaign.Status, models.CampaignActive)
	}

	if health := decode[HealthResponse](t, env.do(t, http.MethodGet, "/health", "")); !health.Mailer.Enabled {
		t.Error("Mailer.Enabled = false, want true")
	}
}

func TestCampaignStats_Errors(t *testing.T) {
	env := setupTestServer(t, testOptions{})

	expectError(t, env.do(t, http.MethodGet, "/api/campaigns/abc/stats", ""), http.StatusBadRequest, "Invalid Campaign ID")
	expectError(t, env.do(t, http.MethodGet, "/api/campaigns/42/stats", ""), http.StatusNotFound, "Campaign not found")
}

func TestDeleteCampaign(t *testing.T) {
	env := setupTestServer(t, testOptions{})
	campaignID, _ := launchFixture(t, env)
	mustStatus(t, env.do(t, http.MethodPost, pathf("/api/campaigns/%d/launch", campaignID), ""), http.StatusOK)

	w := env.do(t, http.MethodDelete, pathf("/api/campaigns/%d", campaignID), "")
	mustStatus(t, w, http.StatusOK)
	if got := decode[MessageResponse](t, w).Message; got != "Campaign deleted" {
		t.Errorf("Message = %q, want %q", got, "Campaign deleted")
	}

	if w := env.do(t, http.MethodGet, pathf("/api/campaigns/%d/stats", campaignID), ""); w.Code != http.StatusNotFound {
		t.Errorf("stats after delete = %d, want %d", w.Code, http.StatusNotFound)
	}

	for _, target := range decode[[]models.TargetWithHistory](t, env.do(t, http.MethodGet, "/api/targets", "")) {
		if len(target.History) != 0 {
			t.Errorf("%s: History = %+v, want empty", target.Email, target.History)
		}
	}

	if w := env.do(t, http.MethodDelete, pathf("/api/campaigns/%d", campaignID), ""); w.Code != http.StatusOK {
		t.Errorf("second delete = %d, want %d", w.Code, http.StatusOK)
	}
	if w := env.do(t, http.MethodDelete, "/api/campaigns/abc", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad id delete = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestDeleteTarget_RemovesFromStats(t *testing.T) {
	env := setupTestServer(t, testOptions{})
	campaignID, ids := launchFixture(t, env)
	mustStatus(t, env.do(t, http.MethodPost, pathf("/api/campaigns/%d/launch", campaignID), ""), http.StatusOK)

	mustStatus(t, env.do(t, http.MethodDelete, pathf("/api/targets/%d", ids[0]), ""), http.StatusOK)

	if got := env.stats(t, campaignID).TotalSent; got != 4 {
		t.Errorf("TotalSent = %d, want 4", got)
	}
}
