package api

import (
	"net/http"
	"reflect"
	"strings"
	"testing"

	"github.com/foxzi/phishdrill/internal/ai"
	"github.com/foxzi/phishdrill/internal/models"
	"github.com/foxzi/phishdrill/internal/ratelimit"
)

func TestSaveTemplate(t *testing.T) {
	env := setupTestServer(t, testOptions{})

	id := env.mustCreate(t, "/api/templates", `{"name":"T1","subject":"S","body_content":"B","is_ai_generated":true,"user_id":"7"}`)
	env.mustCreate(t, "/api/templates", `{"subject":"S2","body":"from body key"}`)

	templates := decode[[]models.Template](t, env.do(t, http.MethodGet, "/api/templates", ""))
	if len(templates) != 2 {
		t.Fatalf("len(templates) = %d, want 2", len(templates))
	}

	first := templates[0]
	if first.ID != id || first.Name != "T1" || first.BodyContent != "B" {
		t.Errorf("first template = %+v", first)
	}
	if !first.IsAIGenerated {
		t.Error("IsAIGenerated = false, want true")
	}
	if first.CreatedBy == nil || *first.CreatedBy != 7 {
		t.Errorf("CreatedBy = %v, want 7", first.CreatedBy)
	}

	second := templates[1]
	if second.Name != models.DefaultTemplateName {
		t.Errorf("Name = %q, want %q", second.Name, models.DefaultTemplateName)
	}
	if second.BodyContent != "from body key" {
		t.Errorf("BodyContent = %q, want %q", second.BodyContent, "from body key")
	}
	if second.IsAIGenerated {
		t.Error("IsAIGenerated = true, want false")
	}
	if second.CreatedBy != nil {
		t.Errorf("CreatedBy = %d, want nil", *second.CreatedBy)
	}
}

func TestUpdateTemplate(t *testing.T) {
	env := setupTestServer(t, testOptions{})

	id := env.mustCreate(t, "/api/templates", `{"name":"T1","subject":"S","body_content":"B"}`)

	w := env.do(t, http.MethodPut, pathf("/api/templates/%d", id), `{"subject":"New subject","is_ai_generated":true,"id":99}`)
	mustStatus(t, w, http.StatusOK)

	want := models.Template{ID: id, Name: "T1", Subject: "New subject", BodyContent: "B"}
	if got := decode[models.Template](t, w); !reflect.DeepEqual(got, want) {
		t.Errorf("updated = %+v, want %+v", got, want)
	}

	expectError(t, env.do(t, http.MethodPut, "/api/templates/999", `{"name":"x"}`), http.StatusNotFound, "Template not found")
	expectError(t, env.do(t, http.MethodPut, "/api/templates/abc", `{"name":"x"}`), http.StatusBadRequest, "Invalid ID")
}

func TestDeleteTemplate(t *testing.T) {
	env := setupTestServer(t, testOptions{})

	id := env.mustCreate(t, "/api/templates", `{"name":"T1","subject":"S","body_content":"B"}`)
	targetID := env.mustCreate(t, "/api/targets", `{"email":"a@x.com"}`)
	campaignID := env.mustCreate(t, "/api/campaigns", jsonf(`{"name":"C1","template_id":%d}`, id))
	mustStatus(t, env.do(t, http.MethodPost, pathf("/api/campaigns/%d/launch", campaignID), ""), http.StatusOK)

	w := env.do(t, http.MethodDelete, pathf("/api/templates/%d", id), "")
	mustStatus(t, w, http.StatusOK)
	if got := decode[MessageResponse](t, w).Message; got != "Template deleted" {
		t.Errorf("Message = %q, want %q", got, "Template deleted")
	}

	if templates := decode[[]models.Template](t, env.do(t, http.MethodGet, "/api/templates", "")); len(templates) != 0 {
		t.Errorf("templates = %+v, want none", templates)
	}

	campaigns := decode[[]models.Campaign](t, env.do(t, http.MethodGet, "/api/campaigns", ""))
	if len(campaigns) != 1 {
		t.Fatalf("len(campaigns) = %d, want 1", len(campaigns))
	}
	if campaigns[0].TemplateID != nil {
		t.Errorf("TemplateID = %d, want nil", *campaigns[0].TemplateID)
	}

	targets := decode[[]models.TargetWithHistory](t, env.do(t, http.MethodGet, "/api/targets", ""))
	if len(targets) != 1 || targets[0].ID != targetID || len(targets[0].History) != 1 {
		t.Fatalf("targets = %+v, want target %d with one history entry", targets, targetID)
	}
	entry := targets[0].History[0]
	if entry.EmailSubject != models.Unknown {
		t.Errorf("EmailSubject = %q, want %q", entry.EmailSubject, models.Unknown)
	}
	if entry.EmailBody != "" {
		t.Errorf("EmailBody = %q, want empty", entry.EmailBody)
	}

	if w := env.do(t, http.MethodDelete, "/api/templates/x1", ""); w.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestGenerateTemplate(t *testing.T) {
	t.Run("type required", func(t *testing.T) {
		env := setupTestServer(t, testOptions{completer: staticCompleter("{}")})

		w := env.do(t, http.MethodPost, "/api/templates/generate", `{"sender_name":"IT"}`)
		expectError(t, w, http.StatusBadRequest, "Template type is required")
	})

	t.Run("unconfigured", func(t *testing.T) {
		env := setupTestServer(t, testOptions{})

		w := env.do(t, http.MethodPost, "/api/templates/generate", `{"type":"Password Reset"}`)
		expectError(t, w, http.StatusInternalServerError, "Failed to generate template: "+ai.ErrNotConfigured.Error())
	})

	t.Run("provider failure", func(t *testing.T) {
		env := setupTestServer(t, testOptions{completer: failingCompleter{}})

		w := env.do(t, http.MethodPost, "/api/templates/generate", `{"type":"Password Reset"}`)
		if w.Code != http.StatusInternalServerError {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusInternalServerError)
		}
		if got := errorOf(t, w); !strings.HasPrefix(got, "Failed to generate template: ") {
			t.Errorf("Error = %q", got)
		}
	})

	t.Run("fenced json", func(t *testing.T) {
		raw := "```json\n{\"Subject\": \"Your password expires today\", \"Body\": \"<p>Reset <a href='http://x'>here</a></p>\"}\n```"
		env := setupTestServer(t, testOptions{completer: staticCompleter(raw)})

		w := env.do(t, http.MethodPost, "/api/templates/generate", `{"type":"Password Reset","sender_name":"IT","context":"quarterly"}`)
		mustStatus(t, w, http.StatusOK)
		if strings.Contains(w.Body.String(), "```") {
			t.Errorf("response still fenced: %s", w.Body.String())
		}

		want := ai.GeneratedTemplate{
			Subject: "Your password expires today",
			Body:    "<p>Reset <a href='http://x'>here</a></p>",
		}
		if got := decode[ai.GeneratedTemplate](t, w); got != want {
			t.Errorf("draft = %+v, want %+v", got, want)
		}

		// Drafts are not stored
		if templates := decode[[]models.Template](t, env.do(t, http.MethodGet, "/api/templates", "")); len(templates) != 0 {
			t.Errorf("templates = %+v, want none", templates)
		}
	})

	t.Run("plain text", func(t *testing.T) {
		env := setupTestServer(t, testOptions{completer: staticCompleter("Dear user, click the link.")})

		w := env.do(t, http.MethodPost, "/api/templates/generate", `{"type":"Invoice"}`)
		mustStatus(t, w, http.StatusOK)

		want := ai.GeneratedTemplate{Subject: "Invoice Simulation", Body: "Dear user, click the link."}
		if got := decode[ai.GeneratedTemplate](t, w); got != want {
			t.Errorf("draft = %+v, want %+v", got, want)
		}
	})
}

func TestAnalyzeTemplate(t *testing.T) {
	t.Run("fields required", func(t *testing.T) {
		env := setupTestServer(t, testOptions{})

		w := env.do(t, http.MethodPost, "/api/templates/analyze", `{"subject":"only subject"}`)
		expectError(t, w, http.StatusBadRequest, "Subject and Body required")
	})

	tests := []struct {
		name      string
		completer ai.Completer
		want      []string
	}{
		{"unconfigured falls back", nil, ai.DefaultRedFlags},
		{"provider failure falls back", failingCompleter{}, ai.DefaultRedFlags},
		{"analysis", staticCompleter(`{"analysis":["Urgency","Mismatched sender"]}`), []string{"Urgency", "Mismatched sender"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestServer(t, testOptions{completer: tt.completer})

			w := env.do(t, http.MethodPost, "/api/templates/analyze", `{"subject":"S","body":"B"}`)
			mustStatus(t, w, http.StatusOK)
			if got := decode[AnalyzeResponse](t, w).Analysis; !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Analysis = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAIRateLimit(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.Config{
		PerClient: &ratelimit.LimitConfig{RequestsPerHour: 2},
	})
	env := setupTestServer(t, testOptions{limiter: limiter})

	for i := 0; i < 2; i++ {
		w := env.do(t, http.MethodPost, "/api/templates/analyze", `{"subject":"S","body":"B"}`, "X-Real-IP", "10.1.1.1")
		mustStatus(t, w, http.StatusOK)
	}

	// Generation shares the quota
	w := env.do(t, http.MethodPost, "/api/templates/generate", `{"type":"Password reset"}`, "X-Real-IP", "10.1.1.1")
	expectError(t, w, http.StatusTooManyRequests, "Too many AI requests, try again later")
	if got := w.Header().Get("Retry-After"); got != "3600" {
		t.Errorf("Retry-After = %q, want 3600", got)
	}

	// Another client and the non-AI routes are unaffected
	if w := env.do(t, http.MethodPost, "/api/templates/analyze", `{"subject":"S","body":"B"}`, "X-Real-IP", "10.1.1.2"); w.Code != http.StatusOK {
		t.Errorf("other client: Status = %d, want %d", w.Code, http.StatusOK)
	}
	if w := env.do(t, http.MethodGet, "/api/templates", "", "X-Real-IP", "10.1.1.1"); w.Code != http.StatusOK {
		t.Errorf("list templates: Status = %d, want %d", w.Code, http.StatusOK)
	}

	if got := limiter.GetStats(ratelimit.LevelClient, "10.1.1.1").HourlyCount; got != 2 {
		t.Errorf("HourlyCount = %d, want 2", got)
	}
}
