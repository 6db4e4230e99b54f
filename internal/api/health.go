package api

import (
	"net/http"
	"time"
)

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status  string       `json:"status"`
	Service string       `json:"service"`
	Version string       `json:"version"`
	Uptime  string       `json:"uptime"`
	AI      AIHealth     `json:"ai"`
	Mailer  MailerHealth `json:"mailer"`
}

// AIHealth reports AI adapter readiness
type AIHealth struct {
	Provider string `json:"provider"`
	Ready    bool   `json:"ready"`
}

// MailerHealth reports whether launches send mail
type MailerHealth struct {
	Enabled bool `json:"enabled"`
}

// handleHealth handles GET /health and GET /api/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Service: s.info.Service,
		Version: s.info.Version,
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
		AI: AIHealth{
			Provider: s.ai.Provider(),
			Ready:    s.ai.Ready(),
		},
		Mailer: MailerHealth{Enabled: s.mailer.Enabled()},
	})
}
