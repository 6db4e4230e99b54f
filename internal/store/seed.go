package store

import (
	"context"
	"fmt"

	"github.com/foxzi/phishdrill/internal/models"
)

const seedLink = "http://phishing-link"

// Seed inserts demo templates and a demo target into an empty store.
// It reports whether anything was inserted.
func Seed(ctx context.Context, s Store) (bool, error) {
	templates, err := s.ListTemplates(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list templates: %w", err)
	}
	targets, err := s.ListTargets(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list targets: %w", err)
	}
	if len(templates) > 0 || len(targets) > 0 {
		return false, nil
	}

	author := int64(1)
	for _, tmpl := range []models.Template{
		{
			Name:        "Urgent Password Reset",
			Subject:     "ACTION REQUIRED: Password Expiry Notice",
			BodyContent: "<p>Your password expires in 24 hours. <a href='" + seedLink + "'>Click here to reset</a>.</p>",
			CreatedBy:   &author,
		},
		{
			Name:        "HR Policy Update",
			Subject:     "New WFH Policy",
			BodyContent: "<p>Please review the attached policy update regarding remote work. <a href='" + seedLink + "'>View Document</a>.</p>",
			CreatedBy:   &author,
		},
	} {
		if err := s.AddTemplate(ctx, &tmpl); err != nil {
			return false, fmt.Errorf("failed to seed template %q: %w", tmpl.Name, err)
		}
	}

	target := &models.Target{
		Email:      "employee@example.com",
		FirstName:  "John",
		LastName:   "Doe",
		Department: "Sales",
	}
	if err := s.AddTarget(ctx, target); err != nil {
		return false, fmt.Errorf("failed to seed target: %w", err)
	}

	return true, nil
}
