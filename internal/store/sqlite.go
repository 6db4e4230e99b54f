package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/foxzi/phishdrill/internal/db"
	"github.com/foxzi/phishdrill/internal/models"
)

// SQLStore implements Store on SQLite
type SQLStore struct {
	db *db.DB
}

// NewSQLStore opens the database at path and applies migrations
func NewSQLStore(path string) (*SQLStore, error) {
	database, err := db.New(path)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, err
	}
	return &SQLStore{db: database}, nil
}

// Close closes the database
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// withTx runs fn in a transaction, committing when fn returns nil
func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

const templateColumns = "id, name, subject, body_content, is_ai_generated, created_by"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (*models.Template, error) {
	t := &models.Template{}
	var createdBy sql.NullInt64
	if err := row.Scan(&t.ID, &t.Name, &t.Subject, &t.BodyContent, &t.IsAIGenerated, &createdBy); err != nil {
		return nil, err
	}
	if createdBy.Valid {
		t.CreatedBy = &createdBy.Int64
	}
	return t, nil
}

func (s *SQLStore) ListTemplates(ctx context.Context) ([]models.Template, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+templateColumns+" FROM templates ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	templates := []models.Template{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, *t)
	}
	return templates, rows.Err()
}

func (s *SQLStore) GetTemplate(ctx context.Context, id int64) (*models.Template, error) {
	t, err := scanTemplate(s.db.QueryRowContext(ctx, "SELECT "+templateColumns+" FROM templates WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return t, nil
}

func (s *SQLStore) AddTemplate(ctx context.Context, tmpl *models.Template) error {
	if tmpl.Name == "" {
		tmpl.Name = models.DefaultTemplateName
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO templates (name, subject, body_content, is_ai_generated, created_by)
		VALUES (?, ?, ?, ?, ?)`,
		tmpl.Name, tmpl.Subject, tmpl.BodyContent, tmpl.IsAIGenerated, tmpl.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to add template: %w", err)
	}
	tmpl.ID, err = res.LastInsertId()
	return err
}

func (s *SQLStore) UpdateTemplate(ctx context.Context, id int64, upd models.TemplateUpdate) (*models.Template, error) {
	var updated *models.Template
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		t, err := scanTemplate(tx.QueryRowContext(ctx, "SELECT "+templateColumns+" FROM templates WHERE id = ?", id))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		if upd.Name != nil {
			t.Name = *upd.Name
		}
		if upd.Subject != nil {
			t.Subject = *upd.Subject
		}
		if upd.BodyContent != nil {
			t.BodyContent = *upd.BodyContent
		}

		_, err = tx.ExecContext(ctx,
			"UPDATE templates SET name = ?, subject = ?, body_content = ? WHERE id = ?",
			t.Name, t.Subject, t.BodyContent, id,
		)
		updated = t
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update template: %w", err)
	}
	return updated, nil
}

func (s *SQLStore) DeleteTemplate(ctx context.Context, id int64) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "UPDATE campaigns SET template_id = NULL WHERE template_id = ?", id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM templates WHERE id = ?", id)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	return nil
}

const targetColumns = "id, email, COALESCE(first_name, ''), COALESCE(last_name, ''), COALESCE(department, '')"

func scanTarget(row rowScanner) (*models.Target, error) {
	t := &models.Target{}
	if err := row.Scan(&t.ID, &t.Email, &t.FirstName, &t.LastName, &t.Department); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *SQLStore) ListTargets(ctx context.Context) ([]models.TargetWithHistory, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+targetColumns+" FROM targets ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}

	targets := []models.TargetWithHistory{}
	index := make(map[int64]int)
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		index[t.ID] = len(targets)
		targets = append(targets, models.TargetWithHistory{Target: *t, History: []models.HistoryEntry{}})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Campaign and template may be gone; resolve them as Unknown
	rows, err = s.db.QueryContext(ctx, `
		SELECT r.id, r.target_id, r.sent_at, r.opened, r.clicked_link, r.submitted_credentials,
			c.name, t.subject, t.body_content
		FROM results r
		LEFT JOIN campaigns c ON c.id = r.campaign_id
		LEFT JOIN templates t ON t.id = c.template_id
		ORDER BY r.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r models.Result
		var campaign, subject, body sql.NullString
		err := rows.Scan(&r.ID, &r.TargetID, &r.SentAt, &r.Opened, &r.ClickedLink, &r.SubmittedCredentials,
			&campaign, &subject, &body)
		if err != nil {
			return nil, err
		}

		i, ok := index[r.TargetID]
		if !ok {
			continue
		}

		entry := models.HistoryEntry{
			ResultID:     r.ID,
			CampaignName: models.Unknown,
			EmailSubject: models.Unknown,
			SentAt:       r.SentAt,
			Status:       r.HistoryStatus(),
		}
		if campaign.Valid {
			entry.CampaignName = campaign.String
		}
		if subject.Valid {
			entry.EmailSubject = subject.String
			entry.EmailBody = body.String
		}
		targets[i].History = append(targets[i].History, entry)
	}

	return targets, rows.Err()
}

func (s *SQLStore) GetTarget(ctx context.Context, id int64) (*models.Target, error) {
	t, err := scanTarget(s.db.QueryRowContext(ctx, "SELECT "+targetColumns+" FROM targets WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get target: %w", err)
	}
	return t, nil
}

func (s *SQLStore) AddTarget(ctx context.Context, target *models.Target) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO targets (email, first_name, last_name, department)
		VALUES (?, ?, ?, ?)`,
		target.Email, target.FirstName, target.LastName, target.Department,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to add target: %w", err)
	}
	target.ID, err = res.LastInsertId()
	return err
}

func (s *SQLStore) DeleteTarget(ctx context.Context, id int64) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM results WHERE target_id = ?", id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM targets WHERE id = ?", id)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete target: %w", err)
	}
	return nil
}

const campaignColumns = "id, name, template_id, status, created_at"

func scanCampaign(row rowScanner) (*models.Campaign, error) {
	c := &models.Campaign{}
	var templateID sql.NullInt64
	if err := row.Scan(&c.ID, &c.Name, &templateID, &c.Status, &c.CreatedAt); err != nil {
		return nil, err
	}
	if templateID.Valid {
		c.TemplateID = &templateID.Int64
	}
	return c, nil
}

func (s *SQLStore) ListCampaigns(ctx context.Context) ([]models.Campaign, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+campaignColumns+" FROM campaigns ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := []models.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, rows.Err()
}

func (s *SQLStore) GetCampaign(ctx context.Context, id int64) (*models.Campaign, error) {
	c, err := scanCampaign(s.db.QueryRowContext(ctx, "SELECT "+campaignColumns+" FROM campaigns WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return c, nil
}

func (s *SQLStore) CreateCampaign(ctx context.Context, name string, templateID int64) (*models.Campaign, error) {
	c := &models.Campaign{
		Name:       name,
		TemplateID: &templateID,
		Status:     models.CampaignDraft,
		CreatedAt:  time.Now().UTC(),
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM templates WHERE id = ?", templateID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			"INSERT INTO campaigns (name, template_id, status, created_at) VALUES (?, ?, ?, ?)",
			c.Name, templateID, c.Status, c.CreatedAt,
		)
		if err != nil {
			return err
		}
		c.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}
	return c, nil
}

func (s *SQLStore) LaunchCampaign(ctx context.Context, id int64, targetIDs []int64) ([]models.Result, error) {
	results := []models.Result{}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var status models.CampaignStatus
		err := tx.QueryRowContext(ctx, "SELECT status FROM campaigns WHERE id = ?", id).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if status != models.CampaignDraft {
			return ErrCampaignNotDraft
		}

		rows, err := tx.QueryContext(ctx, "SELECT "+targetColumns+" FROM targets ORDER BY id")
		if err != nil {
			return err
		}
		var all []models.Target
		for rows.Next() {
			t, err := scanTarget(rows)
			if err != nil {
				rows.Close()
				return err
			}
			all = append(all, *t)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		now := time.Now().UTC()
		for _, t := range selectTargets(all, targetIDs) {
			res, err := tx.ExecContext(ctx,
				"INSERT INTO results (campaign_id, target_id, sent_at) VALUES (?, ?, ?)",
				id, t.ID, now,
			)
			if err != nil {
				return err
			}
			resultID, err := res.LastInsertId()
			if err != nil {
				return err
			}
			results = append(results, models.Result{
				ID:         resultID,
				CampaignID: id,
				TargetID:   t.ID,
				SentAt:     now,
			})
		}

		_, err = tx.ExecContext(ctx, "UPDATE campaigns SET status = ? WHERE id = ?", models.CampaignActive, id)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrCampaignNotDraft) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to launch campaign: %w", err)
	}
	return results, nil
}

func (s *SQLStore) CampaignStats(ctx context.Context, id int64) (*models.CampaignStats, error) {
	stats := &models.CampaignStats{}
	err := s.db.QueryRowContext(ctx, `
		SELECT c.name, c.status,
			COUNT(r.id),
			COALESCE(SUM(r.opened), 0),
			COALESCE(SUM(r.clicked_link), 0),
			COALESCE(SUM(r.submitted_credentials), 0)
		FROM campaigns c
		LEFT JOIN results r ON r.campaign_id = c.id
		WHERE c.id = ?
		GROUP BY c.id`, id,
	).Scan(&stats.Campaign, &stats.Status, &stats.TotalSent, &stats.Opened, &stats.Clicked, &stats.Submitted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign stats: %w", err)
	}
	return stats, nil
}

func (s *SQLStore) DeleteCampaign(ctx context.Context, id int64) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM results WHERE campaign_id = ?", id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM campaigns WHERE id = ?", id)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete campaign: %w", err)
	}
	return nil
}

func (s *SQLStore) GetResult(ctx context.Context, id int64) (*models.Result, error) {
	r := &models.Result{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, campaign_id, target_id, sent_at, opened, clicked_link, submitted_credentials
		FROM results WHERE id = ?`, id,
	).Scan(&r.ID, &r.CampaignID, &r.TargetID, &r.SentAt, &r.Opened, &r.ClickedLink, &r.SubmittedCredentials)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	return r, nil
}

func (s *SQLStore) TrackAction(ctx context.Context, resultID int64, action models.TrackingAction) (bool, error) {
	if err := validAction(action); err != nil {
		return false, err
	}

	query := "UPDATE results SET opened = 1 WHERE id = ?"
	if action == models.ActionClick {
		query = "UPDATE results SET opened = 1, clicked_link = 1 WHERE id = ?"
	}

	res, err := s.db.ExecContext(ctx, query, resultID)
	if err != nil {
		return false, fmt.Errorf("failed to track %s: %w", action, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
