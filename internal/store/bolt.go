package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/phishdrill/internal/models"
)

var (
	bucketTemplates    = []byte("templates")
	bucketTargets      = []byte("targets")
	bucketTargetEmails = []byte("target_emails")
	bucketCampaigns    = []byte("campaigns")
	bucketResults      = []byte("results")
)

// BoltStore implements Store using BoltDB. Records are JSON encoded
// under big-endian sequence keys so cursors iterate in ID order.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates the database file at path
func NewBoltStore(path string) (*BoltStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketTemplates, bucketTargets, bucketTargetEmails, bucketCampaigns, bucketResults} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func itob(id int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

// nextID returns the bucket's next sequence value. Sequences never go
// backwards, so deleted IDs are not reused.
func nextID(b *bolt.Bucket) (int64, error) {
	seq, err := b.NextSequence()
	if err != nil {
		return 0, err
	}
	return int64(seq), nil
}

func putJSON(b *bolt.Bucket, id int64, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	return b.Put(itob(id), data)
}

// getJSON decodes the record stored under id, returning ErrNotFound when absent
func getJSON(b *bolt.Bucket, id int64, v any) error {
	data := b.Get(itob(id))
	if data == nil {
		return ErrNotFound
	}
	return json.Unmarshal(data, v)
}

// each decodes every record of a bucket in key order
func each[T any](b *bolt.Bucket, fn func(T) error) error {
	return b.ForEach(func(_, v []byte) error {
		var rec T
		if err := json.Unmarshal(v, &rec); err != nil {
			return fmt.Errorf("failed to unmarshal record: %w", err)
		}
		return fn(rec)
	})
}

// deleteResults removes every result for which match returns true
func deleteResults(tx *bolt.Tx, match func(models.Result) bool) error {
	b := tx.Bucket(bucketResults)
	var doomed [][]byte
	err := each(b, func(r models.Result) error {
		if match(r) {
			doomed = append(doomed, itob(r.ID))
		}
		return nil
	})
	if err != nil {
		return err
	}
	// Deleting while iterating with ForEach is unsafe
	for _, k := range doomed {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func (s *BoltStore) ListTemplates(ctx context.Context) ([]models.Template, error) {
	templates := []models.Template{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return each(tx.Bucket(bucketTemplates), func(t models.Template) error {
			templates = append(templates, t)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return templates, nil
}

func (s *BoltStore) GetTemplate(ctx context.Context, id int64) (*models.Template, error) {
	var t models.Template
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(bucketTemplates), id, &t)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *BoltStore) AddTemplate(ctx context.Context, tmpl *models.Template) error {
	if tmpl.Name == "" {
		tmpl.Name = models.DefaultTemplateName
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTemplates)
		id, err := nextID(b)
		if err != nil {
			return err
		}
		tmpl.ID = id
		return putJSON(b, id, tmpl)
	})
}

func (s *BoltStore) UpdateTemplate(ctx context.Context, id int64, upd models.TemplateUpdate) (*models.Template, error) {
	var t models.Template
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTemplates)
		if err := getJSON(b, id, &t); err != nil {
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

		return putJSON(b, id, &t)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *BoltStore) DeleteTemplate(ctx context.Context, id int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		campaigns := tx.Bucket(bucketCampaigns)

		var referencing []models.Campaign
		err := each(campaigns, func(c models.Campaign) error {
			if c.TemplateID != nil && *c.TemplateID == id {
				referencing = append(referencing, c)
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, c := range referencing {
			c.TemplateID = nil
			if err := putJSON(campaigns, c.ID, &c); err != nil {
				return err
			}
		}

		return tx.Bucket(bucketTemplates).Delete(itob(id))
	})
}

func (s *BoltStore) ListTargets(ctx context.Context) ([]models.TargetWithHistory, error) {
	targets := []models.TargetWithHistory{}

	err := s.db.View(func(tx *bolt.Tx) error {
		index := make(map[int64]int)
		err := each(tx.Bucket(bucketTargets), func(t models.Target) error {
			index[t.ID] = len(targets)
			targets = append(targets, models.TargetWithHistory{Target: t, History: []models.HistoryEntry{}})
			return nil
		})
		if err != nil {
			return err
		}

		campaigns := tx.Bucket(bucketCampaigns)
		templates := tx.Bucket(bucketTemplates)

		return each(tx.Bucket(bucketResults), func(r models.Result) error {
			i, ok := index[r.TargetID]
			if !ok {
				return nil
			}

			entry := models.HistoryEntry{
				ResultID:     r.ID,
				CampaignName: models.Unknown,
				EmailSubject: models.Unknown,
				SentAt:       r.SentAt,
				Status:       r.HistoryStatus(),
			}

			var c models.Campaign
			if getJSON(campaigns, r.CampaignID, &c) == nil {
				entry.CampaignName = c.Name
				var t models.Template
				if c.TemplateID != nil && getJSON(templates, *c.TemplateID, &t) == nil {
					entry.EmailSubject = t.Subject
					entry.EmailBody = t.BodyContent
				}
			}

			targets[i].History = append(targets[i].History, entry)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	return targets, nil
}

func (s *BoltStore) GetTarget(ctx context.Context, id int64) (*models.Target, error) {
	var t models.Target
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(bucketTargets), id, &t)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *BoltStore) AddTarget(ctx context.Context, target *models.Target) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		emails := tx.Bucket(bucketTargetEmails)
		if emails.Get([]byte(target.Email)) != nil {
			return ErrDuplicateEmail
		}

		b := tx.Bucket(bucketTargets)
		id, err := nextID(b)
		if err != nil {
			return err
		}
		target.ID = id

		if err := putJSON(b, id, target); err != nil {
			return err
		}
		return emails.Put([]byte(target.Email), itob(id))
	})
}

func (s *BoltStore) DeleteTarget(ctx context.Context, id int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTargets)
		var t models.Target
		if err := getJSON(b, id, &t); err != nil {
			if err == ErrNotFound {
				return nil
			}
			return err
		}

		if err := deleteResults(tx, func(r models.Result) bool { return r.TargetID == id }); err != nil {
			return err
		}
		if err := tx.Bucket(bucketTargetEmails).Delete([]byte(t.Email)); err != nil {
			return err
		}
		return b.Delete(itob(id))
	})
}

func (s *BoltStore) ListCampaigns(ctx context.Context) ([]models.Campaign, error) {
	campaigns := []models.Campaign{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return each(tx.Bucket(bucketCampaigns), func(c models.Campaign) error {
			campaigns = append(campaigns, c)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	return campaigns, nil
}

func (s *BoltStore) GetCampaign(ctx context.Context, id int64) (*models.Campaign, error) {
	var c models.Campaign
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(bucketCampaigns), id, &c)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *BoltStore) CreateCampaign(ctx context.Context, name string, templateID int64) (*models.Campaign, error) {
	c := &models.Campaign{
		Name:       name,
		TemplateID: &templateID,
		Status:     models.CampaignDraft,
		CreatedAt:  time.Now().UTC(),
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketTemplates).Get(itob(templateID)) == nil {
			return ErrNotFound
		}

		b := tx.Bucket(bucketCampaigns)
		id, err := nextID(b)
		if err != nil {
			return err
		}
		c.ID = id
		return putJSON(b, id, c)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *BoltStore) LaunchCampaign(ctx context.Context, id int64, targetIDs []int64) ([]models.Result, error) {
	results := []models.Result{}

	err := s.db.Update(func(tx *bolt.Tx) error {
		campaigns := tx.Bucket(bucketCampaigns)
		var c models.Campaign
		if err := getJSON(campaigns, id, &c); err != nil {
			return err
		}
		if c.Status != models.CampaignDraft {
			return ErrCampaignNotDraft
		}

		var all []models.Target
		err := each(tx.Bucket(bucketTargets), func(t models.Target) error {
			all = append(all, t)
			return nil
		})
		if err != nil {
			return err
		}

		b := tx.Bucket(bucketResults)
		now := time.Now().UTC()
		for _, t := range selectTargets(all, targetIDs) {
			resultID, err := nextID(b)
			if err != nil {
				return err
			}
			r := models.Result{
				ID:         resultID,
				CampaignID: id,
				TargetID:   t.ID,
				SentAt:     now,
			}
			if err := putJSON(b, resultID, &r); err != nil {
				return err
			}
			results = append(results, r)
		}

		c.Status = models.CampaignActive
		return putJSON(campaigns, id, &c)
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *BoltStore) CampaignStats(ctx context.Context, id int64) (*models.CampaignStats, error) {
	stats := &models.CampaignStats{}
	err := s.db.View(func(tx *bolt.Tx) error {
		var c models.Campaign
		if err := getJSON(tx.Bucket(bucketCampaigns), id, &c); err != nil {
			return err
		}
		stats.Campaign = c.Name
		stats.Status = c.Status

		return each(tx.Bucket(bucketResults), func(r models.Result) error {
			if r.CampaignID != id {
				return nil
			}
			stats.TotalSent++
			if r.Opened {
				stats.Opened++
			}
			if r.ClickedLink {
				stats.Clicked++
			}
			if r.SubmittedCredentials {
				stats.Submitted++
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *BoltStore) DeleteCampaign(ctx context.Context, id int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := deleteResults(tx, func(r models.Result) bool { return r.CampaignID == id }); err != nil {
			return err
		}
		return tx.Bucket(bucketCampaigns).Delete(itob(id))
	})
}

func (s *BoltStore) GetResult(ctx context.Context, id int64) (*models.Result, error) {
	var r models.Result
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(bucketResults), id, &r)
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *BoltStore) TrackAction(ctx context.Context, resultID int64, action models.TrackingAction) (bool, error) {
	if err := validAction(action); err != nil {
		return false, err
	}

	found := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketResults)
		var r models.Result
		if err := getJSON(b, resultID, &r); err != nil {
			if err == ErrNotFound {
				return nil
			}
			return err
		}
		found = true
		action.Apply(&r)
		return putJSON(b, resultID, &r)
	})
	if err != nil {
		return false, fmt.Errorf("failed to track %s: %w", action, err)
	}
	return found, nil
}
