package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/easeaico/persona-engine/internal/stylecf"
)

// globalPrefsKey holds the population counts alongside the per-user rows.
const globalPrefsKey = "__global__"

type stylePrefModel struct {
	UserID    string          `gorm:"primaryKey"`
	Counts    json.RawMessage `gorm:"type:jsonb"`
	UpdatedAt time.Time
}

func (stylePrefModel) TableName() string {
	return "style_prefs"
}

// StylePrefRepo stores collaborative filtering counts. It implements
// stylecf.Repo.
type StylePrefRepo struct {
	db *gorm.DB
}

// NewStylePrefRepo returns a StylePrefRepo.
func NewStylePrefRepo(db *gorm.DB) *StylePrefRepo {
	return &StylePrefRepo{db: db}
}

func (r *StylePrefRepo) SaveStylePrefs(ctx context.Context, snap stylecf.Snapshot) error {
	records, err := stylePrefsToModels(snap, time.Now().UTC())
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&stylePrefModel{}).Error; err != nil {
			return fmt.Errorf("failed to clear style prefs: %w", err)
		}
		if err := tx.CreateInBatches(&records, 200).Error; err != nil {
			return fmt.Errorf("failed to insert style prefs: %w", err)
		}
		return nil
	})
}

func (r *StylePrefRepo) LoadStylePrefs(ctx context.Context) (stylecf.Snapshot, error) {
	var records []stylePrefModel
	if err := r.db.WithContext(ctx).Find(&records).Error; err != nil {
		return stylecf.Snapshot{}, fmt.Errorf("failed to query style prefs: %w", err)
	}
	return stylePrefsFromModels(records)
}

func stylePrefsToModels(snap stylecf.Snapshot, now time.Time) ([]stylePrefModel, error) {
	records := make([]stylePrefModel, 0, len(snap.Users)+1)
	global, err := json.Marshal(snap.Global)
	if err != nil {
		return nil, fmt.Errorf("failed to encode global style prefs: %w", err)
	}
	records = append(records, stylePrefModel{UserID: globalPrefsKey, Counts: global, UpdatedAt: now})
	for user, table := range snap.Users {
		raw, err := json.Marshal(table)
		if err != nil {
			return nil, fmt.Errorf("failed to encode style prefs for %s: %w", user, err)
		}
		records = append(records, stylePrefModel{UserID: user, Counts: raw, UpdatedAt: now})
	}
	return records, nil
}

func stylePrefsFromModels(records []stylePrefModel) (stylecf.Snapshot, error) {
	snap := stylecf.Snapshot{Users: map[string]map[string]map[string]stylecf.Counts{}}
	for _, record := range records {
		var table map[string]map[string]stylecf.Counts
		if err := json.Unmarshal(record.Counts, &table); err != nil {
			return stylecf.Snapshot{}, fmt.Errorf("failed to decode style prefs for %s: %w", record.UserID, err)
		}
		if record.UserID == globalPrefsKey {
			snap.Global = table
			continue
		}
		snap.Users[record.UserID] = table
	}
	return snap, nil
}
