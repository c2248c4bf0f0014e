package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/easeaico/persona-engine/internal/bandit"
)

// checkpointModel maps to the bandit_checkpoints table.
type checkpointModel struct {
	ID        string          `gorm:"primaryKey"`
	Snapshot  json.RawMessage `gorm:"type:jsonb"`
	UpdatedAt time.Time
}

func (checkpointModel) TableName() string {
	return "bandit_checkpoints"
}

// CheckpointRepo stores bandit snapshots. It implements bandit.Checkpointer.
type CheckpointRepo struct {
	db *gorm.DB
}

// NewCheckpointRepo returns a CheckpointRepo.
func NewCheckpointRepo(db *gorm.DB) *CheckpointRepo {
	return &CheckpointRepo{db: db}
}

func (r *CheckpointRepo) SaveArms(ctx context.Context, id string, snap bandit.Snapshot) error {
	record, err := checkpointToModel(id, snap)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&record).Error; err != nil {
		return fmt.Errorf("failed to upsert bandit checkpoint: %w", err)
	}
	return nil
}

func (r *CheckpointRepo) LoadArms(ctx context.Context, id string) (bandit.Snapshot, error) {
	var record checkpointModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return bandit.Snapshot{}, bandit.ErrNoCheckpoint
	}
	if err != nil {
		return bandit.Snapshot{}, fmt.Errorf("failed to query bandit checkpoint: %w", err)
	}
	return checkpointFromModel(record)
}

func checkpointToModel(id string, snap bandit.Snapshot) (checkpointModel, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return checkpointModel{}, fmt.Errorf("failed to encode bandit checkpoint: %w", err)
	}
	return checkpointModel{ID: id, Snapshot: raw, UpdatedAt: snap.UpdatedAt}, nil
}

func checkpointFromModel(record checkpointModel) (bandit.Snapshot, error) {
	var snap bandit.Snapshot
	if err := json.Unmarshal(record.Snapshot, &snap); err != nil {
		return bandit.Snapshot{}, fmt.Errorf("failed to decode bandit checkpoint %s: %w", record.ID, err)
	}
	return snap, nil
}
