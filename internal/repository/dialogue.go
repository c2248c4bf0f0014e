package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/easeaico/persona-engine/internal/dialogue"
)

type dialogueStateModel struct {
	Persona   string `gorm:"primaryKey"`
	Mood      string
	Topic     string
	History   json.RawMessage `gorm:"type:jsonb"`
	UpdatedAt time.Time
}

func (dialogueStateModel) TableName() string {
	return "dialogue_states"
}

// DialogueRepo stores per-persona dialogue trackers. It implements
// dialogue.StateRepo.
type DialogueRepo struct {
	db *gorm.DB
}

// NewDialogueRepo returns a DialogueRepo.
func NewDialogueRepo(db *gorm.DB) *DialogueRepo {
	return &DialogueRepo{db: db}
}

// SaveDialogueStates replaces the stored set with states.
func (r *DialogueRepo) SaveDialogueStates(ctx context.Context, states []dialogue.Snapshot) error {
	records := make([]dialogueStateModel, 0, len(states))
	now := time.Now().UTC()
	for _, s := range states {
		record, err := dialogueToModel(s)
		if err != nil {
			return err
		}
		record.UpdatedAt = now
		records = append(records, record)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&dialogueStateModel{}).Error; err != nil {
			return fmt.Errorf("failed to clear dialogue states: %w", err)
		}
		if len(records) == 0 {
			return nil
		}
		if err := tx.Create(&records).Error; err != nil {
			return fmt.Errorf("failed to insert dialogue states: %w", err)
		}
		return nil
	})
	return err
}

func (r *DialogueRepo) LoadDialogueStates(ctx context.Context) ([]dialogue.Snapshot, error) {
	var records []dialogueStateModel
	if err := r.db.WithContext(ctx).Order("updated_at ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query dialogue states: %w", err)
	}
	out := make([]dialogue.Snapshot, 0, len(records))
	for _, record := range records {
		snap, err := dialogueFromModel(record)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

func dialogueToModel(s dialogue.Snapshot) (dialogueStateModel, error) {
	history, err := marshalJSON(s.History)
	if err != nil {
		return dialogueStateModel{}, fmt.Errorf("failed to encode dialogue history: %w", err)
	}
	return dialogueStateModel{Persona: s.Persona, Mood: s.Mood, Topic: s.Topic, History: history}, nil
}

func dialogueFromModel(record dialogueStateModel) (dialogue.Snapshot, error) {
	snap := dialogue.Snapshot{Persona: record.Persona, Mood: record.Mood, Topic: record.Topic}
	if len(record.History) > 0 {
		if err := json.Unmarshal(record.History, &snap.History); err != nil {
			return dialogue.Snapshot{}, fmt.Errorf("failed to decode dialogue history for %s: %w", record.Persona, err)
		}
	}
	return snap, nil
}

func marshalJSON(value any) (json.RawMessage, error) {
	if value == nil {
		return nil, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return raw, nil
}
