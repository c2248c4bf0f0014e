package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easeaico/persona-engine/internal/bandit"
	"github.com/easeaico/persona-engine/internal/dialogue"
	"github.com/easeaico/persona-engine/internal/stylecf"
)

func TestCheckpointModel(t *testing.T) {
	snap := bandit.Snapshot{
		Arms:      []bandit.NamedArm{{Name: "bm25_retrieve", ArmState: bandit.ArmState{Alpha: 3, Beta: 2, Selections: 4}}},
		Features:  []string{"mood"},
		UpdatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	record, err := checkpointToModel("global", snap)
	require.NoError(t, err)
	assert.Equal(t, "global", record.ID)
	assert.Equal(t, snap.UpdatedAt, record.UpdatedAt)

	got, err := checkpointFromModel(record)
	require.NoError(t, err)
	assert.Equal(t, snap.Arms, got.Arms)
	assert.Equal(t, snap.Features, got.Features)

	record.Snapshot = []byte("{broken")
	_, err = checkpointFromModel(record)
	assert.Error(t, err)
}

func TestDialogueModel(t *testing.T) {
	snap := dialogue.Snapshot{
		Persona: "elio",
		Mood:    "curious",
		Topic:   "space",
		History: []dialogue.Turn{{Message: "hi", Mood: "happy", Topic: "general"}},
	}
	record, err := dialogueToModel(snap)
	require.NoError(t, err)
	got, err := dialogueFromModel(record)
	require.NoError(t, err)
	assert.Equal(t, snap, got)

	empty, err := dialogueFromModel(dialogueStateModel{Persona: "olga", Mood: "neutral", Topic: "general"})
	require.NoError(t, err)
	assert.Empty(t, empty.History)
}

func TestStylePrefModels(t *testing.T) {
	store := stylecf.New()
	store.Update("u1", map[string]string{stylecf.DimTone: "warm"}, 1)
	snap := store.Snapshot()

	records, err := stylePrefsToModels(snap, time.Now())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, globalPrefsKey, records[0].UserID)

	got, err := stylePrefsFromModels(records)
	require.NoError(t, err)
	assert.Equal(t, snap.Global, got.Global)
	assert.Equal(t, snap.Users, got.Users)
}

func TestMigrateWithoutDB(t *testing.T) {
	var s *Store
	assert.Error(t, s.Migrate(t.Context()))
	s.Close()
}
