package state

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/smallbiznis/pipelineintel/internal/clock"
	"github.com/smallbiznis/pipelineintel/internal/importer/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleState() *domain.State {
	return &domain.State{
		ID:        "3f1c6a52-5b7e-4a53-9bb1-6f1b2f0e7c11",
		CreatedAt: time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC),
		Entries: []domain.Entry{{
			Index:      0,
			Entity:     domain.EntityModalities,
			Status:     domain.StatusNew,
			Action:     domain.ActionAdd,
			Identifier: "Small Molecule",
			Input: map[string]any{
				"modality_name": "Small Molecule",
				"modality_id":   json.Number("1835204753457860608"),
			},
		}},
	}
}

func TestCodecKeepsLargeIDs(t *testing.T) {
	data, err := encode(sampleState())
	require.NoError(t, err)

	out, err := decode(data)
	require.NoError(t, err)
	assert.Equal(t, json.Number("1835204753457860608"), out.Entries[0].Input["modality_id"])
	assert.Equal(t, "Small Molecule", out.Entries[0].Identifier)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := decode([]byte("not snappy"))
	assert.Error(t, err)
}

func TestMemoryStoreExpires(t *testing.T) {
	ctx := context.Background()
	fake := clock.NewFakeClock(time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC))
	store := NewMemoryStore(fake)

	require.NoError(t, store.Save(ctx, sampleState(), time.Hour))

	loaded, err := store.Load(ctx, sampleState().ID)
	require.NoError(t, err)
	assert.Len(t, loaded.Entries, 1)

	fake.Advance(time.Hour)
	_, err = store.Load(ctx, sampleState().ID)
	assert.ErrorIs(t, err, domain.ErrStateNotFound)
}

func TestMemoryStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	require.NoError(t, store.Save(ctx, sampleState(), time.Hour))
	require.NoError(t, store.Delete(ctx, sampleState().ID))

	_, err := store.Load(ctx, sampleState().ID)
	assert.ErrorIs(t, err, domain.ErrStateNotFound)
}

func TestMemoryStoreLock(t *testing.T) {
	ctx := context.Background()
	fake := clock.NewFakeClock(time.Now())
	store := NewMemoryStore(fake)

	release, err := store.Lock(ctx, "s1", time.Minute)
	require.NoError(t, err)

	_, err = store.Lock(ctx, "s1", time.Minute)
	assert.ErrorIs(t, err, domain.ErrStateLocked)

	release()
	release()

	again, err := store.Lock(ctx, "s1", time.Minute)
	require.NoError(t, err)
	defer again()

	fake.Advance(2 * time.Minute)
	stale, err := store.Lock(ctx, "s1", time.Minute)
	require.NoError(t, err)
	stale()
}

func TestMemoryStoreSweep(t *testing.T) {
	ctx := context.Background()
	fc := clock.NewFakeClock(time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC))
	store := NewMemoryStore(fc)

	fresh := sampleState()
	fresh.ID = "fresh"
	require.NoError(t, store.Save(ctx, sampleState(), time.Minute))
	require.NoError(t, store.Save(ctx, fresh, time.Hour))
	_, err := store.Lock(ctx, "held", time.Minute)
	require.NoError(t, err)

	fc.Advance(2 * time.Minute)
	removed, err := store.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.Load(ctx, "fresh")
	require.NoError(t, err)

	// the stale lock is gone, so it can be claimed again
	release, err := store.Lock(ctx, "held", time.Minute)
	require.NoError(t, err)
	release()
}
