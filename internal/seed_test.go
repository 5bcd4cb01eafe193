package internal

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"model-arena/internal/arena"
)

func TestSeed(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := arena.NewMemoryStore()
	o := arena.New(store, nil)

	n, err := Seed(context.Background(), o, log)
	require.NoError(t, err)
	assert.Equal(t, len(defaultPersonas), n)

	ps, _ := store.ListPersonas(context.Background())
	require.Len(t, ps, len(defaultPersonas))
	for _, p := range ps {
		assert.Equal(t, arena.DefaultRating, p.Rating)
	}

	n, err = Seed(context.Background(), o, log)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSeedSkipsExistingNames(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := arena.NewMemoryStore(arena.Persona{ID: "p1", Name: "The Pirate", Description: "arr", Rating: 1300})
	o := arena.New(store, nil)

	n, err := Seed(context.Background(), o, log)
	require.NoError(t, err)
	assert.Equal(t, len(defaultPersonas)-1, n)

	p, ok := store.Persona("p1")
	require.True(t, ok)
	assert.Equal(t, 1300, p.Rating)
}
