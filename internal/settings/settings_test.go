package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmorozov/tabreaper/internal/store"
	"github.com/kmorozov/tabreaper/pkg/models"
)

func TestLoadDefaultsWhenNeverSaved(t *testing.T) {
	t.Parallel()

	s := NewStore(store.NewMemStore())

	cfg, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, models.DefaultMinutes, cfg.Minutes)
	assert.Empty(t, cfg.Whitelist)
	assert.NotNil(t, cfg.Whitelist)
}

func TestSaveAndLoad(t *testing.T) {
	t.Parallel()

	s := NewStore(store.NewMemStore())

	require.NoError(t, s.Save(models.Settings{Minutes: 30, Whitelist: []string{"Example.COM"}}))

	cfg, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Minutes)
	assert.Equal(t, []string{"example.com"}, cfg.Whitelist)
}

func TestSaveLeavesCallerSliceAlone(t *testing.T) {
	t.Parallel()

	s := NewStore(store.NewMemStore())

	input := []string{"  Example.COM  "}
	require.NoError(t, s.Save(models.Settings{Minutes: 30, Whitelist: input}))
	assert.Equal(t, []string{"  Example.COM  "}, input)

	cfg, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com"}, cfg.Whitelist)
}

func TestSaveRejectsNonPositiveMinutes(t *testing.T) {
	t.Parallel()

	s := NewStore(store.NewMemStore())

	assert.ErrorIs(t, s.Save(models.Settings{Minutes: 0}), ErrInvalidMinutes)
	assert.ErrorIs(t, s.Save(models.Settings{Minutes: -5}), ErrInvalidMinutes)
}

func TestAddToWhitelistIsIdempotent(t *testing.T) {
	t.Parallel()

	s := NewStore(store.NewMemStore())

	cfg, err := s.AddToWhitelist("example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com"}, cfg.Whitelist)

	cfg, err = s.AddToWhitelist("EXAMPLE.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com"}, cfg.Whitelist)
}

func TestAddToWhitelistRejectsEmptyDomain(t *testing.T) {
	t.Parallel()

	s := NewStore(store.NewMemStore())

	_, err := s.AddToWhitelist("   ")
	assert.ErrorIs(t, err, ErrInvalidDomain)
}

func TestRemoveFromWhitelist(t *testing.T) {
	t.Parallel()

	s := NewStore(store.NewMemStore())

	_, err := s.AddToWhitelist("example.com")
	require.NoError(t, err)
	_, err = s.AddToWhitelist("other.com")
	require.NoError(t, err)

	cfg, err := s.RemoveFromWhitelist("example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"other.com"}, cfg.Whitelist)

	// Removing an absent domain is a no-op.
	cfg, err = s.RemoveFromWhitelist("example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"other.com"}, cfg.Whitelist)
}
