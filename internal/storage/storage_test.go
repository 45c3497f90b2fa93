package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iot-automation-engine/config"
	"iot-automation-engine/internal/logger"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	log, err := logger.NewLogger(&config.LoggingConfig{
		Level:       "error",
		LogToStdout: true,
	})
	require.NoError(t, err)

	store, err := New(t.TempDir(), log)
	require.NoError(t, err)
	return store
}

func TestNew(t *testing.T) {
	t.Run("creates missing directory", func(t *testing.T) {
		log, err := logger.NewLogger(&config.LoggingConfig{Level: "error", LogToStdout: true})
		require.NoError(t, err)

		dir := filepath.Join(t.TempDir(), "nested", "state")
		_, err = New(dir, log)
		require.NoError(t, err)
		assert.DirExists(t, dir)
	})

	t.Run("rejects empty directory", func(t *testing.T) {
		log, err := logger.NewLogger(&config.LoggingConfig{Level: "error", LogToStdout: true})
		require.NoError(t, err)

		_, err = New("", log)
		assert.Error(t, err)
	})
}

func TestSaveLoad(t *testing.T) {
	store := setupTestStore(t)

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	require.NoError(t, store.Save("automations", payload{Name: "a", Count: 2}))

	var got payload
	require.NoError(t, store.Load("automations", &got))
	assert.Equal(t, payload{Name: "a", Count: 2}, got)

	// No temp file survives a completed write.
	_, err := os.Stat(store.path("automations") + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestSaveOverwrite(t *testing.T) {
	store := setupTestStore(t)

	require.NoError(t, store.Save("k", []int{1, 2, 3}))
	require.NoError(t, store.Save("k", []int{4}))

	var got []int
	require.NoError(t, store.Load("k", &got))
	assert.Equal(t, []int{4}, got)
}

func TestLoadMissingKey(t *testing.T) {
	store := setupTestStore(t)

	var got map[string]interface{}
	assert.ErrorIs(t, store.Load("missing", &got), ErrNotFound)
}

func TestLoadCorruptState(t *testing.T) {
	store := setupTestStore(t)
	require.NoError(t, os.WriteFile(store.path("bad"), []byte("{not json"), 0644))

	var got map[string]interface{}
	err := store.Load("bad", &got)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestRemove(t *testing.T) {
	store := setupTestStore(t)

	require.NoError(t, store.Save("k", "value"))
	require.NoError(t, store.Remove("k"))

	var got string
	assert.ErrorIs(t, store.Load("k", &got), ErrNotFound)

	// Removing an absent key is fine.
	assert.NoError(t, store.Remove("k"))
}
