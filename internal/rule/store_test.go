package rule

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T, backend *fakeBackend) (*Store, *memState) {
	t.Helper()
	state := newMemState()
	store := NewStore(backend, state, newTestLogger(t), nil)
	return store, state
}

func alertRule(id, espID string) Rule {
	return Rule{
		ID:        id,
		Name:      "rule " + id,
		Enabled:   true,
		Type:      TypeAlert,
		EspID:     espID,
		MetricKey: "temperatura",
		Operator:  ">",
		Threshold: floatPtr(30),
	}
}

func TestStoreLoadMergesByID(t *testing.T) {
	backend := &fakeBackend{rules: []Rule{
		func() Rule { r := alertRule("a", "esp-1"); r.Name = "backend a"; return r }(),
		alertRule("c", "esp-3"),
	}}
	store, _ := setupTestStore(t, backend)

	local := []Rule{
		func() Rule { r := alertRule("a", "esp-1"); r.Name = "local a"; return r }(),
		alertRule("b", "esp-2"),
	}
	require.NoError(t, store.state.Save("automations", local))

	require.NoError(t, store.Load(context.Background()))

	rules := store.List()
	require.Len(t, rules, 3)
	// Local insertion order is kept; the backend copy wins on conflict.
	assert.Equal(t, "a", rules[0].ID)
	assert.Equal(t, "backend a", rules[0].Name)
	assert.Equal(t, "b", rules[1].ID)
	assert.Equal(t, "c", rules[2].ID)
}

func TestStoreLoadBackendFailure(t *testing.T) {
	backend := &fakeBackend{fetchErr: errors.New("connection refused")}
	store, state := setupTestStore(t, backend)

	require.NoError(t, state.Save("automations", []Rule{alertRule("a", "esp-1")}))

	// Backend unreachability is non-fatal; local state carries.
	require.NoError(t, store.Load(context.Background()))
	assert.Len(t, store.List(), 1)
}

func TestStoreCreate(t *testing.T) {
	t.Run("backend success adopts canonical id", func(t *testing.T) {
		backend := &fakeBackend{nextID: "backend-42"}
		store, state := setupTestStore(t, backend)

		input := alertRule("", "esp-1")
		created, err := store.Create(context.Background(), input)
		require.NoError(t, err)
		assert.Equal(t, "backend-42", created.ID)

		stored, ok := store.Get("backend-42")
		require.True(t, ok)
		assert.Equal(t, input.Name, stored.Name)
		assert.True(t, state.has("automations"))
	})

	t.Run("backend failure saves locally with warning", func(t *testing.T) {
		backend := &fakeBackend{saveErr: errors.New("timeout")}
		store, state := setupTestStore(t, backend)

		created, err := store.Create(context.Background(), alertRule("", "esp-1"))
		require.ErrorIs(t, err, ErrSavedLocalOnly)
		require.NotNil(t, created)
		assert.NotEmpty(t, created.ID)

		_, ok := store.Get(created.ID)
		assert.True(t, ok)
		assert.True(t, state.has("automations"))
	})

	t.Run("validation failure performs no mutation", func(t *testing.T) {
		backend := &fakeBackend{}
		store, state := setupTestStore(t, backend)

		input := alertRule("", "esp-1")
		input.MetricKey = ""
		_, err := store.Create(context.Background(), input)

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "metricKey", verr.Field)
		assert.Empty(t, store.List())
		assert.Empty(t, backend.savedRules)
		assert.False(t, state.has("automations"))
	})
}

func TestStoreUpdate(t *testing.T) {
	backend := &fakeBackend{nextID: "r1"}
	store, _ := setupTestStore(t, backend)

	created, err := store.Create(context.Background(), alertRule("", "esp-1"))
	require.NoError(t, err)
	store.ApplyTriggered(map[string]int64{created.ID: 1700000000000})

	edited := alertRule(created.ID, "esp-2")
	edited.Name = "edited"
	updated, err := store.Update(context.Background(), created.ID, edited)
	require.NoError(t, err)

	assert.Equal(t, "edited", updated.Name)
	assert.Equal(t, "esp-2", updated.EspID)
	// Trigger bookkeeping survives an edit.
	assert.Equal(t, int64(1700000000000), updated.LastTriggered)

	_, err = store.Update(context.Background(), "missing", edited)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreDelete(t *testing.T) {
	t.Run("removes locally even when backend delete fails", func(t *testing.T) {
		backend := &fakeBackend{nextID: "r1", deleteErr: errors.New("network error")}
		store, state := setupTestStore(t, backend)

		created, err := store.Create(context.Background(), alertRule("", "esp-1"))
		require.NoError(t, err)

		require.NoError(t, store.Delete(context.Background(), created.ID))
		_, ok := store.Get(created.ID)
		assert.False(t, ok)
		assert.Equal(t, []string{created.ID}, backend.deletedIDs)

		// Empty collection removes the persisted key entirely.
		assert.False(t, state.has("automations"))
	})

	t.Run("deleting an absent rule is a no-op", func(t *testing.T) {
		store, _ := setupTestStore(t, &fakeBackend{})
		assert.NoError(t, store.Delete(context.Background(), "missing"))
	})
}

func TestStoreSetEnabled(t *testing.T) {
	backend := &fakeBackend{nextID: "r1"}
	store, _ := setupTestStore(t, backend)

	created, err := store.Create(context.Background(), alertRule("", "esp-1"))
	require.NoError(t, err)

	require.NoError(t, store.SetEnabled(created.ID, false))
	stored, _ := store.Get(created.ID)
	assert.False(t, stored.Enabled)

	assert.ErrorIs(t, store.SetEnabled("missing", true), ErrNotFound)
}

func TestStoreTargetDevices(t *testing.T) {
	backend := &fakeBackend{rules: []Rule{
		alertRule("a", "esp-2"),
		alertRule("b", "esp-1"),
		alertRule("c", "esp-2"), // duplicate device
		func() Rule { r := alertRule("d", "esp-3"); r.Enabled = false; return r }(),
		alertRule("e", ""), // no target
	}}
	store, _ := setupTestStore(t, backend)
	require.NoError(t, store.Load(context.Background()))

	assert.Equal(t, []string{"esp-1", "esp-2"}, store.TargetDevices())

	forDevice := store.RulesForDevice("esp-2")
	require.Len(t, forDevice, 2)
	assert.Equal(t, "a", forDevice[0].ID)
	assert.Equal(t, "c", forDevice[1].ID)
}

func TestStoreApplyTriggered(t *testing.T) {
	backend := &fakeBackend{rules: []Rule{alertRule("a", "esp-1"), alertRule("b", "esp-2")}}
	store, _ := setupTestStore(t, backend)
	require.NoError(t, store.Load(context.Background()))

	store.ApplyTriggered(map[string]int64{
		"a":       1700000000000,
		"missing": 42,
	})

	a, _ := store.Get("a")
	assert.Equal(t, int64(1700000000000), a.LastTriggered)
	b, _ := store.Get("b")
	assert.Zero(t, b.LastTriggered)
}
