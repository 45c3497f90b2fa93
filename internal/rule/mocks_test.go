package rule

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"iot-automation-engine/config"
	"iot-automation-engine/internal/logger"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(&config.LoggingConfig{
		Level:       "error",
		LogToStdout: true,
	})
	require.NoError(t, err)
	return log
}

// fakeBackend is a scriptable Backend implementation.
type fakeBackend struct {
	rules     []Rule
	fetchErr  error
	saveErr   error
	deleteErr error

	savedRules []Rule
	deletedIDs []string
	nextID     string
}

func (b *fakeBackend) FetchRules(ctx context.Context) ([]Rule, error) {
	if b.fetchErr != nil {
		return nil, b.fetchErr
	}
	return b.rules, nil
}

func (b *fakeBackend) SaveRule(ctx context.Context, r *Rule) (*Rule, error) {
	if b.saveErr != nil {
		return nil, b.saveErr
	}
	saved := *r
	saved.ID = b.nextID
	if saved.ID == "" {
		saved.ID = "backend-id"
	}
	b.savedRules = append(b.savedRules, saved)
	return &saved, nil
}

func (b *fakeBackend) DeleteRule(ctx context.Context, id string) error {
	b.deletedIDs = append(b.deletedIDs, id)
	return b.deleteErr
}

// memState is an in-memory StateStore.
type memState struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemState() *memState {
	return &memState{data: make(map[string][]byte)}
}

func (s *memState) Save(key string, v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.data[key] = data
	return nil
}

func (s *memState) Load(key string, v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.data[key]
	if !ok {
		return errors.New("not found")
	}
	return json.Unmarshal(data, v)
}

func (s *memState) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *memState) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[key]
	return ok
}

func floatPtr(v float64) *float64 {
	return &v
}
