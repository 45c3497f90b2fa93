package rule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"iot-automation-engine/internal/logger"
	"iot-automation-engine/internal/metrics"
)

// State keys for the durable local store. Both are removed entirely,
// not stored as empty, when their collection empties.
const (
	rulesStateKey  = "automations"
	eventsStateKey = "automation_events"
)

var (
	// ErrSavedLocalOnly marks a rule that was persisted locally after
	// the backend save failed. The rule is valid and active; the
	// caller should surface the warning.
	ErrSavedLocalOnly = errors.New("rule saved locally only")

	// ErrNotFound is returned when no rule matches the identifier.
	ErrNotFound = errors.New("rule not found")
)

// Backend persists rules remotely. *api.Client implements it.
type Backend interface {
	FetchRules(ctx context.Context) ([]Rule, error)
	SaveRule(ctx context.Context, r *Rule) (*Rule, error)
	DeleteRule(ctx context.Context, id string) error
}

// StateStore persists collections to durable local storage.
// *storage.Store implements it.
type StateStore interface {
	Save(key string, v interface{}) error
	Load(key string, v interface{}) error
	Remove(key string) error
}

// Store holds the authoritative in-memory rule set, reconciled from
// local persisted state and the backend. The backend is the system of
// record when reachable; local storage is the fallback of record when
// not. Every mutation mirrors the full set to local storage.
type Store struct {
	mu      sync.RWMutex
	rules   []*Rule
	byID    map[string]*Rule
	backend Backend
	state   StateStore
	logger  *logger.Logger
	metrics *metrics.Metrics
}

// NewStore creates an empty rule store. Metrics may be nil.
func NewStore(backend Backend, state StateStore, log *logger.Logger, m *metrics.Metrics) *Store {
	return &Store{
		byID:    make(map[string]*Rule),
		backend: backend,
		state:   state,
		logger:  log,
		metrics: m,
	}
}

// Load populates the store: locally persisted rules first, then
// backend rules, merged by identifier with the backend copy winning
// on conflict. A backend failure degrades to local-only state.
func (s *Store) Load(ctx context.Context) error {
	var local []Rule
	if err := s.state.Load(rulesStateKey, &local); err != nil {
		s.logger.Debug("no local rule state", "error", err)
	}

	remote, err := s.backend.FetchRules(ctx)
	if err != nil {
		s.logger.Warn("failed to fetch backend rules, using local state only",
			"error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.rules = s.rules[:0]
	s.byID = make(map[string]*Rule, len(local)+len(remote))
	for _, r := range local {
		s.insertLocked(r)
	}
	for _, r := range remote {
		s.insertLocked(r)
	}
	s.persistLocked()

	s.logger.Info("rules loaded",
		"local", len(local),
		"backend", len(remote),
		"merged", len(s.rules))

	return nil
}

// insertLocked adds a rule, overwriting in place when the identifier
// already exists so merge order stays stable (later writer wins).
func (s *Store) insertLocked(r Rule) {
	if existing, ok := s.byID[r.ID]; ok {
		*existing = r
		return
	}
	stored := r
	s.rules = append(s.rules, &stored)
	s.byID[r.ID] = &stored
}

// Create validates and stores a new rule. The backend is tried first;
// on backend success the canonical backend identifier is adopted. On
// backend failure the rule is kept under a locally generated
// identifier and ErrSavedLocalOnly is returned alongside the rule.
// Resubmitting after such a failure can duplicate the rule.
func (s *Store) Create(ctx context.Context, input Rule) (*Rule, error) {
	input.ID = ""
	input.LastTriggered = 0
	if err := Validate(&input); err != nil {
		return nil, err
	}

	var warn error
	saved, err := s.backend.SaveRule(ctx, &input)
	if err != nil {
		s.logger.Warn("backend save failed, keeping rule locally",
			"name", input.Name,
			"error", err)
		input.ID = uuid.NewString()
		saved = &input
		warn = fmt.Errorf("%w: %v", ErrSavedLocalOnly, err)
	} else if saved.ID == "" {
		saved.ID = uuid.NewString()
	}

	s.mu.Lock()
	s.insertLocked(*saved)
	s.persistLocked()
	s.mu.Unlock()

	result := *saved
	return &result, warn
}

// Update validates and replaces the stored rule matching id. The
// rule's trigger bookkeeping survives the edit.
func (s *Store) Update(ctx context.Context, id string, input Rule) (*Rule, error) {
	input.ID = id
	if err := Validate(&input); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}

	input.LastTriggered = existing.LastTriggered
	*existing = input
	s.persistLocked()

	result := *existing
	return &result, nil
}

// Delete removes a rule. The backend delete is best-effort: a failure
// is logged and local deletion proceeds regardless.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.backend.DeleteRule(ctx, id); err != nil {
		s.logger.Error("backend delete failed, removing locally anyway",
			"id", id,
			"error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return nil
	}
	delete(s.byID, id)
	for i, r := range s.rules {
		if r.ID == id {
			s.rules = append(s.rules[:i], s.rules[i+1:]...)
			break
		}
	}
	s.persistLocked()
	return nil
}

// SetEnabled toggles a rule. Always succeeds locally when the rule
// exists.
func (s *Store) SetEnabled(id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	r.Enabled = enabled
	s.persistLocked()
	return nil
}

// ApplyTriggered records a batch of lastTriggered updates collected
// by the evaluator, with a single persistence write.
func (s *Store) ApplyTriggered(updates map[string]int64) {
	if len(updates) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for id, ts := range updates {
		if r, ok := s.byID[id]; ok {
			r.LastTriggered = ts
			changed = true
		}
	}
	if changed {
		s.persistLocked()
	}
}

// Get returns a copy of the rule matching id.
func (s *Store) Get(id string) (Rule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.byID[id]
	if !ok {
		return Rule{}, false
	}
	return *r, true
}

// List returns a copy of all rules in store order.
func (s *Store) List() []Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Rule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, *r)
	}
	return out
}

// TargetDevices returns the distinct device identifiers referenced by
// enabled rules, sorted for deterministic polling order.
func (s *Store) TargetDevices() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, r := range s.rules {
		if r.Enabled && r.EspID != "" {
			seen[r.EspID] = struct{}{}
		}
	}

	devices := make([]string, 0, len(seen))
	for id := range seen {
		devices = append(devices, id)
	}
	sort.Strings(devices)
	return devices
}

// RulesForDevice returns copies of the enabled rules targeting a
// device.
func (s *Store) RulesForDevice(espID string) []Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Rule
	for _, r := range s.rules {
		if r.Enabled && r.EspID == espID {
			out = append(out, *r)
		}
	}
	return out
}

// persistLocked mirrors the full rule set to local storage. An empty
// set removes the persisted key instead of writing an empty list.
func (s *Store) persistLocked() {
	if s.metrics != nil {
		s.metrics.SetRulesActive(float64(len(s.rules)))
	}

	if len(s.rules) == 0 {
		if err := s.state.Remove(rulesStateKey); err != nil {
			s.logger.Error("failed to remove rule state", "error", err)
		}
		return
	}

	out := make([]Rule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, *r)
	}
	if err := s.state.Save(rulesStateKey, out); err != nil {
		s.logger.Error("failed to persist rules", "error", err)
	}
}
