package memory

import (
	"maps"
	"strconv"
	"strings"
	"sync"

	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

var _ driven.ConfigStore = (*ConfigStore)(nil)

// ConfigStore keeps settings in a map and counts writes, so tests can check
// what a settings change persisted. String values are coerced the way the
// file store coerces environment overrides.
type ConfigStore struct {
	mu     sync.RWMutex
	live   map[string]any
	writes int
}

// NewConfigStore returns a store holding the given initial values.
func NewConfigStore(initial ...map[string]any) *ConfigStore {
	s := &ConfigStore{live: make(map[string]any)}
	for _, m := range initial {
		maps.Copy(s.live, m)
	}
	return s
}

// Get returns the raw value for key.
func (s *ConfigStore) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.live[key]
	return v, ok
}

// GetString returns key as a string, or "" for missing and non-string values.
func (s *ConfigStore) GetString(key string) string {
	v, _ := s.Get(key)
	str, _ := v.(string)
	return str
}

// GetInt accepts integers, whole floats and numeric strings.
func (s *ConfigStore) GetInt(key string) int {
	f, ok := s.number(key)
	if !ok {
		return 0
	}
	return int(f)
}

// GetFloat accepts any numeric value or numeric string.
func (s *ConfigStore) GetFloat(key string) float64 {
	f, _ := s.number(key)
	return f
}

// GetBool accepts booleans and the strings strconv.ParseBool understands.
func (s *ConfigStore) GetBool(key string) bool {
	v, _ := s.Get(key)
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		return err == nil && parsed
	}
	return false
}

// GetStringSlice accepts string slices, []any of strings, and
// comma-separated strings.
func (s *ConfigStore) GetStringSlice(key string) []string {
	v, ok := s.Get(key)
	if !ok {
		return nil
	}
	var out []string
	switch items := v.(type) {
	case []string:
		return items
	case []any:
		for _, item := range items {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
	case string:
		for _, part := range strings.Split(items, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	default:
		return nil
	}
	return out
}

// Set stores value under key and counts as one write.
func (s *ConfigStore) Set(key string, value any) error {
	s.mu.Lock()
	s.live[key] = value
	s.writes++
	s.mu.Unlock()
	return nil
}

// Save counts as one write; values are already held.
func (s *ConfigStore) Save() error {
	s.mu.Lock()
	s.writes++
	s.mu.Unlock()
	return nil
}

// Load has nothing to read.
func (s *ConfigStore) Load() error { return nil }

// Writes reports how many Set and Save calls the store has seen.
func (s *ConfigStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// Snapshot returns a copy of every stored value.
func (s *ConfigStore) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.live)
}

// Path identifies the store in messages.
func (s *ConfigStore) Path() string {
	return ":memory:"
}

func (s *ConfigStore) number(key string) (float64, bool) {
	v, _ := s.Get(key)
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}
