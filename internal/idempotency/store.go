// Package idempotency remembers which keys were already processed, and
// optionally the result each produced, with a per-key expiry.
package idempotency

import (
	"bytes"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/natefinch/atomic"
)

type Entry struct {
	Value  string `json:"value,omitempty"`
	Expiry int64  `json:"expiry"` // unix seconds
}

type ProcessedKeys struct {
	Keys map[string]Entry `json:"keys"`
}

type Store struct {
	path  string
	state ProcessedKeys
	mu    sync.RWMutex
}

func NewStore(path string) (*Store, error) {
	s := &Store{
		path: path,
		state: ProcessedKeys{
			Keys: make(map[string]Entry),
		},
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return s.save()
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, &s.state); err != nil {
		return err
	}
	if s.state.Keys == nil {
		s.state.Keys = make(map[string]Entry)
	}
	return nil
}

func (s *Store) save() error {
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(s.path, bytes.NewReader(data))
}

func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save()
}

// Remember stores value under key unless a live entry exists, in which case
// the stored value is returned with existed=true.
func (s *Store) Remember(key, value string, ttl time.Duration) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	if e, ok := s.state.Keys[key]; ok {
		if e.Expiry > now {
			return e.Value, true
		}
		delete(s.state.Keys, key)
	}

	s.state.Keys[key] = Entry{Value: value, Expiry: now + int64(ttl.Seconds())}
	return value, false
}

// Settle overwrites the value under key and restarts its expiry.
func (s *Store) Settle(key, value string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Keys[key] = Entry{Value: value, Expiry: time.Now().Unix() + int64(ttl.Seconds())}
}

// Recall returns the live value for key.
func (s *Store) Recall(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.state.Keys[key]
	if !ok || e.Expiry <= time.Now().Unix() {
		return "", false
	}
	return e.Value, true
}

// Forget drops key, e.g. after the guarded operation failed.
func (s *Store) Forget(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.state.Keys, key)
}

func (s *Store) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	count := 0
	for k, e := range s.state.Keys {
		if e.Expiry < now {
			delete(s.state.Keys, k)
			count++
		}
	}
	return count
}
