package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

type fileEntry struct {
	Value     json.RawMessage `json:"value"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// FileStore keeps one JSON file per key under dir.
type FileStore struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("state dir is empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	return &FileStore{dir: dir, now: time.Now}, nil
}

var keyReplacer = strings.NewReplacer(":", "__", "/", "_", `\`, "_")

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, keyReplacer.Replace(key)+".json")
}

func (s *FileStore) GetJSON(_ context.Context, key string, dst any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.path(key)
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read state %s: %w", key, err)
	}

	var e fileEntry
	if err := json.Unmarshal(data, &e); err != nil {
		_ = os.Remove(p)
		return false, nil
	}
	if e.ExpiresAt != nil && !s.now().Before(*e.ExpiresAt) {
		_ = os.Remove(p)
		return false, nil
	}
	if !json.Valid(e.Value) {
		_ = os.Remove(p)
		return false, nil
	}
	if err := json.Unmarshal(e.Value, dst); err != nil {
		return false, fmt.Errorf("decode state %s: %w", key, err)
	}
	return true, nil
}

func (s *FileStore) SetJSON(_ context.Context, key string, val any, ttl time.Duration) error {
	b, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("marshal state %s: %w", key, err)
	}
	now := s.now().UTC()
	e := fileEntry{Value: b, UpdatedAt: now}
	if ttl > 0 {
		exp := now.Add(ttl)
		e.ExpiresAt = &exp
	}
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.path(key)
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write state %s: %w", key, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return fmt.Errorf("write state %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range keys {
		if err := os.Remove(s.path(k)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("delete state %s: %w", k, err)
		}
	}
	return nil
}

func (s *FileStore) Close() error { return nil }
