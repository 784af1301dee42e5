// Package cursor persists per-tenant poll progress across process restarts.
// Each tenant gets one small JSON file written atomically (temp file +
// rename), so a crashed write leaves the previous good state readable.
package cursor

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Position is the compound (updatedAt, id) mark inside a tenant's stream.
type Position struct {
	UpdatedAt time.Time `json:"lastSeenUpdatedAt"`
	ID        int64     `json:"lastSeenId"`
}

// Before reports whether p sorts strictly before other under the
// (updatedAt, id) lexicographic order.
func (p Position) Before(other Position) bool {
	if p.UpdatedAt.Before(other.UpdatedAt) {
		return true
	}
	return p.UpdatedAt.Equal(other.UpdatedAt) && p.ID < other.ID
}

// Cursor is the durable per-tenant record.
type Cursor struct {
	TenantID string    `json:"tenantId"`
	Position Position  `json:"position"`
	SavedAt  time.Time `json:"savedAt"`
}

// Store reads and writes tenant cursors under one directory. Cursors found
// older than the staleness threshold are discarded on read (drift
// correction); the poller then restarts from its configured lower bound.
type Store struct {
	dir       string
	staleness time.Duration
	now       func() time.Time
	mu        sync.Mutex
}

// NewStore creates the cursor directory if needed.
func NewStore(dir string, staleness time.Duration) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir, staleness: staleness, now: time.Now}, nil
}

// Load returns the tenant's cursor. ok is false when no usable cursor
// exists: never saved, unreadable, or stale.
func (s *Store) Load(tenantID string) (Cursor, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(tenantID))
	if errors.Is(err, fs.ErrNotExist) {
		return Cursor{}, false, nil
	}
	if err != nil {
		return Cursor{}, false, err
	}

	var cur Cursor
	if err := json.Unmarshal(data, &cur); err != nil {
		// A torn or corrupted file counts as no cursor; atomic renames
		// make this rare.
		return Cursor{}, false, nil
	}

	if s.staleness > 0 && s.now().Sub(cur.SavedAt) > s.staleness {
		// Self-heal: a cursor this old points at history the source may
		// have compacted away. Discard and let the poller rebuild.
		_ = os.Remove(s.path(tenantID))
		return Cursor{}, false, nil
	}

	return cur, true, nil
}

// Save durably records the tenant's cursor via temp file + rename.
func (s *Store) Save(tenantID string, pos Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := Cursor{TenantID: tenantID, Position: pos, SavedAt: s.now().UTC()}
	data, err := json.MarshalIndent(cur, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, "cursor-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	return os.Rename(tmpName, s.path(tenantID))
}

// Reset discards the tenant's cursor. Used by operator resync tooling.
func (s *Store) Reset(tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(tenantID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// List returns every stored cursor, for observability.
func (s *Store) List() ([]Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	cursors := make([]Cursor, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		var cur Cursor
		if err := json.Unmarshal(data, &cur); err != nil {
			continue
		}
		cursors = append(cursors, cur)
	}
	return cursors, nil
}

func (s *Store) path(tenantID string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s.json", sanitize(tenantID)))
}

// sanitize keeps tenant ids filesystem-safe.
func sanitize(tenantID string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, tenantID)
}
