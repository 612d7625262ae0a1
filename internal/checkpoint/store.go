package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"signal-trader/internal/logger"
	"signal-trader/internal/types"
)

// Store persists in-flight trade records as JSON files, one per job,
// keyed by job ID. A checkpoint written before and after every state
// transition lets a restarted process resume the trade exactly where it
// stopped.
type Store struct {
	dir string
}

// NewStore creates a checkpoint store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Save writes the record's checkpoint, replacing any previous one for
// the same job.
func (s *Store) Save(rec *types.TradeRecord) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create checkpoint dir: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	if err := os.WriteFile(s.path(rec), data, 0o644); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

// LoadAll reads every checkpoint in the store, sorted by job ID so
// recovery order is deterministic. Unreadable files are skipped with a
// warning rather than failing the whole recovery.
func (s *Store) LoadAll() ([]*types.TradeRecord, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint dir: %w", err)
	}

	var recs []*types.TradeRecord
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn(context.Background(), "Skipping unreadable checkpoint", "path", path, "error", err)
			continue
		}
		var rec types.TradeRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			logger.Warn(context.Background(), "Skipping corrupt checkpoint", "path", path, "error", err)
			continue
		}
		recs = append(recs, &rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].JobID < recs[j].JobID })
	return recs, nil
}

// Delete removes the record's checkpoint. Deleting a missing checkpoint
// is not an error.
func (s *Store) Delete(rec *types.TradeRecord) error {
	err := os.Remove(s.path(rec))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove checkpoint: %w", err)
	}
	return nil
}

func (s *Store) path(rec *types.TradeRecord) string {
	return filepath.Join(s.dir, sanitize(rec.JobID)+".json")
}

func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}
