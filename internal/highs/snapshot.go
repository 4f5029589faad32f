package highs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SnapshotVersion tags the on-disk format. Other versions are ignored on load.
const SnapshotVersion = "2.0"

// Snapshot is the durable whole-file form of the store.
type Snapshot struct {
	Version   string            `json:"version"`
	Timestamp int64             `json:"timestamp"`
	Cache     map[string]Record `json:"cache"`
}

// rawSnapshot distinguishes missing keys from zero values.
type rawSnapshot struct {
	Version   *string           `json:"version"`
	Timestamp *int64            `json:"timestamp"`
	Cache     map[string]Record `json:"cache"`
}

func decodeSnapshot(data []byte) (Snapshot, error) {
	var raw rawSnapshot
	if err := json.Unmarshal(data, &raw); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if raw.Version == nil || *raw.Version != SnapshotVersion {
		return Snapshot{}, fmt.Errorf("unsupported snapshot version")
	}
	if raw.Timestamp == nil {
		return Snapshot{}, fmt.Errorf("snapshot missing timestamp")
	}
	if raw.Cache == nil {
		return Snapshot{}, fmt.Errorf("snapshot missing cache")
	}
	return Snapshot{Version: *raw.Version, Timestamp: *raw.Timestamp, Cache: raw.Cache}, nil
}

// writeFileAtomic writes data to a temp file in the target directory and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}
