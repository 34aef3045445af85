package memory

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// BackupRecord is one line of the backup log.
type BackupRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
}

// BackupLog persists turns as JSON lines. A corrupted or partially written
// file is recovered by rewriting the decodable prefix instead of failing.
type BackupLog struct {
	mu   sync.Mutex
	path string
}

// OpenBackupLog creates (or recovers) a backup log at path.
func OpenBackupLog(path string) (*BackupLog, error) {
	b := &BackupLog{path: path}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if _, err := b.Replay(); err != nil {
		return nil, err
	}
	return b, nil
}

// Append writes one record.
func (b *BackupLog) Append(rec BackupRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	file, err := os.OpenFile(b.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()
	return json.NewEncoder(file).Encode(rec)
}

// Replay returns all decodable records in write order. On the first
// malformed line the log is truncated back to the valid prefix so later
// appends continue from a consistent state.
func (b *BackupLog) Replay() ([]BackupRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	file, err := os.Open(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var records []BackupRecord
	corrupt := false
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec BackupRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			corrupt = true
			break
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		corrupt = true
	}
	file.Close()

	if corrupt {
		slog.Warn("backup log corrupted, reinitializing", "path", b.path, "recovered", len(records))
		if err := b.rewrite(records); err != nil {
			return records, err
		}
	}
	return records, nil
}

// Reset truncates the log.
func (b *BackupLog) Reset() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rewrite(nil)
}

func (b *BackupLog) rewrite(records []BackupRecord) error {
	file, err := os.OpenFile(b.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()
	enc := json.NewEncoder(file)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}
