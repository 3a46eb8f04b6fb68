package feedback

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/medsift/pkg/store"
	"github.com/MrWong99/medsift/pkg/types"
)

var _ store.FeedbackStore = (*FileStore)(nil)

// FileStore persists feedback as append-only JSON lines in a local file. It
// suits single-instance deployments without Postgres. Safe for concurrent
// use within one process.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a FileStore writing to path. The file is created on
// first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// SaveFeedback implements [store.FeedbackStore].
func (s *FileStore) SaveFeedback(_ context.Context, rec types.FeedbackRecord) (types.FeedbackRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return types.FeedbackRecord{}, fmt.Errorf("feedback: marshal: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return types.FeedbackRecord{}, fmt.Errorf("feedback: open file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return types.FeedbackRecord{}, fmt.Errorf("feedback: write: %w", err)
	}
	return rec, nil
}

// ListFeedback implements [store.FeedbackStore]. A missing file is an empty
// log. Lines that fail to decode are skipped with a warning.
func (s *FileStore) ListFeedback(_ context.Context) ([]types.FeedbackRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("feedback: open file: %w", err)
	}
	defer f.Close()

	var out []types.FeedbackRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec types.FeedbackRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			slog.Warn("feedback: skipping malformed line", "path", s.path, "line", line, "err", err)
			continue
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("feedback: read: %w", err)
	}
	return out, nil
}
