package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "aprelay/pkg/logx"
)

// fileStore persists the memory model without external dependencies.
//
// Files:
//   - <prefix>.state.json     (snapshot, rewritten atomically on every change)
//   - <prefix>.activity.jsonl (append-only JSON Lines)
type fileStore struct {
	*memoryStore
	log logx.Logger

	statePath    string
	activityPath string
	activityFile *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	fs := &fileStore{
		memoryStore:  &memoryStore{},
		log:          log,
		statePath:    prefix + ".state.json",
		activityPath: prefix + ".activity.jsonl",
	}
	if err := loadState(fs.statePath, &fs.st); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	af, err := os.OpenFile(fs.activityPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	fs.activityFile = af
	fs.persist = fs.writeState
	fs.appendActivity = fs.writeActivity
	fs.pruneActivity = fs.rewriteActivity
	return fs, nil
}

func (s *fileStore) Close() error {
	_ = s.memoryStore.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activityFile == nil {
		return nil
	}
	err := s.activityFile.Close()
	s.activityFile = nil
	return err
}

func loadState(path string, out *state) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func (s *fileStore) writeState(st *state) error {
	tmp := s.statePath + ".tmp"
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.statePath)
}

func (s *fileStore) writeActivity(e ActivityEntry) error {
	if s.activityFile == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.activityFile).Encode(e)
}

func (s *fileStore) rewriteActivity(before time.Time) (int64, error) {
	f, err := os.Open(s.activityPath)
	if err != nil {
		return 0, err
	}
	var keep []ActivityEntry
	var pruned int64
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e ActivityEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		if e.At.Before(before) {
			pruned++
			continue
		}
		keep = append(keep, e)
	}
	_ = f.Close()
	if err := sc.Err(); err != nil {
		return 0, err
	}
	if pruned == 0 {
		return 0, nil
	}

	tmp := s.activityPath + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, err
	}
	enc := json.NewEncoder(out)
	for _, e := range keep {
		if err := enc.Encode(e); err != nil {
			_ = out.Close()
			return 0, err
		}
	}
	if err := out.Close(); err != nil {
		return 0, err
	}
	if s.activityFile != nil {
		_ = s.activityFile.Close()
	}
	if err := os.Rename(tmp, s.activityPath); err != nil {
		return 0, err
	}
	s.activityFile, err = os.OpenFile(s.activityPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		s.log.Warn("activity log reopen failed", logx.Err(err))
		return pruned, err
	}
	return pruned, nil
}
