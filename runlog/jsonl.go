// ABOUTME: Filesystem sink storing one JSONL event file per run plus an index.json of run metadata.
// ABOUTME: Events append to <dir>/<runID>/events.jsonl; the index enables run listing without scanning.
package runlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FSSink is a filesystem-backed Sink.
type FSSink struct {
	dir string
	mu  sync.Mutex
}

// Compile-time check that FSSink implements Sink.
var _ Sink = (*FSSink)(nil)

// NewFSSink creates the base directory if needed and returns a sink over it.
func NewFSSink(dir string) (*FSSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create runlog dir: %w", err)
	}
	return &FSSink{dir: dir}, nil
}

// fsIndex is the persisted shape of index.json.
type fsIndex struct {
	Runs map[string]RunInfo `json:"runs"`
}

func (s *FSSink) indexPath() string {
	return filepath.Join(s.dir, "index.json")
}

func (s *FSSink) loadIndex() (*fsIndex, error) {
	data, err := os.ReadFile(s.indexPath())
	if os.IsNotExist(err) {
		return &fsIndex{Runs: make(map[string]RunInfo)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read run index: %w", err)
	}
	var idx fsIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("parse run index: %w", err)
	}
	if idx.Runs == nil {
		idx.Runs = make(map[string]RunInfo)
	}
	return &idx, nil
}

func (s *FSSink) saveIndex(idx *fsIndex) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run index: %w", err)
	}
	tmp := s.indexPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write run index: %w", err)
	}
	return os.Rename(tmp, s.indexPath())
}

// Begin creates the run directory and records the run in the index.
func (s *FSSink) Begin(info RunInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Join(s.dir, info.ID), 0o755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}
	idx, err := s.loadIndex()
	if err != nil {
		return err
	}
	idx.Runs[info.ID] = info
	return s.saveIndex(idx)
}

// Append writes one record as a JSON line to the run's event file and bumps
// the run's event count in the index.
func (s *FSSink) Append(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, rec.RunID, "events.jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	idx, err := s.loadIndex()
	if err != nil {
		return err
	}
	info := idx.Runs[rec.RunID]
	info.ID = rec.RunID
	info.EventCount++
	idx.Runs[rec.RunID] = info
	return s.saveIndex(idx)
}

// Events loads all records for a run from its JSONL file in append order.
// A run with no events yet returns an empty slice.
func (s *FSSink) Events(runID string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, runID, "events.jsonl")
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return []Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("parse event line: %w", err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan event log: %w", err)
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// Runs lists all indexed runs, newest first.
func (s *FSSink) Runs() ([]RunInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	runs := make([]RunInfo, 0, len(idx.Runs))
	for _, info := range idx.Runs {
		runs = append(runs, info)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartTime.After(runs[j].StartTime)
	})
	return runs, nil
}

// Close is a no-op for the filesystem sink.
func (s *FSSink) Close() error {
	return nil
}
