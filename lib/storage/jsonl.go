package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ftchann/vault-simulator/lib/result"
)

// JsonlStorage appends run records as JSON lines under a directory, one
// file per record kind.
type JsonlStorage struct {
	dir string
	mu  sync.Mutex
}

func NewJsonlStorage(dir string) *JsonlStorage {
	return &JsonlStorage{dir: dir}
}

type snapshotLine struct {
	RunID string `json:"run_id"`
	Seq   int    `json:"seq"`
	result.Snapshot
}

type rebalanceLine struct {
	RunID string `json:"run_id"`
	Seq   int    `json:"seq"`
	result.Rebalance
}

type runLine struct {
	RunID string `json:"run_id"`
	result.RunResult
}

func (s *JsonlStorage) PutSnapshots(_ context.Context, runID string, snapshots []result.Snapshot) error {
	lines := make([]any, 0, len(snapshots))
	for i, snapshot := range snapshots {
		lines = append(lines, snapshotLine{RunID: runID, Seq: i, Snapshot: snapshot})
	}
	return s.appendLines("snapshots.jsonl", lines)
}

func (s *JsonlStorage) PutRebalances(_ context.Context, runID string, rebalances []result.Rebalance) error {
	lines := make([]any, 0, len(rebalances))
	for i, rebalance := range rebalances {
		lines = append(lines, rebalanceLine{RunID: runID, Seq: i, Rebalance: rebalance})
	}
	return s.appendLines("rebalances.jsonl", lines)
}

func (s *JsonlStorage) PutRun(_ context.Context, runID string, run result.RunResult) error {
	return s.appendLines("runs.jsonl", []any{runLine{RunID: runID, RunResult: run}})
}

func (s *JsonlStorage) appendLines(name string, lines []any) error {
	if len(lines) == 0 {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(filepath.Join(s.dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, line := range lines {
		raw, err := json.Marshal(line)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if _, err := writer.Write(raw); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}

	return nil
}
