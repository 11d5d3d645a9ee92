package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ftchann/vault-simulator/lib/result"
)

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer file.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := map[string]any{}
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("unmarshal %s: %v", path, err)
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan %s: %v", path, err)
	}
	return lines
}

func TestJsonlWritesAllKinds(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	s := NewJsonlStorage(dir)
	ctx := context.Background()

	snapshots := []result.Snapshot{
		{Timestamp: 1600000000, Tick: 10, Amount0: "1000", Amount1: "2000", Value: "3000", Price: "79228162514264337593543950336", TotalSupply: "500"},
		{Timestamp: 1600003600, Tick: 12, Amount0: "1001", Amount1: "1999", Value: "3001", Price: "79228162514264337593543950336", TotalSupply: "500"},
	}
	if err := s.PutSnapshots(ctx, "test-1", snapshots); err != nil {
		t.Fatalf("put snapshots: %v", err)
	}

	rebalances := []result.Rebalance{
		{Timestamp: 1600000000, Tick: 10, BaseLower: -3600, BaseUpper: 3660, LimitLower: -1200, LimitUpper: 0},
	}
	if err := s.PutRebalances(ctx, "test-1", rebalances); err != nil {
		t.Fatalf("put rebalances: %v", err)
	}

	run := result.RunResult{
		BaseThreshold:  3600,
		LimitThreshold: 1200,
		EndAmount:      "123456",
		EndSupply:      "500",
		ProtocolFees0:  "7",
		ProtocolFees1:  "8",
		Rebalances:     1,
		VarianceHourly: "42",
		VarianceDaily:  "0",
	}
	if err := s.PutRun(ctx, "test-1", run); err != nil {
		t.Fatalf("put run: %v", err)
	}

	lines := readLines(t, filepath.Join(dir, "snapshots.jsonl"))
	if len(lines) != 2 {
		t.Fatalf("want=2 result=%d", len(lines))
	}
	if lines[0]["run_id"] != "test-1" {
		t.Fatalf("want=test-1 result=%v", lines[0]["run_id"])
	}
	if lines[0]["seq"] != float64(0) || lines[1]["seq"] != float64(1) {
		t.Fatalf("want=0,1 result=%v,%v", lines[0]["seq"], lines[1]["seq"])
	}
	if lines[0]["timestamp"] != float64(1600000000) {
		t.Fatalf("want=1600000000 result=%v", lines[0]["timestamp"])
	}
	if lines[1]["amount0"] != "1001" {
		t.Fatalf("want=1001 result=%v", lines[1]["amount0"])
	}
	if lines[0]["totalSupply"] != "500" {
		t.Fatalf("want=500 result=%v", lines[0]["totalSupply"])
	}

	lines = readLines(t, filepath.Join(dir, "rebalances.jsonl"))
	if len(lines) != 1 {
		t.Fatalf("want=1 result=%d", len(lines))
	}
	if lines[0]["baseLower"] != float64(-3600) || lines[0]["limitUpper"] != float64(0) {
		t.Fatalf("want=-3600,0 result=%v,%v", lines[0]["baseLower"], lines[0]["limitUpper"])
	}

	lines = readLines(t, filepath.Join(dir, "runs.jsonl"))
	if len(lines) != 1 {
		t.Fatalf("want=1 result=%d", len(lines))
	}
	if lines[0]["run_id"] != "test-1" {
		t.Fatalf("want=test-1 result=%v", lines[0]["run_id"])
	}
	if lines[0]["end_amount"] != "123456" {
		t.Fatalf("want=123456 result=%v", lines[0]["end_amount"])
	}
	if lines[0]["variance_hourly"] != "42" {
		t.Fatalf("want=42 result=%v", lines[0]["variance_hourly"])
	}
}

func TestJsonlAppends(t *testing.T) {
	dir := t.TempDir()
	s := NewJsonlStorage(dir)
	ctx := context.Background()

	run := result.RunResult{EndAmount: "1", EndSupply: "1", ProtocolFees0: "0", ProtocolFees1: "0", VarianceHourly: "0", VarianceDaily: "0"}
	if err := s.PutRun(ctx, "first", run); err != nil {
		t.Fatalf("put run: %v", err)
	}
	if err := s.PutRun(ctx, "second", run); err != nil {
		t.Fatalf("put run: %v", err)
	}

	lines := readLines(t, filepath.Join(dir, "runs.jsonl"))
	if len(lines) != 2 {
		t.Fatalf("want=2 result=%d", len(lines))
	}
	if lines[0]["run_id"] != "first" || lines[1]["run_id"] != "second" {
		t.Fatalf("want=first,second result=%v,%v", lines[0]["run_id"], lines[1]["run_id"])
	}
}

func TestJsonlSkipsEmptyBatches(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	s := NewJsonlStorage(dir)

	if err := s.PutSnapshots(context.Background(), "test-1", nil); err != nil {
		t.Fatalf("put snapshots: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("want=missing dir result=%v", err)
	}
}
