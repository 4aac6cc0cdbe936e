package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func TestLoadHistoryMissingFile(t *testing.T) {
	h := LoadHistory(t.TempDir(), zap.NewNop())

	if h.Len() != 0 {
		t.Errorf("expected empty history, got %d entries", h.Len())
	}
	if h.Knows("anything") {
		t.Error("empty history should know nothing")
	}
}

func TestHistoryRoundTrip(t *testing.T) {
	dir := t.TempDir()

	h := LoadHistory(dir, zap.NewNop())
	h.Add("tx-2")
	h.Add("tx-1")
	h.Add("tx-1") // duplicate
	if err := h.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded := LoadHistory(dir, zap.NewNop())
	if reloaded.Len() != 2 {
		t.Fatalf("expected 2 known transactions, got %d", reloaded.Len())
	}
	if !reloaded.Knows("tx-1") || !reloaded.Knows("tx-2") {
		t.Error("reloaded history lost entries")
	}
	if reloaded.LastRunID == "" {
		t.Error("expected a run id")
	}
	if reloaded.LastRunAt == "" {
		t.Error("expected a run timestamp")
	}

	// Ids are persisted sorted so diffs between runs stay readable.
	data, err := os.ReadFile(filepath.Join(dir, historyFilename))
	if err != nil {
		t.Fatalf("read history: %v", err)
	}
	var onDisk struct {
		Known []string `json:"known_transactions"`
	}
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(onDisk.Known) != 2 || onDisk.Known[0] != "tx-1" || onDisk.Known[1] != "tx-2" {
		t.Errorf("unexpected persisted order: %v", onDisk.Known)
	}
}

func TestLoadHistoryUnparseable(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, historyFilename), []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	h := LoadHistory(dir, zap.NewNop())
	if h.Len() != 0 {
		t.Errorf("corrupt history should load empty, got %d entries", h.Len())
	}
}
