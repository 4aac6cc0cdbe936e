package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const historyFilename = "tr2hibiscus.json"

// History is the on-disk ledger of already-exported transactions, so a rerun
// only picks up what is new.
type History struct {
	KnownTransactions []string `json:"known_transactions"`
	LastRunID         string   `json:"last_run_id,omitempty"`
	LastRunAt         string   `json:"last_run_at,omitempty"`

	path   string
	known  map[string]struct{}
	logger *zap.Logger
}

// LoadHistory reads the ledger from dir. A missing file is a first run, not
// an error; an unreadable one is logged and treated as empty.
func LoadHistory(dir string, logger *zap.Logger) *History {
	h := &History{
		path:   filepath.Join(dir, historyFilename),
		known:  make(map[string]struct{}),
		logger: logger,
	}

	data, err := os.ReadFile(h.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("could not read history file", zap.String("path", h.path), zap.Error(err))
		}
		return h
	}
	if err := json.Unmarshal(data, h); err != nil {
		logger.Warn("could not parse history file", zap.String("path", h.path), zap.Error(err))
		h.KnownTransactions = nil
		return h
	}

	for _, id := range h.KnownTransactions {
		h.known[id] = struct{}{}
	}
	logger.Info("loaded export history", zap.Int("known", len(h.known)), zap.String("path", h.path))
	return h
}

// Knows reports whether the transaction id was exported by a previous run.
func (h *History) Knows(id string) bool {
	_, ok := h.known[id]
	return ok
}

// Add marks a transaction id as exported.
func (h *History) Add(id string) {
	if _, ok := h.known[id]; ok {
		return
	}
	h.known[id] = struct{}{}
	h.KnownTransactions = append(h.KnownTransactions, id)
}

// Len reports how many transactions the ledger knows.
func (h *History) Len() int {
	return len(h.known)
}

// Save writes the ledger back, stamping the run metadata.
func (h *History) Save() error {
	h.LastRunID = uuid.NewString()
	h.LastRunAt = time.Now().Format(time.RFC3339)
	sort.Strings(h.KnownTransactions)

	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}
	if err := writeFileAtomic(h.path, data); err != nil {
		return fmt.Errorf("saving history: %w", err)
	}

	h.logger.Debug("saved history", zap.Int("known", len(h.known)), zap.String("run", h.LastRunID))
	return nil
}

// writeFileAtomic writes via a temp file and rename so a crashed run never
// leaves a half-written file behind.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
