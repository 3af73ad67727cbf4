package history

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Run states.
const (
	StateRunning     = "running"
	StateCompleted   = "completed"
	StateInterrupted = "interrupted"
)

// DefaultRetention is the number of run files kept on disk.
const DefaultRetention = 20

// Tracker records the items of a run and persists it as run_<id>.json.
type Tracker struct {
	historyPath string
	retention   int

	currentRun   *RunHistory
	currentRunMu sync.RWMutex
}

// NewTracker creates a tracker writing to historyPath. A retention of zero
// keeps every run.
func NewTracker(historyPath string, retention int) (*Tracker, error) {
	if retention < 0 {
		return nil, fmt.Errorf("retention must not be negative, got %d", retention)
	}
	if err := os.MkdirAll(historyPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	return &Tracker{historyPath: historyPath, retention: retention}, nil
}

// StartRun starts tracking a new run.
func (t *Tracker) StartRun(runID string, urls []string) {
	t.currentRunMu.Lock()
	defer t.currentRunMu.Unlock()

	t.currentRun = &RunHistory{
		RunID:     runID,
		StartedAt: time.Now(),
		URLs:      append([]string(nil), urls...),
		State:     StateRunning,
		Items:     make([]ItemRecord, 0),
	}
	log.Printf("INFO: run_started run_id=%s urls=%d", runID, len(urls))
}

// RecordItem appends an item outcome to the current run. It is a no-op
// when no run is active.
func (t *Tracker) RecordItem(rec ItemRecord) {
	t.currentRunMu.Lock()
	defer t.currentRunMu.Unlock()

	if t.currentRun == nil {
		return
	}
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	t.currentRun.Items = append(t.currentRun.Items, rec)
}

// GetCurrentRun returns a copy of the current run, or nil.
func (t *Tracker) GetCurrentRun() *RunHistory {
	t.currentRunMu.RLock()
	defer t.currentRunMu.RUnlock()

	if t.currentRun == nil {
		return nil
	}
	run := *t.currentRun
	run.Items = append([]ItemRecord(nil), t.currentRun.Items...)
	return &run
}

// StopRun finalizes the current run, saves it and applies retention. status
// is the service status at the end of the run.
func (t *Tracker) StopRun(state string, errors int, statistics map[string]int, status map[string]any) error {
	t.currentRunMu.Lock()
	defer t.currentRunMu.Unlock()

	if t.currentRun == nil {
		return nil
	}

	now := time.Now()
	t.currentRun.CompletedAt = &now
	t.currentRun.State = state
	t.currentRun.Errors = errors
	t.currentRun.Statistics = statistics
	t.currentRun.Status = status

	if err := t.saveRunHistory(t.currentRun); err != nil {
		log.Printf("ERROR: run_history_save_failed run_id=%s error=%v", t.currentRun.RunID, err)
		return err
	}
	log.Printf("INFO: run_stopped run_id=%s state=%s errors=%d items=%d", t.currentRun.RunID, state, errors, len(t.currentRun.Items))

	if t.retention > 0 {
		if err := t.cleanupOldRuns(); err != nil {
			log.Printf("WARN: run_history_cleanup_failed error=%v", err)
		}
	}

	t.currentRun = nil
	return nil
}

func (t *Tracker) runPath(runID string) string {
	return filepath.Join(t.historyPath, fmt.Sprintf("run_%s.json", runID))
}

// GetRunHistory loads a specific run history by ID.
func (t *Tracker) GetRunHistory(runID string) (*RunHistory, error) {
	data, err := os.ReadFile(t.runPath(runID))
	if err != nil {
		return nil, err
	}

	var run RunHistory
	if err := run.FromJSON(data); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns every saved run ID, newest first.
func (t *Tracker) ListRuns() ([]string, error) {
	entries, err := os.ReadDir(t.historyPath)
	if err != nil {
		return nil, err
	}

	type runInfo struct {
		ID        string
		StartedAt time.Time
	}
	var runs []runInfo
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "run_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(name, "run_"), ".json")
		run, err := t.GetRunHistory(id)
		if err != nil {
			continue
		}
		runs = append(runs, runInfo{ID: id, StartedAt: run.StartedAt})
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	return ids, nil
}

func (t *Tracker) saveRunHistory(run *RunHistory) error {
	data, err := run.ToJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(t.runPath(run.RunID), data, 0644)
}

// cleanupOldRuns removes the oldest runs beyond the retention limit.
func (t *Tracker) cleanupOldRuns() error {
	runIDs, err := t.ListRuns()
	if err != nil {
		return err
	}
	if len(runIDs) <= t.retention {
		return nil
	}
	for _, runID := range runIDs[t.retention:] {
		if err := os.Remove(t.runPath(runID)); err != nil {
			log.Printf("WARN: failed to remove old run %s: %v", runID, err)
		}
	}
	return nil
}
