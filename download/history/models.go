package history

import (
	"encoding/json"
	"time"
)

// ItemRecord is the outcome of one queue item.
type ItemRecord struct {
	URL       string    `json:"url"`
	Position  int       `json:"position"` // 1-based within its URL
	SpotifyID string    `json:"spotify_id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"` // completed, skipped, failed
	FilePath  string    `json:"file_path,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// RunHistory is one invocation of the downloader.
type RunHistory struct {
	RunID       string         `json:"run_id"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	URLs        []string       `json:"urls"`
	State       string         `json:"state"` // running, completed, interrupted
	Errors      int            `json:"errors"`
	Statistics  map[string]int `json:"statistics,omitempty"`
	Status      map[string]any `json:"status,omitempty"` // final service status
	Items       []ItemRecord   `json:"items"`
}

// ToJSON converts RunHistory to JSON bytes.
func (r *RunHistory) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// FromJSON creates RunHistory from JSON bytes.
func (r *RunHistory) FromJSON(data []byte) error {
	return json.Unmarshal(data, r)
}
