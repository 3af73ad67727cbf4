package queue

import (
	"sync"
	"time"

	"github.com/sv4u/spotifydl/download/spotify"
)

// ItemKind is the media kind of a queue item.
type ItemKind string

const (
	ItemKindTrack   ItemKind = "track"
	ItemKindEpisode ItemKind = "episode"
)

// ItemStatus represents the status of a queue item.
type ItemStatus string

const (
	ItemStatusPending    ItemStatus = "pending"
	ItemStatusInProgress ItemStatus = "in_progress"
	ItemStatusCompleted  ItemStatus = "completed"
	ItemStatusFailed     ItemStatus = "failed"
	ItemStatusSkipped    ItemStatus = "skipped"
)

// PlaylistInfo is attached to items that came from a playlist URL.
type PlaylistInfo struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Position int    `json:"position"` // 1-based
}

// Item is one track or episode to download.
type Item struct {
	// Identification
	Position  int      `json:"position"` // 1-based within its URL
	Kind      ItemKind `json:"kind"`
	SpotifyID string   `json:"spotify_id"`
	Name      string   `json:"name"`

	// Metadata
	Track    *spotify.Track `json:"track"`
	Album    *spotify.Album `json:"album,omitempty"` // set when the source URL was an album
	Playlist *PlaylistInfo  `json:"playlist,omitempty"`

	// Status tracking
	Status   ItemStatus `json:"status"`
	Error    string     `json:"error,omitempty"`
	FilePath string     `json:"file_path,omitempty"`

	// Timestamps
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	mu sync.RWMutex
}

// MarkStarted marks the item as started.
func (i *Item) MarkStarted() {
	i.mu.Lock()
	defer i.mu.Unlock()
	now := time.Now()
	i.Status = ItemStatusInProgress
	if i.StartedAt == nil {
		i.StartedAt = &now
	}
}

// MarkCompleted marks the item as completed.
func (i *Item) MarkCompleted(filePath string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	now := time.Now()
	i.Status = ItemStatusCompleted
	i.CompletedAt = &now
	if filePath != "" {
		i.FilePath = filePath
	}
}

// MarkFailed marks the item as failed.
func (i *Item) MarkFailed(errorMsg string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	now := time.Now()
	i.Status = ItemStatusFailed
	i.CompletedAt = &now
	i.Error = errorMsg
}

// MarkSkipped marks the item as skipped. reason is kept in Error for display.
func (i *Item) MarkSkipped(filePath, reason string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	now := time.Now()
	i.Status = ItemStatusSkipped
	i.CompletedAt = &now
	i.Error = reason
	if filePath != "" {
		i.FilePath = filePath
	}
}

// GetStatus returns the current status (thread-safe).
func (i *Item) GetStatus() ItemStatus {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.Status
}

// Snapshot returns status, error and path under one lock.
func (i *Item) Snapshot() (ItemStatus, string, string) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.Status, i.Error, i.FilePath
}

// Statistics counts items by status.
type Statistics struct {
	Completed  int `json:"completed"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Total      int `json:"total"`
}

// Queue is the ordered item list of one source URL.
type Queue struct {
	URL   string  `json:"url"`
	Items []*Item `json:"items"`
}

// NewQueue creates a queue for url.
func NewQueue(url string, items []*Item) *Queue {
	if items == nil {
		items = make([]*Item, 0)
	}
	return &Queue{URL: url, Items: items}
}

// Statistics returns status counts over every item.
func (q *Queue) Statistics() Statistics {
	stats := Statistics{Total: len(q.Items)}
	for _, item := range q.Items {
		switch item.GetStatus() {
		case ItemStatusCompleted:
			stats.Completed++
		case ItemStatusSkipped:
			stats.Skipped++
		case ItemStatusFailed:
			stats.Failed++
		case ItemStatusPending:
			stats.Pending++
		case ItemStatusInProgress:
			stats.InProgress++
		}
	}
	return stats
}

// Add merges other into s.
func (s *Statistics) Add(other Statistics) {
	s.Completed += other.Completed
	s.Skipped += other.Skipped
	s.Failed += other.Failed
	s.Pending += other.Pending
	s.InProgress += other.InProgress
	s.Total += other.Total
}
