package queue

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WriteM3U writes an extended M3U playlist of every item that has a file on
// disk (completed or skipped because it already existed). The file is
// replaced on every run.
func WriteM3U(m3uPath string, items []*Item) (int, error) {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")

	written := 0
	for _, item := range items {
		status, _, filePath := item.Snapshot()
		if filePath == "" || (status != ItemStatusCompleted && status != ItemStatusSkipped) {
			continue
		}
		absPath, err := filepath.Abs(filePath)
		if err != nil {
			continue
		}

		seconds := -1
		if item.Track != nil && item.Track.DurationMs > 0 {
			seconds = item.Track.DurationMs / 1000
		}
		fmt.Fprintf(&b, "#EXTINF:%d,%s\n%s\n", seconds, item.Name, absPath)
		written++
	}

	if written == 0 {
		return 0, fmt.Errorf("no tracks available for M3U file")
	}

	if err := os.MkdirAll(filepath.Dir(m3uPath), 0755); err != nil {
		return 0, fmt.Errorf("cannot create M3U directory: %w", err)
	}
	if err := os.WriteFile(m3uPath, []byte(b.String()), 0644); err != nil {
		return 0, fmt.Errorf("cannot write M3U file: %w", err)
	}
	return written, nil
}
