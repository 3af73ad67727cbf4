package metadata

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sv4u/spotifydl/download/spotify"
)

const syncTypeLineSynced = "LINE_SYNCED"

// LRCTimestamp formats milliseconds as mm:ss.xx. Centiseconds are truncated.
func LRCTimestamp(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	minutes := ms / 60000
	seconds := (ms % 60000) / 1000
	centis := (ms % 1000) / 10
	return fmt.Sprintf("%02d:%02d.%02d", minutes, seconds, centis)
}

// RenderLyrics returns the synced LRC text (empty unless the lyrics are
// line synced) and the unsynced text with lines joined by "\n".
func RenderLyrics(lyrics *spotify.Lyrics) (synced, unsynced string) {
	if lyrics == nil {
		return "", ""
	}

	var s, u strings.Builder
	isSynced := lyrics.Lyrics.SyncType == syncTypeLineSynced
	for i, line := range lyrics.Lyrics.Lines {
		if isSynced {
			ms, err := strconv.ParseInt(line.StartTimeMs, 10, 64)
			if err != nil {
				ms = 0
			}
			fmt.Fprintf(&s, "[%s]%s\n", LRCTimestamp(ms), line.Words)
		}
		if i > 0 {
			u.WriteString("\n")
		}
		u.WriteString(line.Words)
	}
	return s.String(), u.String()
}
