package download

import (
	"errors"
	"fmt"
)

// Skip conditions. The orchestrator logs them and moves on without counting
// an error.
var (
	ErrUnavailable     = errors.New("Track not available on Spotify's servers and no alternative found")
	ErrPremiumRequired = errors.New("Cannot download music videos with a free account")
	ErrVideoLrcOnly    = errors.New("Music videos are not downloadable with current settings")
)

// IsSkip reports whether err is a skip condition rather than a failure.
func IsSkip(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrPremiumRequired) || errors.Is(err, ErrVideoLrcOnly)
}

// DownloadError wraps a pipeline failure with the stage it happened in.
type DownloadError struct {
	Stage    string
	ItemID   string
	Original error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("Download error: %s failed for %s: %v", e.Stage, e.ItemID, e.Original)
}

func (e *DownloadError) Unwrap() error {
	return e.Original
}

func stageErr(stage, id string, err error) error {
	if err == nil {
		return nil
	}
	return &DownloadError{Stage: stage, ItemID: id, Original: err}
}
