package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// EnvLogDir overrides the base directory for per-run log files.
const EnvLogDir = "SPOTIFYDL_LOG_DIR"

// getLogDir returns SPOTIFYDL_LOG_DIR or ".logs" under current dir.
func getLogDir() string {
	if d := os.Getenv(EnvLogDir); d != "" {
		return d
	}
	return ".logs"
}

// CreateRunDir creates a per-run directory under the log dir (.logs/run_<timestamp>_<nanos>/)
// and returns the run directory path and the path to its spotifydl.log.
// Nanosecond suffix avoids collision when multiple runs start in the same second.
func CreateRunDir() (runDir, logPath string, err error) {
	base := getLogDir()
	if err := os.MkdirAll(base, 0755); err != nil {
		return "", "", fmt.Errorf("create log base dir: %w", err)
	}
	now := time.Now()
	ts := strings.ReplaceAll(now.Format(time.RFC3339), ":", "-")
	runDir = filepath.Join(base, "run_"+ts+"_"+strconv.FormatInt(now.UnixNano(), 10))
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", "", fmt.Errorf("create run dir: %w", err)
	}
	return runDir, filepath.Join(runDir, "spotifydl.log"), nil
}
