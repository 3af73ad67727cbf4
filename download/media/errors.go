package media

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"strings"
)

// ExternalToolError reports a helper binary that failed or could not start.
// ExitCode is -1 when the process never produced an exit status.
type ExternalToolError struct {
	Tool     string
	ExitCode int
	Output   string
	Original error
}

func (e *ExternalToolError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("External tool error: %s exited with code %d: %s", e.Tool, e.ExitCode, e.Output)
	}
	return fmt.Sprintf("External tool error: %s exited with code %d", e.Tool, e.ExitCode)
}

func (e *ExternalToolError) Unwrap() error {
	return e.Original
}

// DownloadError represents a failed native download.
type DownloadError struct {
	Message  string
	Original error
}

func (e *DownloadError) Error() string {
	if e.Original != nil {
		return fmt.Sprintf("Media download error: %s: %v", e.Message, e.Original)
	}
	return fmt.Sprintf("Media download error: %s", e.Message)
}

func (e *DownloadError) Unwrap() error {
	return e.Original
}

// runTool runs a helper binary and maps failures to *ExternalToolError.
// Cancellation is returned as the context error.
func runTool(ctx context.Context, tool, path string, args ...string) error {
	log.Printf("DEBUG: tool_exec tool=%s path=%s args=%q", tool, path, args)

	out, err := exec.CommandContext(ctx, path, args...).CombinedOutput()
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}
	log.Printf("ERROR: tool_failed tool=%s exit_code=%d error=%v", tool, exitCode, err)
	return &ExternalToolError{
		Tool:     tool,
		ExitCode: exitCode,
		Output:   strings.TrimSpace(string(out)),
		Original: err,
	}
}
