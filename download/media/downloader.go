package media

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/schollz/progressbar/v3"
)

// Downloader fetches a single encrypted stream to dst.
type Downloader interface {
	Download(ctx context.Context, url, dst string) error
}

// YtDlpDownloader downloads through yt-dlp with fixups disabled so the
// encrypted container is left untouched.
type YtDlpDownloader struct{}

func (YtDlpDownloader) Download(ctx context.Context, url, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return &DownloadError{Message: fmt.Sprintf("Failed to create directory for %s", dst), Original: err}
	}
	return runYtDlp(ctx, ytdlpCommand(dst), url)
}

func ytdlpCommand(dst string) *ytdlp.Command {
	return ytdlp.New().
		ForceOverwrites().
		Output(dst).
		Fixup("never").
		Quiet().
		NoWarnings().
		NoProgress()
}

// ytdlpArgs are the positional arguments for one run. The builder has no
// setter for --allow-unplayable-formats, so it is passed raw.
func ytdlpArgs(url string) []string {
	return []string{"--allow-unplayable-formats", url}
}

func runYtDlp(ctx context.Context, cmd *ytdlp.Command, url string) error {
	res, err := cmd.Run(ctx, ytdlpArgs(url)...)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	toolErr := &ExternalToolError{Tool: "yt-dlp", ExitCode: -1, Original: err}
	if res != nil {
		toolErr.ExitCode = res.ExitCode
		toolErr.Output = strings.TrimSpace(res.Stderr)
	}
	log.Printf("ERROR: tool_failed tool=yt-dlp exit_code=%d error=%v", toolErr.ExitCode, err)
	return toolErr
}

// Aria2cDownloader shells out to aria2c.
type Aria2cDownloader struct {
	Path string
}

func (d Aria2cDownloader) Download(ctx context.Context, url, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return &DownloadError{Message: fmt.Sprintf("Failed to create directory for %s", dst), Original: err}
	}
	return runTool(ctx, "aria2c", d.Path, aria2cArgs(url, dst)...)
}

func aria2cArgs(url, dst string) []string {
	return []string{
		"--no-conf",
		"--download-result=hide",
		"--console-log-level=error",
		"--summary-interval=0",
		"--file-allocation=none",
		url,
		"--out",
		dst,
	}
}

// HTTPDownloader streams the response body to disk behind a progress bar.
type HTTPDownloader struct {
	Client     *http.Client
	NoProgress bool
}

// NewHTTPDownloader creates an HTTP downloader with a ten minute timeout.
func NewHTTPDownloader(noProgress bool) *HTTPDownloader {
	return &HTTPDownloader{
		Client:     &http.Client{Timeout: 10 * time.Minute},
		NoProgress: noProgress,
	}
}

func (d *HTTPDownloader) Download(ctx context.Context, url, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &DownloadError{Message: "Failed to create request", Original: err}
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		return &DownloadError{Message: fmt.Sprintf("GET %s failed", url), Original: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &DownloadError{Message: fmt.Sprintf("GET %s returned %s", url, resp.Status)}
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return &DownloadError{Message: fmt.Sprintf("Failed to create directory for %s", dst), Original: err}
	}
	f, err := os.Create(dst)
	if err != nil {
		return &DownloadError{Message: fmt.Sprintf("Failed to create %s", dst), Original: err}
	}
	defer f.Close()

	bar := newBar(resp.ContentLength, "Downloading...", d.NoProgress)
	defer bar.Close()

	if _, err := io.Copy(io.MultiWriter(f, bar), resp.Body); err != nil {
		return &DownloadError{Message: fmt.Sprintf("Failed to write %s", dst), Original: err}
	}
	return nil
}

func newBar(total int64, description string, hidden bool) *progressbar.ProgressBar {
	return progressbar.NewOptions64(
		total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetVisibility(!hidden),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetElapsedTime(false),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionShowCount(),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetDescription(description),
	)
}
