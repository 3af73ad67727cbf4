package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/grafov/m3u8"
)

// SegmentSource describes one rendition of a segmented music video stream.
type SegmentSource struct {
	BaseURL                string
	InitializationTemplate string
	SegmentTemplate        string
	EndTimeMillis          int64
	SegmentLength          int
	ProfileID              int
	FileType               string
}

func (s SegmentSource) expand(tmpl string) string {
	return strings.NewReplacer(
		"{{profile_id}}", strconv.Itoa(s.ProfileID),
		"{{file_type}}", s.FileType,
	).Replace(tmpl)
}

// SegmentURLs returns the init segment URL followed by one URL per
// SegmentLength seconds up to EndTimeMillis.
func (s SegmentSource) SegmentURLs() ([]string, error) {
	if s.SegmentLength <= 0 {
		return nil, fmt.Errorf("invalid segment length %d", s.SegmentLength)
	}
	urls := []string{s.BaseURL + s.expand(s.InitializationTemplate)}
	seg := s.expand(s.SegmentTemplate)
	for ts := 0; ts < int(s.EndTimeMillis/1000); ts += s.SegmentLength {
		urls = append(urls, s.BaseURL+strings.ReplaceAll(seg, "{{segment_timestamp}}", strconv.Itoa(ts)))
	}
	return urls, nil
}

// BuildSegmentPlaylist encodes the source as a closed VOD playlist. The init
// segment is listed as an ordinary segment so every downloader concatenates
// it first.
func BuildSegmentPlaylist(src SegmentSource) ([]byte, error) {
	urls, err := src.SegmentURLs()
	if err != nil {
		return nil, err
	}
	p, err := m3u8.NewMediaPlaylist(0, uint(len(urls)))
	if err != nil {
		return nil, err
	}
	p.MediaType = m3u8.VOD
	for _, u := range urls {
		if err := p.Append(u, 1, ""); err != nil {
			return nil, err
		}
	}
	p.Close()
	return p.Encode().Bytes(), nil
}

// WriteSegmentPlaylist builds the playlist and writes it to path.
func WriteSegmentPlaylist(src SegmentSource, path string) error {
	data, err := BuildSegmentPlaylist(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// SegmentDownloader fetches every segment of a local playlist into dst.
type SegmentDownloader interface {
	DownloadSegments(ctx context.Context, playlistPath, dst string) error
}

// HTTPSegmentDownloader concatenates the playlist segments natively.
type HTTPSegmentDownloader struct {
	Client     *http.Client
	NoProgress bool
}

// NewHTTPSegmentDownloader creates a segment downloader with a per-request
// timeout of one minute.
func NewHTTPSegmentDownloader(noProgress bool) *HTTPSegmentDownloader {
	return &HTTPSegmentDownloader{
		Client:     &http.Client{Timeout: time.Minute},
		NoProgress: noProgress,
	}
}

// playlistSegments decodes a media playlist and returns its segment URIs.
func playlistSegments(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pl, listType, err := m3u8.DecodeFrom(bytes.NewReader(data), true)
	if err != nil {
		return nil, err
	}
	if listType != m3u8.MEDIA {
		return nil, fmt.Errorf("%s is not a media playlist", path)
	}
	var uris []string
	for _, seg := range pl.(*m3u8.MediaPlaylist).Segments {
		if seg != nil {
			uris = append(uris, seg.URI)
		}
	}
	return uris, nil
}

func (d *HTTPSegmentDownloader) DownloadSegments(ctx context.Context, playlistPath, dst string) error {
	uris, err := playlistSegments(playlistPath)
	if err != nil {
		return &DownloadError{Message: fmt.Sprintf("Failed to read playlist %s", playlistPath), Original: err}
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return &DownloadError{Message: fmt.Sprintf("Failed to create directory for %s", dst), Original: err}
	}
	f, err := os.Create(dst)
	if err != nil {
		return &DownloadError{Message: fmt.Sprintf("Failed to create %s", dst), Original: err}
	}
	defer f.Close()

	bar := newBar(int64(len(uris)), "Downloading segments...", d.NoProgress)
	defer bar.Close()

	for i, uri := range uris {
		if err := d.fetch(ctx, uri, f); err != nil {
			return &DownloadError{Message: fmt.Sprintf("Segment %d/%d failed", i+1, len(uris)), Original: err}
		}
		_ = bar.Add(1)
	}
	return nil
}

func (d *HTTPSegmentDownloader) fetch(ctx context.Context, uri string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return err
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s returned %s", uri, resp.Status)
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

// YtDlpSegmentDownloader hands the playlist to yt-dlp as a file:// URL.
type YtDlpSegmentDownloader struct{}

func (YtDlpSegmentDownloader) DownloadSegments(ctx context.Context, playlistPath, dst string) error {
	abs, err := filepath.Abs(playlistPath)
	if err != nil {
		return &DownloadError{Message: fmt.Sprintf("Failed to resolve %s", playlistPath), Original: err}
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return &DownloadError{Message: fmt.Sprintf("Failed to create directory for %s", dst), Original: err}
	}
	return runYtDlp(ctx, ytdlpCommand(dst).EnableFileURLs(), fileURI(abs))
}

func fileURI(abs string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
}

// Nm3u8DLRESegmentDownloader shells out to N_m3u8DL-RE with binary merge.
type Nm3u8DLRESegmentDownloader struct {
	Path       string
	FFmpegPath string
}

func (d Nm3u8DLRESegmentDownloader) DownloadSegments(ctx context.Context, playlistPath, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return &DownloadError{Message: fmt.Sprintf("Failed to create directory for %s", dst), Original: err}
	}
	return runTool(ctx, "N_m3u8DL-RE", d.Path, nm3u8dlreArgs(playlistPath, dst, d.FFmpegPath)...)
}

func nm3u8dlreArgs(playlistPath, dst, ffmpegPath string) []string {
	dir := filepath.Dir(dst)
	return []string{
		playlistPath,
		"--binary-merge",
		"--no-log",
		"--log-level", "off",
		"--ffmpeg-binary-path", ffmpegPath,
		"--save-name", strings.TrimSuffix(filepath.Base(dst), filepath.Ext(dst)),
		"--save-dir", dir,
		"--tmp-dir", dir,
	}
}
