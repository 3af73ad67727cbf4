// Package media fetches encrypted streams and turns them into playable
// MP4 files. Every external tool is optional: the native implementations
// cover each stage without helper binaries.
package media

import (
	"fmt"

	"github.com/sv4u/spotifydl/download/config"
)

// NewDownloader returns the song downloader selected by cfg.
func NewDownloader(cfg *config.Config, noProgress bool) (Downloader, error) {
	switch cfg.DownloadModeSong {
	case config.SongModeYtDlp:
		return YtDlpDownloader{}, nil
	case config.SongModeAria2c:
		return Aria2cDownloader{Path: cfg.Aria2cPath}, nil
	case config.SongModeHTTP:
		return NewHTTPDownloader(noProgress), nil
	}
	return nil, &config.ConfigError{Message: fmt.Sprintf("Invalid download_mode_song: %s", cfg.DownloadModeSong)}
}

// NewSegmentDownloader returns the music video downloader selected by cfg.
func NewSegmentDownloader(cfg *config.Config, noProgress bool) (SegmentDownloader, error) {
	switch cfg.DownloadModeVideo {
	case config.VideoModeYtDlp:
		return YtDlpSegmentDownloader{}, nil
	case config.VideoModeNm3u8DLRE:
		return Nm3u8DLRESegmentDownloader{Path: cfg.Nm3u8DLREPath, FFmpegPath: cfg.FFmpegPath}, nil
	case config.VideoModeHTTP:
		return NewHTTPSegmentDownloader(noProgress), nil
	}
	return nil, &config.ConfigError{Message: fmt.Sprintf("Invalid download_mode_video: %s", cfg.DownloadModeVideo)}
}

// NewRemuxer returns the remuxer selected by cfg.
func NewRemuxer(cfg *config.Config) (Remuxer, error) {
	switch cfg.RemuxMode {
	case config.RemuxFFmpeg:
		return FFmpegRemuxer{Path: cfg.FFmpegPath}, nil
	case config.RemuxMP4Box:
		return MP4BoxRemuxer{MP4BoxPath: cfg.MP4BoxPath, MP4DecryptPath: cfg.MP4DecryptPath}, nil
	case config.RemuxNative:
		return NativeRemuxer{FFmpegPath: cfg.FFmpegPath}, nil
	}
	return nil, &config.ConfigError{Message: fmt.Sprintf("Invalid remux_mode: %s", cfg.RemuxMode)}
}

// RequiredTools maps tool display names to configured paths for the modes
// selected by cfg.
func RequiredTools(cfg *config.Config) map[string]string {
	tools := map[string]string{}
	switch cfg.RemuxMode {
	case config.RemuxFFmpeg:
		tools["ffmpeg"] = cfg.FFmpegPath
	case config.RemuxMP4Box:
		tools["MP4Box"] = cfg.MP4BoxPath
		tools["mp4decrypt"] = cfg.MP4DecryptPath
	}
	if cfg.DownloadModeSong == config.SongModeAria2c {
		tools["aria2c"] = cfg.Aria2cPath
	}
	if cfg.DownloadMusicVideo {
		tools["ffmpeg"] = cfg.FFmpegPath
		if cfg.DownloadModeVideo == config.VideoModeNm3u8DLRE {
			tools["nm3u8dlre"] = cfg.Nm3u8DLREPath
		}
	}
	return tools
}
