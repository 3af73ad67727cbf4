package config

import (
	"fmt"
	"strings"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

// RemuxMode selects how encrypted media is turned into a playable container.
type RemuxMode string

const (
	RemuxFFmpeg RemuxMode = "ffmpeg"
	RemuxMP4Box RemuxMode = "mp4box"
	RemuxNative RemuxMode = "native"
)

// DownloadModeSong selects the tool that fetches encrypted audio.
type DownloadModeSong string

const (
	SongModeYtDlp  DownloadModeSong = "ytdlp"
	SongModeAria2c DownloadModeSong = "aria2c"
	SongModeHTTP   DownloadModeSong = "http"
)

// DownloadModeVideo selects the tool that fetches music video segments.
type DownloadModeVideo string

const (
	VideoModeYtDlp     DownloadModeVideo = "ytdlp"
	VideoModeNm3u8DLRE DownloadModeVideo = "nm3u8dlre"
	VideoModeHTTP      DownloadModeVideo = "http"
)

// ExcludedParams lists CLI parameters that are never persisted to the config file.
var ExcludedParams = []string{
	"urls",
	"config_path",
	"read_urls_as_txt",
	"no_config_file",
	"version",
	"help",
}

// IsExcludedParam reports whether name is a CLI-only parameter.
func IsExcludedParam(name string) bool {
	name = strings.ReplaceAll(name, "-", "_")
	for _, p := range ExcludedParams {
		if p == name {
			return true
		}
	}
	return false
}

// Config holds every persisted setting. Field names double as CLI flag
// names with underscores replaced by dashes.
type Config struct {
	// Behaviour
	DownloadMusicVideo bool `json:"download_music_video" yaml:"download_music_video"`
	SaveCover          bool `json:"save_cover" yaml:"save_cover"`
	Overwrite          bool `json:"overwrite" yaml:"overwrite"`
	LrcOnly            bool `json:"lrc_only" yaml:"lrc_only"`
	NoLrc              bool `json:"no_lrc" yaml:"no_lrc"`
	PremiumQuality     bool `json:"premium_quality" yaml:"premium_quality"`
	ReplaceJoinChars   bool `json:"replace_join_chars" yaml:"replace_join_chars"`
	NoTUI              bool `json:"no_tui" yaml:"no_tui"`

	// Logging
	LogLevel        string `json:"log_level" yaml:"log_level"`
	LogToFile       bool   `json:"log_to_file" yaml:"log_to_file"`
	PrintExceptions bool   `json:"print_exceptions" yaml:"print_exceptions"`

	// Paths
	CookiesPath string `json:"cookies_path" yaml:"cookies_path"`
	OutputPath  string `json:"output_path" yaml:"output_path"`
	TempPath    string `json:"temp_path" yaml:"temp_path"`
	WVDPath     string `json:"wvd_path" yaml:"wvd_path"`

	// External tools
	FFmpegPath     string `json:"ffmpeg_path" yaml:"ffmpeg_path"`
	MP4BoxPath     string `json:"mp4box_path" yaml:"mp4box_path"`
	MP4DecryptPath string `json:"mp4decrypt_path" yaml:"mp4decrypt_path"`
	Aria2cPath     string `json:"aria2c_path" yaml:"aria2c_path"`
	Nm3u8DLREPath  string `json:"nm3u8dlre_path" yaml:"nm3u8dlre_path"`

	// Modes
	RemuxMode         RemuxMode         `json:"remux_mode" yaml:"remux_mode"`
	DownloadModeSong  DownloadModeSong  `json:"download_mode_song" yaml:"download_mode_song"`
	DownloadModeVideo DownloadModeVideo `json:"download_mode_video" yaml:"download_mode_video"`

	// Tagging and templates
	DateTagTemplate           string `json:"date_tag_template" yaml:"date_tag_template"`
	ExcludeTags               string `json:"exclude_tags" yaml:"exclude_tags"`
	Truncate                  int    `json:"truncate" yaml:"truncate"`
	TemplateFolderAlbum       string `json:"template_folder_album" yaml:"template_folder_album"`
	TemplateFolderCompilation string `json:"template_folder_compilation" yaml:"template_folder_compilation"`
	TemplateFileSingleDisc    string `json:"template_file_single_disc" yaml:"template_file_single_disc"`
	TemplateFileMultiDisc     string `json:"template_file_multi_disc" yaml:"template_file_multi_disc"`
	TemplateFolderNoAlbum     string `json:"template_folder_no_album" yaml:"template_folder_no_album"`
	TemplateFileNoAlbum       string `json:"template_file_no_album" yaml:"template_file_no_album"`
	TemplateFilePlaylist      string `json:"template_file_playlist" yaml:"template_file_playlist"`
	TemplateFolderMusicVideo  string `json:"template_folder_music_video" yaml:"template_folder_music_video"`
	TemplateFileMusicVideo    string `json:"template_file_music_video" yaml:"template_file_music_video"`

	// Pacing and retries
	ItemWait        float64 `json:"item_wait" yaml:"item_wait"`               // seconds between queue items
	PageWait        float64 `json:"page_wait" yaml:"page_wait"`               // seconds between collection pages
	LicenseAttempts int     `json:"license_attempts" yaml:"license_attempts"` // license exchange attempts
	LicenseBackoff  float64 `json:"license_backoff" yaml:"license_backoff"`   // seconds, multiplied by attempt index

	// Provider client
	CacheMaxSize      int     `json:"cache_max_size" yaml:"cache_max_size"`
	CacheTTL          int     `json:"cache_ttl" yaml:"cache_ttl"`
	RateLimitEnabled  bool    `json:"rate_limit_enabled" yaml:"rate_limit_enabled"`
	RateLimitRequests int     `json:"rate_limit_requests" yaml:"rate_limit_requests"`
	RateLimitWindow   float64 `json:"rate_limit_window" yaml:"rate_limit_window"`
}

// Default returns a Config populated with every default value.
func Default() *Config {
	c := &Config{RateLimitEnabled: true}
	c.SetDefaults()
	c.Truncate = 40
	c.PageWait = 0.5
	return c
}

// SetDefaults fills zero-valued string and numeric settings.
// Truncate and PageWait accept zero as a real value and are only set by Default.
func (c *Config) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}
	if c.CookiesPath == "" {
		c.CookiesPath = "./cookies.txt"
	}
	if c.OutputPath == "" {
		c.OutputPath = "./Spotify"
	}
	if c.TempPath == "" {
		c.TempPath = "./temp"
	}
	if c.FFmpegPath == "" {
		c.FFmpegPath = "ffmpeg"
	}
	if c.MP4BoxPath == "" {
		c.MP4BoxPath = "MP4Box"
	}
	if c.MP4DecryptPath == "" {
		c.MP4DecryptPath = "mp4decrypt"
	}
	if c.Aria2cPath == "" {
		c.Aria2cPath = "aria2c"
	}
	if c.Nm3u8DLREPath == "" {
		c.Nm3u8DLREPath = "N_m3u8DL-RE"
	}
	if c.RemuxMode == "" {
		c.RemuxMode = RemuxFFmpeg
	}
	if c.DownloadModeSong == "" {
		c.DownloadModeSong = SongModeYtDlp
	}
	if c.DownloadModeVideo == "" {
		c.DownloadModeVideo = VideoModeYtDlp
	}
	if c.DateTagTemplate == "" {
		c.DateTagTemplate = "%Y-%m-%dT%H:%M:%SZ"
	}
	if c.TemplateFolderAlbum == "" {
		c.TemplateFolderAlbum = "{album_artist}/{album}"
	}
	if c.TemplateFolderCompilation == "" {
		c.TemplateFolderCompilation = "Compilations/{album}"
	}
	if c.TemplateFileSingleDisc == "" {
		c.TemplateFileSingleDisc = "{track:02d} {title}"
	}
	if c.TemplateFileMultiDisc == "" {
		c.TemplateFileMultiDisc = "{disc}-{track:02d} {title}"
	}
	if c.TemplateFolderNoAlbum == "" {
		c.TemplateFolderNoAlbum = "{artist}/Unknown Album"
	}
	if c.TemplateFileNoAlbum == "" {
		c.TemplateFileNoAlbum = "{title}"
	}
	if c.TemplateFolderMusicVideo == "" {
		c.TemplateFolderMusicVideo = "{artist}/Unknown Album"
	}
	if c.TemplateFileMusicVideo == "" {
		c.TemplateFileMusicVideo = "{title}"
	}
	if c.LicenseAttempts == 0 {
		c.LicenseAttempts = 5
	}
	if c.LicenseBackoff == 0 {
		c.LicenseBackoff = 60
	}
	if c.CacheMaxSize == 0 {
		c.CacheMaxSize = 512
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = 3600
	}
	if c.RateLimitRequests == 0 {
		c.RateLimitRequests = 10
	}
	if c.RateLimitWindow == 0 {
		c.RateLimitWindow = 1.0
	}
}

// Validate validates Config.
func (c *Config) Validate() error {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG", "INFO", "WARN", "WARNING", "ERROR", "CRITICAL":
	default:
		return &ConfigError{
			Message: fmt.Sprintf("Invalid log_level: %s. Must be one of: DEBUG, INFO, WARNING, ERROR, CRITICAL", c.LogLevel),
		}
	}

	switch c.RemuxMode {
	case RemuxFFmpeg, RemuxMP4Box, RemuxNative:
	default:
		return &ConfigError{
			Message: fmt.Sprintf("Invalid remux_mode: %s. Must be one of: ffmpeg, mp4box, native", c.RemuxMode),
		}
	}

	switch c.DownloadModeSong {
	case SongModeYtDlp, SongModeAria2c, SongModeHTTP:
	default:
		return &ConfigError{
			Message: fmt.Sprintf("Invalid download_mode_song: %s. Must be one of: ytdlp, aria2c, http", c.DownloadModeSong),
		}
	}

	switch c.DownloadModeVideo {
	case VideoModeYtDlp, VideoModeNm3u8DLRE, VideoModeHTTP:
	default:
		return &ConfigError{
			Message: fmt.Sprintf("Invalid download_mode_video: %s. Must be one of: ytdlp, nm3u8dlre, http", c.DownloadModeVideo),
		}
	}

	if c.Truncate < 0 {
		return &ConfigError{
			Message: fmt.Sprintf("Invalid truncate: %d. Must not be negative", c.Truncate),
		}
	}

	if c.LicenseAttempts < 1 {
		return &ConfigError{
			Message: fmt.Sprintf("Invalid license_attempts: %d. Must be at least 1", c.LicenseAttempts),
		}
	}

	if c.ItemWait < 0 || c.PageWait < 0 || c.LicenseBackoff < 0 {
		return &ConfigError{Message: "item_wait, page_wait and license_backoff must not be negative"}
	}

	templates := map[string]string{
		"template_folder_album":       c.TemplateFolderAlbum,
		"template_folder_compilation": c.TemplateFolderCompilation,
		"template_file_single_disc":   c.TemplateFileSingleDisc,
		"template_file_multi_disc":    c.TemplateFileMultiDisc,
		"template_folder_no_album":    c.TemplateFolderNoAlbum,
		"template_file_no_album":      c.TemplateFileNoAlbum,
		"template_folder_music_video": c.TemplateFolderMusicVideo,
		"template_file_music_video":   c.TemplateFileMusicVideo,
	}
	for name, tmpl := range templates {
		if strings.TrimSpace(tmpl) == "" {
			return &ConfigError{Message: fmt.Sprintf("%s must not be empty", name)}
		}
	}

	return nil
}

// ExcludeTagsList returns the lower-cased entries of ExcludeTags.
func (c *Config) ExcludeTagsList() []string {
	if strings.TrimSpace(c.ExcludeTags) == "" {
		return nil
	}
	parts := strings.Split(c.ExcludeTags, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
