package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/sv4u/spotifydl/download/config"
)

var (
	// Version is set at build time via ldflags
	// Example: go build -ldflags="-X main.Version=v1.2.3"
	Version = "dev"
)

// Exit codes.
const (
	ExitSuccess     = 0
	ExitStartup     = 1
	ExitInterrupted = 130
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// cliOptions are the flags that are never persisted.
type cliOptions struct {
	ConfigPath    string
	NoConfigFile  bool
	ReadURLsAsTxt bool
	Version       bool
	Help          bool
}

func bindMetaFlags(fs *pflag.FlagSet, opts *cliOptions) {
	fs.StringVar(&opts.ConfigPath, "config-path", config.DefaultConfigPath(), "Path to config file.")
	fs.BoolVarP(&opts.NoConfigFile, "no-config-file", "n", false, "Do not use a config file.")
	fs.BoolVarP(&opts.ReadURLsAsTxt, "read-urls-as-txt", "r", false, "Interpret URLs as paths to text files containing URLs separated by newlines.")
	fs.BoolVarP(&opts.Version, "version", "v", false, "Show the version and exit.")
	fs.BoolVarP(&opts.Help, "help", "h", false, "Show this message and exit.")
}

// bindConfigFlags binds every persisted setting to cfg. Defaults are the
// current cfg values, so only flags given on the command line change it.
func bindConfigFlags(fs *pflag.FlagSet, cfg *config.Config) {
	fs.BoolVar(&cfg.DownloadMusicVideo, "download-music-video", cfg.DownloadMusicVideo, "Download music videos instead of songs when one is linked.")
	fs.BoolVarP(&cfg.SaveCover, "save-cover", "s", cfg.SaveCover, "Save cover as a separate file.")
	fs.BoolVar(&cfg.Overwrite, "overwrite", cfg.Overwrite, "Overwrite existing files.")
	fs.BoolVarP(&cfg.LrcOnly, "lrc-only", "l", cfg.LrcOnly, "Download only the synced lyrics.")
	fs.BoolVar(&cfg.NoLrc, "no-lrc", cfg.NoLrc, "Do not download the synced lyrics.")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (DEBUG, INFO, WARN, ERROR).")
	fs.BoolVar(&cfg.LogToFile, "log-to-file", cfg.LogToFile, "Also write JSON log lines to a per-run log file.")
	fs.BoolVar(&cfg.PrintExceptions, "print-exceptions", cfg.PrintExceptions, "Print the full error chain of failures.")
	fs.StringVarP(&cfg.CookiesPath, "cookies-path", "c", cfg.CookiesPath, "Path to .txt cookies file.")
	fs.StringVarP(&cfg.OutputPath, "output-path", "o", cfg.OutputPath, "Path to output directory.")
	fs.StringVar(&cfg.TempPath, "temp-path", cfg.TempPath, "Path to temporary directory.")
	fs.StringVar(&cfg.WVDPath, "wvd-path", cfg.WVDPath, "Path to .wvd file.")
	fs.StringVar(&cfg.FFmpegPath, "ffmpeg-path", cfg.FFmpegPath, "Path to FFmpeg binary.")
	fs.StringVar(&cfg.MP4BoxPath, "mp4box-path", cfg.MP4BoxPath, "Path to MP4Box binary.")
	fs.StringVar(&cfg.MP4DecryptPath, "mp4decrypt-path", cfg.MP4DecryptPath, "Path to mp4decrypt binary.")
	fs.StringVar(&cfg.Aria2cPath, "aria2c-path", cfg.Aria2cPath, "Path to aria2c binary.")
	fs.StringVar(&cfg.Nm3u8DLREPath, "nm3u8dlre-path", cfg.Nm3u8DLREPath, "Path to N_m3u8DL-RE binary.")
	fs.Var(newEnumValue((*string)(&cfg.RemuxMode)), "remux-mode", "Remux mode (ffmpeg, mp4box, native).")
	fs.StringVar(&cfg.DateTagTemplate, "date-tag-template", cfg.DateTagTemplate, "Date tag template (strftime).")
	fs.StringVar(&cfg.ExcludeTags, "exclude-tags", cfg.ExcludeTags, "Comma-separated tags to exclude.")
	fs.IntVar(&cfg.Truncate, "truncate", cfg.Truncate, "Maximum length of the file/folder names.")
	fs.StringVar(&cfg.TemplateFolderAlbum, "template-folder-album", cfg.TemplateFolderAlbum, "Template of the album folders.")
	fs.StringVar(&cfg.TemplateFolderCompilation, "template-folder-compilation", cfg.TemplateFolderCompilation, "Template of the compilation album folders.")
	fs.StringVar(&cfg.TemplateFileSingleDisc, "template-file-single-disc", cfg.TemplateFileSingleDisc, "Template of the song files for single-disc albums.")
	fs.StringVar(&cfg.TemplateFileMultiDisc, "template-file-multi-disc", cfg.TemplateFileMultiDisc, "Template of the song files for multi-disc albums.")
	fs.StringVar(&cfg.TemplateFolderNoAlbum, "template-folder-no-album", cfg.TemplateFolderNoAlbum, "Template of the folders without an album.")
	fs.StringVar(&cfg.TemplateFileNoAlbum, "template-file-no-album", cfg.TemplateFileNoAlbum, "Template of the files without an album.")
	fs.StringVar(&cfg.TemplateFilePlaylist, "template-file-playlist", cfg.TemplateFilePlaylist, "Template of the playlist files; empty disables them.")
	fs.StringVar(&cfg.TemplateFolderMusicVideo, "template-folder-music-video", cfg.TemplateFolderMusicVideo, "Template of the music video folders.")
	fs.StringVar(&cfg.TemplateFileMusicVideo, "template-file-music-video", cfg.TemplateFileMusicVideo, "Template of the music video files.")
	fs.Var(newEnumValue((*string)(&cfg.DownloadModeSong)), "download-mode-song", "Download mode for songs (ytdlp, aria2c, http).")
	fs.Var(newEnumValue((*string)(&cfg.DownloadModeVideo)), "download-mode-video", "Download mode for videos (ytdlp, nm3u8dlre, http).")
	fs.BoolVarP(&cfg.PremiumQuality, "premium-quality", "p", cfg.PremiumQuality, "Download songs in premium quality.")
	fs.BoolVar(&cfg.ReplaceJoinChars, "replace-join-chars", cfg.ReplaceJoinChars, "Join multiple artists with \" / \".")
	fs.Float64Var(&cfg.ItemWait, "item-wait", cfg.ItemWait, "Seconds to wait between queue items.")
	fs.BoolVar(&cfg.NoTUI, "no-tui", cfg.NoTUI, "Disable the interactive progress view.")
}

// enumValue is a string flag whose target has a named string type.
type enumValue struct{ p *string }

func newEnumValue(p *string) *enumValue { return &enumValue{p: p} }

func (v *enumValue) String() string {
	if v.p == nil {
		return ""
	}
	return *v.p
}

func (v *enumValue) Set(s string) error {
	*v.p = s
	return nil
}

func (v *enumValue) Type() string { return "string" }

func newFlagSet(cfg *config.Config, opts *cliOptions) *pflag.FlagSet {
	fs := pflag.NewFlagSet("spotifydl", pflag.ContinueOnError)
	fs.SortFlags = false
	bindMetaFlags(fs, opts)
	bindConfigFlags(fs, cfg)
	return fs
}

func printUsage(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintf(w, `spotifydl - Download songs, music videos and podcast episodes from Spotify

USAGE:
    spotifydl [flags] URL...

URLS:
    https://open.spotify.com/track/<id>
    https://open.spotify.com/album/<id>
    https://open.spotify.com/playlist/<id>

FLAGS:
%s
EXAMPLES:
    spotifydl https://open.spotify.com/album/1ATL5GLyefJaxhQzSPVrLX
    spotifydl -p -s --download-mode-song http https://open.spotify.com/track/4iV5W9uYEdYUVa79Axb7Rh
    spotifydl -r urls.txt
`, fs.FlagUsages())
}
