package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/lo"
	"github.com/spf13/pflag"

	"github.com/sv4u/spotifydl/download"
	"github.com/sv4u/spotifydl/download/config"
	"github.com/sv4u/spotifydl/download/history"
	"github.com/sv4u/spotifydl/download/license"
	"github.com/sv4u/spotifydl/download/logging"
	"github.com/sv4u/spotifydl/download/media"
	"github.com/sv4u/spotifydl/download/metadata"
	"github.com/sv4u/spotifydl/download/queue"
	"github.com/sv4u/spotifydl/download/spotify"
)

// invocation is a parsed command line merged with the config file and the
// environment.
type invocation struct {
	cfg        *config.Config
	opts       cliOptions
	configPath string
	urls       []string
	flags      *pflag.FlagSet
}

// preParse extracts the flags that decide where the configuration comes
// from. Unknown flags are left for the full parse.
func preParse(args []string) cliOptions {
	var opts cliOptions
	fs := pflag.NewFlagSet("spotifydl", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	bindMetaFlags(fs, &opts)
	_ = fs.Parse(args)
	return opts
}

// loadInvocation resolves settings with the precedence flag > environment >
// config file > default.
func loadInvocation(args []string) (*invocation, error) {
	pre := preParse(args)

	var cfg *config.Config
	switch {
	case pre.Help || pre.Version || pre.NoConfigFile:
		cfg = config.Default()
	default:
		var err error
		cfg, err = config.LoadOrCreate(pre.ConfigPath)
		if err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()

	inv := &invocation{cfg: cfg, configPath: pre.ConfigPath}
	inv.flags = newFlagSet(cfg, &inv.opts)
	inv.flags.SetOutput(io.Discard)
	inv.flags.Usage = func() {}
	if err := inv.flags.Parse(args); err != nil {
		return inv, &usageError{err: err}
	}
	if inv.opts.Help || inv.opts.Version {
		return inv, nil
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return inv, err
	}

	urls := inv.flags.Args()
	if inv.opts.ReadURLsAsTxt {
		var err error
		if urls, err = readURLFiles(urls); err != nil {
			return inv, err
		}
	}
	if len(urls) == 0 {
		return inv, &config.ConfigError{Message: "Missing argument 'URLS...'"}
	}
	inv.urls = urls
	return inv, nil
}

// usageError is a malformed command line.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// readURLFiles reads one URL per line from each path. Blank lines are ignored.
func readURLFiles(paths []string) ([]string, error) {
	var urls []string
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open URL file: %w", err)
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				urls = append(urls, line)
			}
		}
		err = scanner.Err()
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read URL file %s: %w", path, err)
		}
	}
	return urls, nil
}

// checkTools verifies every external binary the selected modes need.
func checkTools(cfg *config.Config) error {
	tools := media.RequiredTools(cfg)
	names := lo.Keys(tools)
	sort.Strings(names)
	for _, name := range names {
		if _, err := exec.LookPath(tools[name]); err != nil {
			return fmt.Errorf("%s not found at %q", name, tools[name])
		}
	}
	return nil
}

func historyDir(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "history")
}

// run is the whole program. It returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	_ = godotenv.Load()

	inv, err := loadInvocation(args)
	if inv != nil && inv.opts.Help {
		printUsage(stdout, inv.flags)
		return ExitSuccess
	}
	if inv != nil && inv.opts.Version {
		fmt.Fprintf(stdout, "spotifydl version %s\n", Version)
		return ExitSuccess
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		var usage *usageError
		if errors.As(err, &usage) {
			printUsage(stderr, inv.flags)
		}
		return ExitStartup
	}
	cfg := inv.cfg

	tui := WantTUI(cfg.NoTUI)
	var console io.Writer = stderr
	if tui {
		console = nil
	}
	logger := logging.New(console, logging.ParseLevel(cfg.LogLevel), "spotifydl")
	defer logger.Close()

	if cfg.LogToFile || tui {
		_, runLog, err := CreateRunDir()
		if err == nil {
			err = logger.SetFile(runLog)
		}
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return ExitStartup
		}
	}
	logPath := logger.Path()

	var logErrCh chan string
	var logOut io.Writer = logging.StdWriter{Logger: logger}
	if tui {
		logErrCh = make(chan string, 64)
		logOut = NewLogTeeWriter(logOut, logErrCh)
	}
	restore := RedirectLog(logOut)
	defer restore()

	var progress chan download.Progress
	if tui {
		progress = make(chan download.Progress, 64)
	}

	log.Printf("INFO: Starting spotifydl %s", Version)
	svc, cleanup, err := setup(inv, hideProgressBars(tui, logger), progress)
	if err != nil {
		if tui {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		log.Printf("ERROR: %v", err)
		return ExitStartup
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var summary *download.RunSummary
	if tui {
		summary, err = runWithTUI(ctx, svc, inv.urls, logPath, progress, logErrCh)
	} else {
		summary, err = svc.Run(ctx, inv.urls)
	}
	if err != nil {
		log.Printf("ERROR: %v", err)
		return ExitStartup
	}
	if tui {
		stats := summary.Statistics
		fmt.Fprintf(stdout, "Done (%d error(s)): %d completed, %d skipped, %d failed. Log file: %s\n",
			summary.Errors, stats.Completed, stats.Skipped, stats.Failed, logPath)
	}
	if summary.Interrupted {
		log.Printf("WARN: Interrupted, %d error(s)", summary.Errors)
		return ExitInterrupted
	}
	return ExitSuccess
}

// setup builds the whole pipeline. The returned cleanup logs cache and rate
// limit statistics and releases the client.
func setup(inv *invocation, hideProgress bool, progress chan<- download.Progress) (*download.Service, func(), error) {
	cfg := inv.cfg

	if err := checkTools(cfg); err != nil {
		return nil, nil, err
	}
	if _, err := os.Stat(cfg.CookiesPath); err != nil {
		return nil, nil, fmt.Errorf("cookies file not found at %q", cfg.CookiesPath)
	}
	cookies, err := spotify.ParseCookiesFile(cfg.CookiesPath)
	if err != nil {
		return nil, nil, err
	}

	log.Printf("DEBUG: Setting up Spotify API")
	client, err := spotify.NewClient(context.Background(), spotify.Config{
		Cookies:              cookies,
		CacheMaxSize:         cfg.CacheMaxSize,
		CacheTTL:             cfg.CacheTTL,
		CacheCleanupInterval: time.Minute,
		RateLimitEnabled:     cfg.RateLimitEnabled,
		RateLimitRequests:    cfg.RateLimitRequests,
		RateLimitWindow:      cfg.RateLimitWindow,
		PageWait:             time.Duration(cfg.PageWait * float64(time.Second)),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up Spotify API: %w", err)
	}
	fail := func(err error) (*download.Service, func(), error) {
		client.Close()
		return nil, nil, err
	}

	if !client.IsPremium() {
		if cfg.DownloadMusicVideo {
			return fail(errors.New("Cannot download music videos with a free account"))
		}
		if cfg.PremiumQuality {
			return fail(errors.New("Cannot download at chosen quality with a free account"))
		}
	}

	cdm, err := license.NewWidevineCDM(cfg.WVDPath)
	if err != nil {
		return fail(err)
	}
	keys := license.NewExchanger(client, cdm)
	keys.Attempts = cfg.LicenseAttempts
	keys.Backoff = time.Duration(cfg.LicenseBackoff * float64(time.Second))

	stream, err := media.NewDownloader(cfg, hideProgress)
	if err != nil {
		return fail(err)
	}
	segments, err := media.NewSegmentDownloader(cfg, hideProgress)
	if err != nil {
		return fail(err)
	}
	remuxer, err := media.NewRemuxer(cfg)
	if err != nil {
		return fail(err)
	}

	templater := metadata.NewTemplater(download.TemplateConfigFrom(cfg))
	d := download.NewDownloader(download.OptionsFromConfig(cfg), download.Components{
		Client:    client,
		Keys:      keys,
		Stream:    stream,
		Segments:  segments,
		Remuxer:   remuxer,
		Tagger:    metadata.NewEmbedder(cfg.ExcludeTagsList()),
		Templater: templater,
	})

	var tracker *history.Tracker
	if !inv.opts.NoConfigFile {
		tracker, err = history.NewTracker(historyDir(inv.configPath), history.DefaultRetention)
		if err != nil {
			log.Printf("WARN: Run history disabled: %v", err)
			tracker = nil
		}
	}

	opts := download.ServiceOptions{
		ItemWait:        time.Duration(cfg.ItemWait * float64(time.Second)),
		PrintExceptions: cfg.PrintExceptions,
		Templater:       templater,
		History:         tracker,
	}
	if progress != nil {
		opts.Progress = progress
	}
	svc := download.NewService(queue.NewBuilder(client), d, opts)
	cleanup := func() {
		logRunStats(client.GetCacheStats(), client.GetRateLimitInfo(), d.GetFileExistenceCacheStats())
		client.Close()
	}
	return svc, cleanup, nil
}

// hideProgressBars reports whether download progress bars stay off: the TUI
// owns the terminal, or the console only shows warnings and errors.
func hideProgressBars(tui bool, logger *logging.Logger) bool {
	return tui || !logger.Enabled(logging.LogLevelInfo)
}

// logRunStats reports cache and rate limit state at the end of a run.
func logRunStats(albums spotify.CacheStats, limit *spotify.RateLimitInfo, files map[string]int) {
	log.Printf("DEBUG: album_cache_stats hits=%d misses=%d evictions=%d size=%d max_size=%d hit_rate=%.2f",
		albums.Hits, albums.Misses, albums.Evictions, albums.Size, albums.MaxSize, albums.HitRate)
	if limit != nil && limit.Active {
		log.Printf("DEBUG: rate_limit_active retry_after=%s until=%s",
			limit.RetryAfter, limit.Until.Format(time.RFC3339))
	} else {
		log.Printf("DEBUG: rate_limit_inactive")
	}
	log.Printf("DEBUG: file_cache_stats size=%d max_size=%d", files["size"], files["max_size"])
}
