package download

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sv4u/spotifydl/download/history"
	"github.com/sv4u/spotifydl/download/metadata"
	"github.com/sv4u/spotifydl/download/queue"
)

// ServiceState represents the state of the download service.
type ServiceState string

const (
	ServiceStateIdle        ServiceState = "idle"
	ServiceStateRunning     ServiceState = "running"
	ServiceStateCompleted   ServiceState = "completed"
	ServiceStateInterrupted ServiceState = "interrupted"
)

// ServicePhase represents the current execution phase.
type ServicePhase string

const (
	ServicePhaseIdle      ServicePhase = "idle"
	ServicePhaseResolving ServicePhase = "resolving"
	ServicePhaseExecuting ServicePhase = "executing"
	ServicePhaseCompleted ServicePhase = "completed"
)

// Resolver expands a source URL into queue items.
type Resolver interface {
	Resolve(ctx context.Context, url string) ([]*queue.Item, error)
}

// ItemDownloader runs the pipeline for one item.
type ItemDownloader interface {
	Download(ctx context.Context, item *queue.Item) (*Result, error)
}

// Progress is emitted after every status change of an item.
type Progress struct {
	URLIndex  int // 1-based
	URLTotal  int
	ItemIndex int // 1-based, 0 while resolving
	ItemTotal int
	Name      string
	Status    queue.ItemStatus
	Message   string
	Errors    int
}

// ServiceOptions configure a Service. History, Templater and Progress are
// optional.
type ServiceOptions struct {
	ItemWait        time.Duration
	PrintExceptions bool
	Templater       *metadata.Templater // writes playlist files when set
	History         *history.Tracker
	Progress        chan<- Progress
}

// RunSummary is the result of Service.Run.
type RunSummary struct {
	RunID       string
	Errors      int
	Statistics  queue.Statistics
	Interrupted bool
}

// Service orchestrates a whole run: URL resolution, the per-item pipeline,
// playlist files and run history.
type Service struct {
	resolver   Resolver
	downloader ItemDownloader
	opts       ServiceOptions

	mu          sync.RWMutex
	state       ServiceState
	phase       ServicePhase
	queues      []*queue.Queue
	startedAt   *time.Time
	completedAt *time.Time
}

// NewService creates a new download service.
func NewService(resolver Resolver, downloader ItemDownloader, opts ServiceOptions) *Service {
	return &Service{
		resolver:   resolver,
		downloader: downloader,
		opts:       opts,
		state:      ServiceStateIdle,
		phase:      ServicePhaseIdle,
	}
}

func (s *Service) setPhase(phase ServicePhase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != phase {
		log.Printf("DEBUG: phase_transition phase=%s -> %s", s.phase, phase)
		s.phase = phase
	}
}

func (s *Service) emit(p Progress) {
	if s.opts.Progress == nil {
		return
	}
	s.opts.Progress <- p
}

func (s *Service) logFailure(message string, err error) {
	if s.opts.PrintExceptions {
		log.Printf("ERROR: %s: %v", message, err)
		return
	}
	log.Printf("ERROR: %s", message)
}

// Run processes every URL in order. Item failures are counted and the run
// continues; only context cancellation stops it early.
func (s *Service) Run(ctx context.Context, urls []string) (*RunSummary, error) {
	s.mu.Lock()
	if s.state == ServiceStateRunning {
		s.mu.Unlock()
		return nil, fmt.Errorf("service is already running")
	}
	now := time.Now()
	s.state = ServiceStateRunning
	s.startedAt = &now
	s.completedAt = nil
	s.queues = nil
	s.mu.Unlock()

	summary := &RunSummary{RunID: uuid.NewString()}
	if s.opts.History != nil {
		s.opts.History.StartRun(summary.RunID, urls)
	}

	for urlIndex, url := range urls {
		if ctx.Err() != nil {
			break
		}
		s.runURL(ctx, url, urlIndex+1, len(urls), summary)
	}

	summary.Interrupted = ctx.Err() != nil
	for _, q := range s.Queues() {
		summary.Statistics.Add(q.Statistics())
	}

	s.mu.Lock()
	done := time.Now()
	s.completedAt = &done
	s.state = ServiceStateCompleted
	if summary.Interrupted {
		s.state = ServiceStateInterrupted
	}
	s.mu.Unlock()
	s.setPhase(ServicePhaseCompleted)

	if s.opts.History != nil {
		state := history.StateCompleted
		if summary.Interrupted {
			state = history.StateInterrupted
		}
		stats := summary.Statistics
		if err := s.opts.History.StopRun(state, summary.Errors, map[string]int{
			"completed": stats.Completed,
			"skipped":   stats.Skipped,
			"failed":    stats.Failed,
			"pending":   stats.Pending,
			"total":     stats.Total,
		}, s.GetStatus()); err != nil {
			log.Printf("WARN: history_save_failed run_id=%s error=%v", summary.RunID, err)
		}
	}

	log.Printf("INFO: Done (%d error(s))", summary.Errors)
	return summary, nil
}

func (s *Service) runURL(ctx context.Context, url string, urlIndex, urlTotal int, summary *RunSummary) {
	s.setPhase(ServicePhaseResolving)
	s.emit(Progress{URLIndex: urlIndex, URLTotal: urlTotal, Message: fmt.Sprintf("Checking %s", url), Errors: summary.Errors})

	items, err := s.resolver.Resolve(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		summary.Errors++
		s.logFailure(fmt.Sprintf("(URL %d/%d) Failed to check %q", urlIndex, urlTotal, url), err)
		s.emit(Progress{URLIndex: urlIndex, URLTotal: urlTotal, Status: queue.ItemStatusFailed, Message: err.Error(), Errors: summary.Errors})
		return
	}

	q := queue.NewQueue(url, items)
	s.mu.Lock()
	s.queues = append(s.queues, q)
	s.mu.Unlock()

	s.setPhase(ServicePhaseExecuting)
	var playlistPath string
	for i, item := range q.Items {
		if ctx.Err() != nil {
			return
		}
		if i > 0 && s.opts.ItemWait > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.opts.ItemWait):
			}
		}

		update := Progress{
			URLIndex:  urlIndex,
			URLTotal:  urlTotal,
			ItemIndex: i + 1,
			ItemTotal: len(q.Items),
			Name:      item.Name,
			Status:    queue.ItemStatusInProgress,
			Errors:    summary.Errors,
		}
		s.emit(update)

		progress := fmt.Sprintf("Track %d/%d from URL %d/%d", i+1, len(q.Items), urlIndex, urlTotal)
		res := s.runItem(ctx, item, progress, summary)

		update.Status, update.Message, _ = item.Snapshot()
		update.Errors = summary.Errors
		s.emit(update)
		s.record(url, item)

		if playlistPath == "" && res != nil && res.Tags != nil && s.opts.Templater != nil {
			p, err := s.opts.Templater.PlaylistPath(res.Tags)
			if err != nil {
				log.Printf("WARN: playlist_path_failed url=%s error=%v", url, err)
			}
			playlistPath = p
		}
	}

	if playlistPath != "" {
		n, err := queue.WriteM3U(playlistPath, q.Items)
		if err != nil {
			log.Printf("WARN: playlist_write_failed path=%s error=%v", playlistPath, err)
			return
		}
		log.Printf("INFO: playlist_written path=%s entries=%d", playlistPath, n)
	}
}

// runItem downloads one item and maps the outcome onto its status.
func (s *Service) runItem(ctx context.Context, item *queue.Item, progress string, summary *RunSummary) *Result {
	log.Printf("INFO: (%s) Downloading %q", progress, item.Name)
	item.MarkStarted()

	res, err := s.downloader.Download(ctx, item)
	switch {
	case err == nil:
	case errors.Is(err, ErrVideoLrcOnly):
		log.Printf("WARN: (%s) %v, skipping", progress, err)
		item.MarkSkipped("", err.Error())
		return nil
	case IsSkip(err):
		log.Printf("ERROR: (%s) %v, skipping", progress, err)
		item.MarkSkipped("", err.Error())
		return nil
	case ctx.Err() != nil:
		item.MarkFailed(ctx.Err().Error())
		return nil
	default:
		summary.Errors++
		s.logFailure(fmt.Sprintf("(%s) Failed to download %q", progress, item.Name), err)
		item.MarkFailed(err.Error())
		return nil
	}

	switch res.Outcome {
	case OutcomeExists:
		noun := "Track"
		if res.Kind == metadata.PathKindMusicVideo {
			noun = "Music video"
		}
		log.Printf("WARN: (%s) %s already exists at %q, skipping", progress, noun, res.FilePath)
		item.MarkSkipped(res.FilePath, "already exists")
	case OutcomeLrcOnly:
		item.MarkSkipped(res.FilePath, "lrc only")
	default:
		item.MarkCompleted(res.FilePath)
	}
	return res
}

func (s *Service) record(url string, item *queue.Item) {
	if s.opts.History == nil {
		return
	}
	status, errMsg, filePath := item.Snapshot()
	s.opts.History.RecordItem(history.ItemRecord{
		URL:       url,
		Position:  item.Position,
		SpotifyID: item.SpotifyID,
		Name:      item.Name,
		Status:    string(status),
		FilePath:  filePath,
		Error:     errMsg,
		At:        time.Now(),
	})
}

// Queues returns the queues resolved so far in this run.
func (s *Service) Queues() []*queue.Queue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*queue.Queue(nil), s.queues...)
}

// GetStatus returns the current service status.
func (s *Service) GetStatus() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := map[string]any{
		"state": s.state,
		"phase": s.phase,
	}
	if s.startedAt != nil {
		status["started_at"] = s.startedAt.Format(time.RFC3339)
	}
	if s.completedAt != nil {
		status["completed_at"] = s.completedAt.Format(time.RFC3339)
	}

	var stats queue.Statistics
	for _, q := range s.queues {
		stats.Add(q.Statistics())
	}
	status["queue_stats"] = stats
	if stats.Total > 0 {
		done := stats.Completed + stats.Skipped + stats.Failed
		status["progress_percentage"] = float64(done) / float64(stats.Total) * 100
	} else {
		status["progress_percentage"] = 0.0
	}
	return status
}
