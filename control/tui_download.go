package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sv4u/spotifydl/download"
	"github.com/sv4u/spotifydl/download/queue"
)

const maxErrorsInTUI = 20

// downloadMsg is a message from the service or the log tee.
type downloadMsg struct {
	Progress *download.Progress
	LogErr   string
	Done     bool
	Summary  *download.RunSummary
	Err      error
}

// downloadModel is the Bubble Tea model for the download TUI.
type downloadModel struct {
	completed    int
	skipped      int
	failed       int
	errorCount   int
	urlIndex     int
	urlTotal     int
	itemIndex    int
	itemTotal    int
	currentTrack string
	status       string
	errors       []string
	logPath      string
	interrupting bool
	done         bool
	summary      *download.RunSummary
	execErr      error
	ch           <-chan downloadMsg
	cancel       context.CancelFunc
}

func newDownloadModel(logPath string, ch <-chan downloadMsg, cancel context.CancelFunc) *downloadModel {
	return &downloadModel{
		logPath: logPath,
		errors:  make([]string, 0, maxErrorsInTUI),
		ch:      ch,
		cancel:  cancel,
	}
}

func (m *downloadModel) Init() tea.Cmd {
	return m.waitForMsg()
}

func (m *downloadModel) waitForMsg() tea.Cmd {
	return func() tea.Msg {
		return <-m.ch
	}
}

func (m *downloadModel) addError(s string) {
	m.errors = append(m.errors, s)
	if len(m.errors) > maxErrorsInTUI {
		m.errors = m.errors[len(m.errors)-maxErrorsInTUI:]
	}
}

func (m *downloadModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if !m.interrupting && m.cancel != nil {
				m.interrupting = true
				m.cancel()
			}
		}
		return m, nil
	case downloadMsg:
		switch {
		case msg.LogErr != "":
			m.addError(msg.LogErr)
		case msg.Progress != nil:
			m.applyProgress(*msg.Progress)
		case msg.Done:
			m.done = true
			m.summary = msg.Summary
			m.execErr = msg.Err
			if msg.Summary != nil {
				stats := msg.Summary.Statistics
				m.completed, m.skipped, m.failed = stats.Completed, stats.Skipped, stats.Failed
				m.errorCount = msg.Summary.Errors
			}
			return m, tea.Quit
		}
		return m, m.waitForMsg()
	default:
		return m, nil
	}
}

func (m *downloadModel) applyProgress(p download.Progress) {
	m.urlIndex, m.urlTotal = p.URLIndex, p.URLTotal
	m.itemIndex, m.itemTotal = p.ItemIndex, p.ItemTotal
	m.errorCount = p.Errors
	if p.ItemIndex == 0 {
		m.currentTrack = ""
		m.status = p.Message
		return
	}
	switch p.Status {
	case queue.ItemStatusInProgress:
		m.currentTrack = p.Name
		m.status = ""
	case queue.ItemStatusCompleted:
		m.completed++
		m.currentTrack = ""
	case queue.ItemStatusSkipped:
		m.skipped++
		m.currentTrack = ""
	case queue.ItemStatusFailed:
		m.failed++
		m.currentTrack = ""
	}
}

func (m *downloadModel) View() string {
	var b strings.Builder
	b.WriteString("  spotifydl\n\n")
	if m.urlTotal > 0 {
		b.WriteString(fmt.Sprintf("  URL %d/%d", m.urlIndex, m.urlTotal))
		if m.itemTotal > 0 {
			b.WriteString(fmt.Sprintf("  Track %d/%d", m.itemIndex, m.itemTotal))
		}
		b.WriteString("\n")
	}
	b.WriteString(fmt.Sprintf("  Completed: %d  Skipped: %d  Failed: %d  Errors: %d\n",
		m.completed, m.skipped, m.failed, m.errorCount))
	if m.currentTrack != "" {
		b.WriteString("  Current: " + truncate(m.currentTrack, 60) + "\n")
	} else if m.status != "" {
		b.WriteString("  " + truncate(m.status, 70) + "\n")
	}
	if m.logPath != "" {
		b.WriteString("  Log file: " + m.logPath + "\n")
	}
	b.WriteString("\n")
	if len(m.errors) > 0 {
		b.WriteString("  Recent warnings and errors:\n")
		start := 0
		if len(m.errors) > 10 {
			start = len(m.errors) - 10
		}
		for i := start; i < len(m.errors); i++ {
			b.WriteString("    • " + truncate(m.errors[i], 70) + "\n")
		}
	}
	if m.interrupting && !m.done {
		b.WriteString("\n  Interrupting, waiting for the current step to stop...\n")
	} else if !m.done {
		b.WriteString("\n  Press q to stop.\n")
	}
	return b.String()
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

// runWithTUI runs svc in the background and shows its progress until the run
// ends. Stopping the TUI cancels the run; the summary is returned either way.
func runWithTUI(
	ctx context.Context,
	svc *download.Service,
	urls []string,
	logPath string,
	progress chan download.Progress,
	logErrCh <-chan string,
) (*download.RunSummary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	msgs := make(chan downloadMsg, 64)
	var forward sync.WaitGroup
	forward.Add(1)
	go func() {
		defer forward.Done()
		for p := range progress {
			msgs <- downloadMsg{Progress: &p}
		}
	}()
	if logErrCh != nil {
		go func() {
			for line := range logErrCh {
				select {
				case msgs <- downloadMsg{LogErr: line}:
				default:
				}
			}
		}()
	}
	result := make(chan downloadMsg, 1)
	go func() {
		summary, err := svc.Run(ctx, urls)
		close(progress)
		forward.Wait()
		done := downloadMsg{Done: true, Summary: summary, Err: err}
		result <- done
		msgs <- done
	}()

	model := newDownloadModel(logPath, msgs, cancel)
	final, err := tea.NewProgram(model, tea.WithAltScreen()).Run()
	if dm, ok := final.(*downloadModel); ok && err == nil && dm.done {
		return dm.summary, dm.execErr
	}

	// The program ended before the run did. Keep draining so the service
	// never blocks on a progress send.
	cancel()
	go func() {
		for range msgs {
		}
	}()
	if err != nil {
		log.Printf("WARN: tui_failed error=%v", err)
	}
	done := <-result
	return done.Summary, done.Err
}
