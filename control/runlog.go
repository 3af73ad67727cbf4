package main

import (
	"bytes"
	"io"
	"log"
	"strings"
	"sync"
)

// LogTeeWriter forwards log output to another writer and copies every
// ERROR/WARN line to a channel for TUI display. Sends never block; lines are
// dropped when the channel is full.
type LogTeeWriter struct {
	out    io.Writer
	errors chan<- string
	mu     sync.Mutex
	buf    []byte
}

// NewLogTeeWriter creates a writer that writes to out and sends ERROR/WARN lines to errCh (if non-nil).
func NewLogTeeWriter(out io.Writer, errCh chan<- string) *LogTeeWriter {
	return &LogTeeWriter{out: out, errors: errCh}
}

// Write implements io.Writer. Partial lines are held until their newline arrives.
func (w *LogTeeWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	n, err = w.out.Write(p)
	if err != nil || w.errors == nil {
		return n, err
	}
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		line := string(w.buf[:i])
		w.buf = w.buf[i+1:]
		if strings.HasPrefix(line, "ERROR:") || strings.HasPrefix(line, "WARN:") {
			select {
			case w.errors <- line:
			default:
			}
		}
	}
	return n, nil
}

// RedirectLog points the standard logger at w without flags or prefix and
// returns a func that restores the previous settings.
func RedirectLog(w io.Writer) (restore func()) {
	oldFlags := log.Flags()
	oldPrefix := log.Prefix()
	oldOut := log.Writer()
	log.SetOutput(w)
	log.SetFlags(0)
	log.SetPrefix("")
	return func() {
		log.SetOutput(oldOut)
		log.SetFlags(oldFlags)
		log.SetPrefix(oldPrefix)
	}
}
