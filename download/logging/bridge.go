package logging

import (
	"bytes"
	"regexp"
	"strings"
)

// StdWriter adapts a Logger to the standard library log package. Lines that
// start with "DEBUG:", "INFO:", "WARN:" or "ERROR:" are routed to the
// matching level; anything else is logged at INFO. For event lines such as
// "remux_failed tool=ffmpeg error=exit 1" the event name becomes the file
// entry's operation and the error= value its error.
//
//	log.SetFlags(0)
//	log.SetOutput(logging.StdWriter{Logger: l})
type StdWriter struct {
	Logger *Logger
}

var stdPrefixes = []struct {
	prefix string
	level  LogLevel
}{
	{"DEBUG:", LogLevelDebug},
	{"INFO:", LogLevelInfo},
	{"WARNING:", LogLevelWarn},
	{"WARN:", LogLevelWarn},
	{"ERROR:", LogLevelError},
}

func (w StdWriter) Write(p []byte) (int, error) {
	for _, raw := range bytes.Split(bytes.TrimRight(p, "\n"), []byte("\n")) {
		line := string(raw)
		if strings.TrimSpace(line) == "" {
			continue
		}
		level, msg := splitLevel(line)
		w.Logger.log(level, msg, eventName(msg), errorField(msg))
	}
	return len(p), nil
}

func splitLevel(line string) (LogLevel, string) {
	for _, sp := range stdPrefixes {
		if strings.HasPrefix(line, sp.prefix) {
			return sp.level, strings.TrimSpace(strings.TrimPrefix(line, sp.prefix))
		}
	}
	return LogLevelInfo, line
}

var eventRe = regexp.MustCompile(`^[a-z0-9]+(?:_[a-z0-9]+)+$`)

// eventName returns the leading snake_case token of msg, if any.
func eventName(msg string) string {
	first, _, _ := strings.Cut(msg, " ")
	if eventRe.MatchString(first) {
		return first
	}
	return ""
}

// errorField returns everything after " error=". Errors go last on a line.
func errorField(msg string) string {
	if _, after, ok := strings.Cut(msg, " error="); ok {
		return strings.TrimSpace(after)
	}
	return ""
}
