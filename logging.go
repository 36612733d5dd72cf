package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"treemirror/config"
)

const (
	logTimestampLayout = "2006/01/02 15:04:05"
	logFileDateLayout  = "02-Jan-2006"
)

type lineSink interface {
	WriteLine(line string, now time.Time)
	Close() error
}

type ioLineSink struct {
	w             io.Writer
	withTimestamp bool
}

func (s *ioLineSink) WriteLine(line string, now time.Time) {
	if s == nil || s.w == nil {
		return
	}
	if s.withTimestamp {
		line = formatLogTimestamp(now) + " " + line
	}
	_, _ = io.WriteString(s.w, line+"\n")
}

func (s *ioLineSink) Close() error {
	return nil
}

// dailyFileSink writes one file per day under dir and deletes files older
// than the retention window on startup and on rotation.
type dailyFileSink struct {
	dir           string
	retentionDays int
	currentDate   string
	file          *os.File
	mu            sync.Mutex
}

func newDailyFileSink(dir string, retentionDays int) (*dailyFileSink, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, fmt.Errorf("log directory is empty")
	}
	if retentionDays <= 0 {
		retentionDays = 7
	}
	if err := os.MkdirAll(trimmed, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %q: %w", trimmed, err)
	}
	if err := cleanupOldLogs(trimmed, time.Now().UTC(), retentionDays); err != nil {
		fmt.Fprintf(os.Stderr, "Logging: cleanup failed for %s: %v\n", trimmed, err)
	}
	return &dailyFileSink{dir: trimmed, retentionDays: retentionDays}, nil
}

func (s *dailyFileSink) WriteLine(line string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	date := now.UTC().Format(logFileDateLayout)
	if s.file == nil || date != s.currentDate {
		if s.file != nil {
			s.file.Close()
			if err := cleanupOldLogs(s.dir, now.UTC(), s.retentionDays); err != nil {
				fmt.Fprintf(os.Stderr, "Logging: cleanup failed: %v\n", err)
			}
		}
		path := filepath.Join(s.dir, "treemirror-"+date+".log")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Logging: open %s: %v\n", path, err)
			return
		}
		s.file = f
		s.currentDate = date
	}
	fmt.Fprintf(s.file, "%s %s\n", formatLogTimestamp(now), line)
}

func (s *dailyFileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		err := s.file.Close()
		s.file = nil
		return err
	}
	return nil
}

// logFanout duplicates every log line to the console and the file sink and
// satisfies io.Writer so it can back the stdlib logger.
type logFanout struct {
	mu      sync.Mutex
	console lineSink
	file    lineSink
	partial []byte
}

func newLogFanout(console lineSink, file lineSink) *logFanout {
	return &logFanout{console: console, file: file}
}

// setupLogging installs the fanout as the stdlib log output.
func setupLogging(cfg config.LoggingConfig, console io.Writer) (*logFanout, error) {
	var consoleSink lineSink
	if cfg.Console && console != nil {
		consoleSink = &ioLineSink{w: console, withTimestamp: true}
	}
	var fileSink lineSink
	if strings.TrimSpace(cfg.Dir) != "" {
		sink, err := newDailyFileSink(cfg.Dir, cfg.RetentionDays)
		if err != nil {
			return nil, err
		}
		fileSink = sink
	}
	return newLogFanout(consoleSink, fileSink), nil
}

func (f *logFanout) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	f.partial = append(f.partial, p...)
	for {
		idx := -1
		for i, b := range f.partial {
			if b == '\n' {
				idx = i
				break
			}
		}
		if idx < 0 {
			break
		}
		line := strings.TrimRight(string(f.partial[:idx]), "\r")
		f.partial = f.partial[idx+1:]
		if f.console != nil {
			f.console.WriteLine(line, now)
		}
		if f.file != nil {
			f.file.WriteLine(line, now)
		}
	}
	return len(p), nil
}

func (f *logFanout) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var err error
	if f.console != nil {
		if e := f.console.Close(); e != nil {
			err = e
		}
	}
	if f.file != nil {
		if e := f.file.Close(); e != nil {
			err = e
		}
	}
	return err
}

func formatLogTimestamp(now time.Time) string {
	return now.Format(logTimestampLayout)
}

func cleanupOldLogs(dir string, now time.Time, retentionDays int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	cutoff := now.AddDate(0, 0, -retentionDays)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "treemirror-") || !strings.HasSuffix(name, ".log") {
			continue
		}
		dateStr := strings.TrimSuffix(strings.TrimPrefix(name, "treemirror-"), ".log")
		date, err := time.Parse(logFileDateLayout, dateStr)
		if err != nil {
			continue
		}
		if date.Before(cutoff) {
			_ = os.Remove(filepath.Join(dir, name))
		}
	}
	return nil
}
