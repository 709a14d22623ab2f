// Package applog provides the process's structured diagnostic logger and
// an optional daily-rotated CSV connection-activity log.
//
// The CSV activity log rotates by UTC date in the filename, writes a
// header only for a newly created file, and appends one row per event.
package applog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
)

// New builds the process-wide structured logger, writing to w at the
// given level.
func New(w *os.File, level log.Level) *log.Logger {
	l := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Level:           level,
	})
	return l
}

// Event is one connection-lifecycle occurrence worth recording.
type Event string

const (
	EventNew   Event = "NEW"
	EventReset Event = "RESET"
	EventReap  Event = "REAP"
)

// ActivityLog appends one CSV row per connection event to a daily-named
// file in a directory.
type ActivityLog struct {
	mu       sync.Mutex
	dir      string
	pattern  *strftime.Strftime
	fp       *os.File
	openName string
}

// NewActivityLog prepares a daily-rotated CSV log under dir. dir is
// created if it does not already exist. An empty dir disables the log;
// Write becomes a no-op.
func NewActivityLog(dir string) (*ActivityLog, error) {
	if dir == "" {
		return &ActivityLog{}, nil
	}

	if stat, err := os.Stat(dir); err != nil {
		if mkErr := os.Mkdir(dir, 0o755); mkErr != nil {
			return nil, fmt.Errorf("creating activity log directory %s: %w", dir, mkErr)
		}
	} else if !stat.IsDir() {
		return nil, fmt.Errorf("activity log location %s is not a directory", dir)
	}

	pattern, err := strftime.New("%Y-%m-%d.csv")
	if err != nil {
		return nil, err
	}

	return &ActivityLog{dir: dir, pattern: pattern}, nil
}

// Write appends one event row, rotating to a new daily file if the date
// has changed since the last write.
func (a *ActivityLog) Write(now time.Time, connKey uint64, event Event, detail string) error {
	if a.dir == "" {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	name := a.pattern.FormatString(now.UTC())
	if a.fp != nil && name != a.openName {
		a.closeLocked()
	}

	if a.fp == nil {
		fullPath := filepath.Join(a.dir, name)
		_, statErr := os.Stat(fullPath)
		alreadyThere := statErr == nil

		f, err := os.OpenFile(fullPath, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0o644)
		if err != nil {
			return fmt.Errorf("opening activity log %s: %w", fullPath, err)
		}
		a.fp = f
		a.openName = name

		if !alreadyThere {
			fmt.Fprintf(a.fp, "utime,isotime,conn_key,event,detail\n")
		}
	}

	w := csv.NewWriter(a.fp)
	row := []string{
		strconv.FormatInt(now.Unix(), 10),
		now.UTC().Format(time.RFC3339),
		strconv.FormatUint(connKey, 10),
		string(event),
		detail,
	}
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func (a *ActivityLog) closeLocked() {
	if a.fp != nil {
		a.fp.Close()
		a.fp = nil
		a.openName = ""
	}
}

// Close releases the currently open log file, if any.
func (a *ActivityLog) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closeLocked()
}
