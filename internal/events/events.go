// Package events provides structured event logging for run lifecycle events.
// Events are stored as JSON Lines (JSONL) files, one per run.
package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/polonav/igpctl/internal/config"
)

// EventType classifies a lifecycle event.
type EventType string

const (
	EventLaunch  EventType = "launch"
	EventStart   EventType = "start"
	EventStop    EventType = "stop"
	EventFinish  EventType = "finish"
	EventFail    EventType = "fail"
	EventRestart EventType = "restart"
	EventHealth  EventType = "health"
	EventGC      EventType = "gc"
	EventError   EventType = "error"
)

// Event represents a single entry in a run's event log.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Run       string    `json:"run"`
	Details   string    `json:"details,omitempty"`
}

// Logger writes and reads lifecycle events for runs.
// Events are stored in {runsDir}/{name}/events.jsonl.
type Logger struct {
	paths *config.Paths
}

// NewLogger creates an event logger over the given state layout.
func NewLogger(paths *config.Paths) *Logger {
	return &Logger{paths: paths}
}

func (l *Logger) eventPath(run string) (string, error) {
	dir, err := l.paths.RunDir(run)
	if err != nil {
		return "", err
	}
	return config.EventsPath(dir), nil
}

// Log appends an event to the run's event log.
func (l *Logger) Log(event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	path, err := l.eventPath(event.Run)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create event log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open event log: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	return nil
}

// LogEvent is a convenience method that creates and logs an event.
func (l *Logger) LogEvent(eventType EventType, run, details string) error {
	return l.Log(Event{
		Timestamp: time.Now(),
		Type:      eventType,
		Run:       run,
		Details:   details,
	})
}

// Events reads all events for a run in chronological order.
func (l *Logger) Events(run string) ([]Event, error) {
	path, err := l.eventPath(run)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			continue // Skip malformed lines
		}
		events = append(events, event)
	}

	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("error reading event log: %w", err)
	}

	return events, nil
}

// Remove deletes the event log for a run.
func (l *Logger) Remove(run string) error {
	path, err := l.eventPath(run)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
