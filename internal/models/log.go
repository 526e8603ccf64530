package models

import (
	"time"

	"github.com/Rorical/PromptMachine/internal/stream"
)

// Action names one of the two operations an operator can start.
type Action string

const (
	Generate Action = "generate"
	Modify   Action = "modify"
)

type Source int

const (
	// Server entries come from the relay's log events.
	Server Source = iota
	// Client entries are notices raised locally, such as retries.
	Client
)

// LogEntry is one line of the activity log.
type LogEntry struct {
	Time     time.Time
	Elapsed  string
	Message  string
	Severity stream.Severity
	Source   Source
	Action   Action
}

func ServerEntry(action Action, ev stream.LogEvent) LogEntry {
	return LogEntry{
		Time:     time.Now(),
		Elapsed:  ev.Elapsed,
		Message:  ev.Message,
		Severity: ev.Severity,
		Source:   Server,
		Action:   action,
	}
}

func ClientEntry(action Action, sev stream.Severity, msg string) LogEntry {
	return LogEntry{
		Time:     time.Now(),
		Message:  msg,
		Severity: sev,
		Source:   Client,
		Action:   action,
	}
}
