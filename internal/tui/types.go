package tui

import (
	"time"

	"codeberg.org/freetier/gateway/api/rest/status"
)

// main TUI application model
type Model struct {
	client   *StatusClient
	interval time.Duration
	width    int

	status    *status.Response
	healthy   bool
	err       error
	lastPoll  time.Time
	fetching  bool
	pollCount int
}

// sent when a poll completes
type StatusMsg struct {
	status  *status.Response
	healthy bool
	at      time.Time
}

// sent when a poll fails
type ErrorMsg struct {
	err error
	at  time.Time
}

// fires on every poll interval
type tickMsg time.Time
