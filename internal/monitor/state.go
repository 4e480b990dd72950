package monitor

import (
	"errors"
	"time"
)

var (
	// ErrAlreadyRunning is returned by Start when the loop is active.
	ErrAlreadyRunning = errors.New("monitor already running")
	// ErrNotRunning is returned by Stop when the loop is not active.
	ErrNotRunning = errors.New("monitor not running")
	// ErrNoCredentials is returned by Start when credentials are missing.
	ErrNoCredentials = errors.New("bilibili credentials not configured")

	// ErrAuthInvalid marks a credential rejection. The loop stops permanently
	// instead of restarting, since retries with the same cookies cannot help.
	ErrAuthInvalid = errors.New("credentials rejected by remote")
	// ErrRestartFailed marks an exhausted inactivity-restart budget.
	ErrRestartFailed = errors.New("soft restart attempts exhausted")
)

// Status is a point-in-time snapshot of the polling loop.
type Status struct {
	Running     bool      `json:"running"`
	FatalReason string    `json:"fatal_reason,omitempty"`
	SelfID      int64     `json:"self_id,omitempty"`
	Processed   int64     `json:"processed"`
	Replies     int64     `json:"replies"`
	Errors      int64     `json:"errors"`
	StartedAt   time.Time `json:"started_at,omitzero"`
	LastReplyAt time.Time `json:"last_reply_at,omitzero"`
}
