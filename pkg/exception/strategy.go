package exception

import "github.com/yanun0323/errors"

// Strategy errors
var (
	ErrSchedulerActionFailure = errors.New("scheduler: action failed")
	ErrUnknownAction          = errors.New("scheduler: unknown action")

	// ErrHedgeEscalation marks an alias whose exposure was still open after the final hedge window.
	ErrHedgeEscalation = errors.New("hedge: escalation, manual review required")
	ErrHedgeInFlight   = errors.New("hedge: sequence already in flight")

	ErrConfiguration = errors.New("config: invalid configuration")
	ErrUnknownAlias  = errors.New("alias: unknown symbol alias")
	ErrPositionLimit = errors.New("alias: position limit exceeded")

	ErrSessionRunning    = errors.New("session: already running")
	ErrSessionNotRunning = errors.New("session: not running")
)

// Calendar errors
var (
	ErrNonexistentTime = errors.New("calendar: local time does not exist")
	ErrAmbiguousTime   = errors.New("calendar: local time is ambiguous")
)
