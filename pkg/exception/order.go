package exception

import "github.com/yanun0323/errors"

// Order ledger errors
var (
	// ErrUnknownOrder is returned when an event names an internal id the ledger never issued.
	ErrUnknownOrder = errors.New("order: unknown order")

	// ErrInvalidTransition is returned when an event is not permitted from the current state
	// or targets an order that already completed.
	ErrInvalidTransition = errors.New("order: invalid transition")

	ErrInvalidFill         = errors.New("order: invalid fill quantity")
	ErrUnknownEvent        = errors.New("order: unknown event kind")
	ErrDuplicateOrder      = errors.New("order: duplicate internal id")
	ErrAmendPending        = errors.New("order: amendment already pending")
	ErrOrderInvalidRequest = errors.New("order: invalid request")
	ErrOrderNilDelegator   = errors.New("order: nil delegator")
	ErrOrderQueueFull      = errors.New("order: queue full")
	ErrOrderNotRunning     = errors.New("order: usecase not running")
)

// Risk errors
var (
	ErrRiskRejected = errors.New("risk: order rejected")
)
