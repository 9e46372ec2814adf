package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")
	ErrTimeout       = fmt.Errorf("operation timed out")

	// Task and item errors
	ErrTaskNotFound      = fmt.Errorf("task not found")
	ErrItemNotFound      = fmt.Errorf("item not found")
	ErrInvalidTransition = fmt.Errorf("invalid status transition")
	ErrTerminalState     = fmt.Errorf("task already in terminal state")
	ErrNoItemsFound      = fmt.Errorf("no videos found")
	ErrOutputNotFound    = fmt.Errorf("output file not found")
	ErrDuplicateCheck    = fmt.Errorf("duplicate check failed")

	// Proxy errors
	ErrProxyExhausted = fmt.Errorf("no proxy endpoint available")
	ErrProxySource    = fmt.Errorf("proxy source failed")

	// Service errors
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrBridgeClosed       = fmt.Errorf("notification bridge closed")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrInvalidTarget   = fmt.Errorf("invalid target")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
