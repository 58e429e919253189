package domain

import "errors"

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// NetworkError represents a network-related error that may be retriable
type NetworkError struct {
	Op        string // Operation that failed (e.g., "connect", "post", "rpc")
	Err       error  // Underlying error
	Retriable bool   // Whether this error is retriable
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new retriable network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: true}
}

// NewFatalNetworkError creates a non-retriable network error
func NewFatalNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: false}
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	// ErrInvalidCurve is returned when curve parameters cannot produce a
	// strictly decreasing price function. Fatal at configuration time.
	ErrInvalidCurve = errors.New("invalid curve parameters")

	// ErrInvalidGrid is returned when ladder parameters cannot produce a
	// finite band sequence. Fatal at configuration time.
	ErrInvalidGrid = errors.New("invalid grid parameters")

	// ErrGridBoundary is returned when a flip lands outside the ladder.
	// A fill at the outermost band has no further band to quote into; this
	// is a terminal condition of the ladder, not a transient failure.
	ErrGridBoundary = errors.New("flip outside grid boundary")

	// ErrOrderShape is returned when order deltas do not match the grid's
	// base increment or any known breakpoint.
	ErrOrderShape = errors.New("order deltas do not match grid")

	// ErrNoPosition is returned when the store holds no position row.
	ErrNoPosition = errors.New("no position found")

	// ErrPositionExists is returned when initializing over a live position.
	ErrPositionExists = errors.New("position already exists")

	// ErrRelayRejected is returned when a relay refuses an offer.
	ErrRelayRejected = errors.New("relay rejected offer")
)
