package dosing

import "errors"

var (
	// ErrBusy is returned when a request arrives while a session or flush runs.
	ErrBusy = errors.New("controller busy")
	// ErrStateTimeout reports a state exceeding MaxStateDuration.
	ErrStateTimeout = errors.New("state timeout")
	// ErrIncompleteDose reports a final weight short of target.
	ErrIncompleteDose = errors.New("incomplete dose")
	// ErrUnknownLiquid is returned for an index missing from the registry.
	ErrUnknownLiquid = errors.New("unknown liquid")
	// ErrIterationLimit reports a session that failed to converge.
	ErrIterationLimit = errors.New("iteration limit reached")
)
