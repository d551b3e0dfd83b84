package model

// State is the controller phase reported to callers.
type State int

const (
	StateIdle State = iota
	StateInitialFlush
	StateDispensing
	StateStabilizing
	StateFinalFlush
	StateDone
	StateFlushing
)

// String returns the name used in logs, telemetry and the status API.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateInitialFlush:
		return "INITIAL_FLUSH"
	case StateDispensing:
		return "DISPENSING"
	case StateStabilizing:
		return "STABILIZING"
	case StateFinalFlush:
		return "FINAL_FLUSH"
	case StateDone:
		return "DONE"
	case StateFlushing:
		return "FLUSHING"
	default:
		return "UNKNOWN"
	}
}

// ParseState is the inverse of String.
func ParseState(s string) (State, bool) {
	for st := StateIdle; st <= StateFlushing; st++ {
		if st.String() == s {
			return st, true
		}
	}
	return 0, false
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
