package ambient

// State represents the current state of a Binding.
type State int32

const (
	// StateLoading indicates the Binding has not yet received a value from
	// its watcher.
	StateLoading State = iota

	// StateHealthy indicates the last value received was decoded, validated
	// and written to the key.
	StateHealthy

	// StateDegraded indicates the last value received was rejected. The key
	// still holds the last value the Binding wrote.
	StateDegraded

	// StateEmpty indicates no value received so far has been accepted. The
	// key still reads as whatever it held before the Binding started,
	// usually its default.
	StateEmpty
)

var stateNames = [...]string{
	StateLoading:  "loading",
	StateHealthy:  "healthy",
	StateDegraded: "degraded",
	StateEmpty:    "empty",
}

// String returns the string representation of the state.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
