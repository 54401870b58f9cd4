package bridge

type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateInitFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateInitFailed:
		return "init_failed"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}
