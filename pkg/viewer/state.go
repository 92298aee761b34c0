package viewer

import "fmt"

// Phase is the viewer's initialization phase.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseInitializing
	PhaseReady
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseInitializing:
		return "initializing"
	case PhaseReady:
		return "ready"
	case PhaseError:
		return "error"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// ViewerState is the aggregate viewer state exposed to the host.
type ViewerState struct {
	Phase         Phase
	Err           string
	IsViewerReady bool
}

// IsReady reports Phase == PhaseReady.
func (s ViewerState) IsReady() bool { return s.Phase == PhaseReady }

// HasError reports Phase == PhaseError.
func (s ViewerState) HasError() bool { return s.Phase == PhaseError }

// ErrorMessage returns the retained error, or "".
func (s ViewerState) ErrorMessage() string { return s.Err }

// allowed lists legal transitions. Uninitialized is reachable from every
// phase because unmount resets the viewer.
var allowed = map[Phase][]Phase{
	PhaseUninitialized: {PhaseInitializing, PhaseError},
	PhaseInitializing:  {PhaseReady, PhaseError, PhaseUninitialized},
	PhaseReady:         {PhaseError, PhaseUninitialized},
	PhaseError:         {PhaseInitializing, PhaseUninitialized},
}

// stateHolder owns ViewerState and notifies an observer of transitions.
type stateHolder struct {
	state    ViewerState
	observer func(from, to ViewerState)
}

func (h *stateHolder) get() ViewerState { return h.state }

func (h *stateHolder) phase() Phase { return h.state.Phase }

// transition moves to phase to. msg is retained only for PhaseError.
// Illegal transitions are refused.
func (h *stateHolder) transition(to Phase, msg string) error {
	from := h.state
	if from.Phase == to {
		return nil
	}
	legal := false
	for _, p := range allowed[from.Phase] {
		if p == to {
			legal = true
			break
		}
	}
	if !legal {
		return fmt.Errorf("illegal phase transition %s -> %s", from.Phase, to)
	}

	next := ViewerState{Phase: to, IsViewerReady: to == PhaseReady}
	if to == PhaseError {
		next.Err = msg
		if next.Err == "" {
			next.Err = "unknown error"
		}
	}
	h.state = next
	if h.observer != nil {
		h.observer(from, next)
	}
	return nil
}
