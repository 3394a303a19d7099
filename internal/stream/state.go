package stream

// Source records what put the controller into Streaming.
type Source int

// Stream request sources.
const (
	SourceExplicit Source = iota + 1
	SourceAutomatic
)

func (s Source) String() string {
	switch s {
	case SourceExplicit:
		return "explicit"
	case SourceAutomatic:
		return "automatic"
	default:
		return ""
	}
}

// State is either Idle or Streaming. The request source only exists on
// Streaming.
type State interface {
	isState()
	String() string
}

// Idle means the backend is not acquiring.
type Idle struct{}

func (Idle) isState() {}

func (Idle) String() string { return "idle" }

// Streaming means the backend was started and not stopped since.
type Streaming struct {
	Source Source
}

func (Streaming) isState() {}

func (s Streaming) String() string {
	return "streaming(" + s.Source.String() + ")"
}

// Status is a consistent snapshot of the controller state.
type Status struct {
	Streaming bool   `json:"streaming" example:"true" doc:"Whether the camera is acquiring"`
	Source    Source `json:"-"`
}

func statusOf(s State) Status {
	if st, ok := s.(Streaming); ok {
		return Status{Streaming: true, Source: st.Source}
	}
	return Status{}
}
