package workflow

// State is a step in the new-bill form lifecycle
type State string

const (
	StateEmpty        State = "EMPTY"
	StateFileSelected State = "FILE_SELECTED"
	StateUploading    State = "UPLOADING"
	StateUploaded     State = "UPLOADED"
	StateSubmitted    State = "SUBMITTED"
	StateError        State = "ERROR"
)

// IsValid returns true if the state is a known form state
func (s State) IsValid() bool {
	switch s {
	case StateEmpty, StateFileSelected, StateUploading, StateUploaded, StateSubmitted, StateError:
		return true
	default:
		return false
	}
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}
