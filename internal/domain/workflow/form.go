package workflow

var formBuilder = newFormBuilder()

// NewFormMachine returns a machine for one new-bill form, starting empty.
//
// Happy path: EMPTY -> FILE_SELECTED -> UPLOADING -> UPLOADED -> SUBMITTED.
// An invalid file sends the form back to EMPTY; a store failure moves it to ERROR,
// from which the user may select another file or submit again.
func NewFormMachine() StateMachine {
	return formBuilder.Build(StateEmpty)
}

func newFormBuilder() *Builder {
	b := NewBuilder()

	b.Configure(StateEmpty).
		Permit(TriggerSelectValid, StateFileSelected).
		Permit(TriggerSelectInvalid, StateEmpty).
		Permit(TriggerSubmit, StateSubmitted)

	b.Configure(StateFileSelected).
		Permit(TriggerSelectValid, StateFileSelected).
		Permit(TriggerSelectInvalid, StateEmpty).
		Permit(TriggerStartUpload, StateUploading).
		Permit(TriggerSubmit, StateSubmitted)

	// A newer selection supersedes the upload in flight.
	b.Configure(StateUploading).
		Permit(TriggerSelectValid, StateFileSelected).
		Permit(TriggerSelectInvalid, StateEmpty).
		Permit(TriggerCompleteUpload, StateUploaded).
		Permit(TriggerFail, StateError)

	b.Configure(StateUploaded).
		Permit(TriggerSelectValid, StateFileSelected).
		Permit(TriggerSelectInvalid, StateEmpty).
		Permit(TriggerSubmit, StateSubmitted)

	b.Configure(StateSubmitted).
		Permit(TriggerFail, StateError)

	b.Configure(StateError).
		Permit(TriggerSelectValid, StateFileSelected).
		Permit(TriggerSelectInvalid, StateEmpty).
		Permit(TriggerSubmit, StateSubmitted)

	return b
}
