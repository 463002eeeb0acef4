package workflow

// Trigger is a form event that can move the form to another state
type Trigger string

const (
	TriggerSelectValid    Trigger = "SELECT_VALID"
	TriggerSelectInvalid  Trigger = "SELECT_INVALID"
	TriggerStartUpload    Trigger = "START_UPLOAD"
	TriggerCompleteUpload Trigger = "COMPLETE_UPLOAD"
	TriggerFail           Trigger = "FAIL"
	TriggerSubmit         Trigger = "SUBMIT"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
