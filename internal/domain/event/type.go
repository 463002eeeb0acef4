package event

// Type identifies the type of domain event
type Type string

const (
	TypeBillCreated     Type = "bill.created"
	TypeBillUpdated     Type = "bill.updated"
	TypeReceiptUploaded Type = "receipt.uploaded"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeBillCreated, TypeBillUpdated, TypeReceiptUploaded:
		return true
	default:
		return false
	}
}
