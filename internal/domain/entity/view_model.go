package entity

import "fmt"

// frenchMonths holds the capitalised three-letter French month abbreviations
var frenchMonths = [12]string{
	"Jan", "Fév", "Mar", "Avr", "Mai", "Jui",
	"Jui", "Aoû", "Sep", "Oct", "Nov", "Déc",
}

// BillViewModel is a Bill prepared for display. It is never persisted.
type BillViewModel struct {
	Bill
	DisplayDate string `json:"displayDate"`
	StatusLabel string `json:"statusLabel"`
}

// ReceiptModal is the content of the receipt preview modal
type ReceiptModal struct {
	Title   string
	FileURL string
}

// ReceiptModalTitle is the fixed title of the receipt preview
const ReceiptModalTitle = "Justificatif"

// HasContent returns true if the modal has a receipt to display
func (m ReceiptModal) HasContent() bool {
	return m.FileURL != ""
}

// FormatDate turns an ISO date into the short French display form, e.g. "4 Avr. 04".
func FormatDate(s string) (string, error) {
	t, err := ParseBillDate(s)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %s. %02d", t.Day(), frenchMonths[t.Month()-1], t.Year()%100), nil
}

// NewBillViewModel derives the display fields of a bill.
// When the date cannot be formatted the raw value is kept and the error is returned
// so the caller can report it.
func NewBillViewModel(b Bill) (BillViewModel, error) {
	vm := BillViewModel{
		Bill:        b,
		DisplayDate: b.Date,
		StatusLabel: b.Status.Label(),
	}
	formatted, err := FormatDate(b.Date)
	if err != nil {
		return vm, err
	}
	vm.DisplayDate = formatted
	return vm, nil
}
