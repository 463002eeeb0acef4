package entity

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidBill is returned when a bill breaks one of its invariants
var ErrInvalidBill = errors.New("invalid bill")

// BillStatus is the approval status of a bill
type BillStatus string

const (
	BillStatusPending  BillStatus = "pending"
	BillStatusAccepted BillStatus = "accepted"
	BillStatusRefused  BillStatus = "refused"
)

// DefaultVATPct is applied when the form leaves the VAT percentage empty
const DefaultVATPct = 20

// Expense types offered by the new-bill form
var ExpenseTypes = []string{
	"Transports",
	"Restaurants et bars",
	"Hôtel et logement",
	"Services en ligne",
	"IT et électronique",
	"Equipement et matériel",
	"Fournitures de bureau",
}

// IsValid returns true if the status is one of the three known values
func (s BillStatus) IsValid() bool {
	switch s {
	case BillStatusPending, BillStatusAccepted, BillStatusRefused:
		return true
	default:
		return false
	}
}

// Label returns the human-readable status shown to employees.
// Unknown statuses are returned unchanged.
func (s BillStatus) Label() string {
	switch s {
	case BillStatusPending:
		return "En attente"
	case BillStatusAccepted:
		return "Accepté"
	case BillStatusRefused:
		return "Refusé"
	default:
		return string(s)
	}
}

// String returns the string representation of the status
func (s BillStatus) String() string {
	return string(s)
}

// Bill represents an employee expense report
type Bill struct {
	ID           string     `json:"id" mapstructure:"id"`
	Type         string     `json:"type" mapstructure:"type"`
	Name         string     `json:"name" mapstructure:"name"`
	Amount       float64    `json:"amount" mapstructure:"amount"`
	Date         string     `json:"date" mapstructure:"date"`
	VAT          string     `json:"vat" mapstructure:"vat"`
	Pct          int        `json:"pct" mapstructure:"pct"`
	Status       BillStatus `json:"status" mapstructure:"status"`
	Commentary   string     `json:"commentary" mapstructure:"commentary"`
	CommentAdmin string     `json:"commentAdmin" mapstructure:"commentAdmin"`
	Email        string     `json:"email" mapstructure:"email"`
	FileName     string     `json:"fileName" mapstructure:"fileName"`
	FileURL      string     `json:"fileUrl" mapstructure:"fileUrl"`
}

// Validate checks the bill invariants: known status, finite non-negative amount and percentage
func (b *Bill) Validate() error {
	if !b.Status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidBill, b.Status)
	}
	if math.IsNaN(b.Amount) || math.IsInf(b.Amount, 0) {
		return fmt.Errorf("%w: amount must be a finite number: %v", ErrInvalidBill, b.Amount)
	}
	if b.Amount < 0 {
		return fmt.Errorf("%w: amount must not be negative: %.2f", ErrInvalidBill, b.Amount)
	}
	if b.Pct < 0 {
		return fmt.Errorf("%w: pct must not be negative: %d", ErrInvalidBill, b.Pct)
	}
	if b.Date != "" {
		if _, err := ParseBillDate(b.Date); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidBill, err)
		}
	}
	return nil
}

// ParseBillDate parses the ISO-like date stored on a bill.
// Both plain dates and RFC3339 timestamps are accepted.
func ParseBillDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable date %q", s)
	}
	return t, nil
}
