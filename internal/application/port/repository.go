package port

import (
	"context"
	"errors"

	"github.com/garyjia/billed/internal/domain/entity"
)

var (
	// ErrNotFound is returned when a bill does not exist
	ErrNotFound = errors.New("bill not found")
	// ErrForbidden is returned when a session touches a bill it does not own
	ErrForbidden = errors.New("bill belongs to another user")
)

// BillRepository defines persistence operations for bills
type BillRepository interface {
	// Create stores a new bill and assigns its ID
	Create(ctx context.Context, bill *entity.Bill) error

	// GetByID retrieves a bill, returning ErrNotFound if absent
	GetByID(ctx context.Context, id string) (*entity.Bill, error)

	// List returns the bills submitted by email, or every bill when email is empty
	List(ctx context.Context, email string) ([]*entity.Bill, error)

	// Update replaces a stored bill, returning ErrNotFound if absent
	Update(ctx context.Context, bill *entity.Bill) error
}
