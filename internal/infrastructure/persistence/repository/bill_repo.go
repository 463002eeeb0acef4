package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/garyjia/billed/internal/application/port"
	"github.com/garyjia/billed/internal/domain/entity"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const billColumns = `id, type, name, amount, date, vat, pct, status,
	commentary, comment_admin, email, file_name, file_url`

// BillRepository implements port.BillRepository on sqlite
type BillRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewBillRepository creates a new bill repository
func NewBillRepository(db *sql.DB, logger *zap.Logger) port.BillRepository {
	return &BillRepository{
		db:     db,
		logger: logger,
	}
}

// Create stores a new bill. A missing ID is generated.
func (r *BillRepository) Create(ctx context.Context, bill *entity.Bill) error {
	if bill.ID == "" {
		bill.ID = uuid.NewString()
	}

	query := `INSERT INTO bills (` + billColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		bill.ID,
		bill.Type,
		bill.Name,
		bill.Amount,
		bill.Date,
		bill.VAT,
		bill.Pct,
		string(bill.Status),
		bill.Commentary,
		bill.CommentAdmin,
		bill.Email,
		bill.FileName,
		bill.FileURL,
	)
	if err != nil {
		r.logger.Error("Failed to create bill", zap.String("id", bill.ID), zap.Error(err))
		return fmt.Errorf("failed to create bill: %w", err)
	}
	return nil
}

// GetByID retrieves a bill by ID
func (r *BillRepository) GetByID(ctx context.Context, id string) (*entity.Bill, error) {
	query := `SELECT ` + billColumns + ` FROM bills WHERE id = ?`

	bill, err := scanBill(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get bill by ID", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get bill: %w", err)
	}
	return bill, nil
}

// List returns bills in insertion order, filtered by email when given
func (r *BillRepository) List(ctx context.Context, email string) ([]*entity.Bill, error) {
	query := `SELECT ` + billColumns + ` FROM bills`
	var args []interface{}
	if email != "" {
		query += ` WHERE email = ?`
		args = append(args, email)
	}
	query += ` ORDER BY rowid`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list bills", zap.String("email", email), zap.Error(err))
		return nil, fmt.Errorf("failed to list bills: %w", err)
	}
	defer rows.Close()

	bills := make([]*entity.Bill, 0)
	for rows.Next() {
		bill, err := scanBill(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bill: %w", err)
		}
		bills = append(bills, bill)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bills: %w", err)
	}
	return bills, nil
}

// Update replaces every field of a stored bill
func (r *BillRepository) Update(ctx context.Context, bill *entity.Bill) error {
	query := `
		UPDATE bills SET
			type = ?, name = ?, amount = ?, date = ?, vat = ?, pct = ?, status = ?,
			commentary = ?, comment_admin = ?, email = ?, file_name = ?, file_url = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		bill.Type,
		bill.Name,
		bill.Amount,
		bill.Date,
		bill.VAT,
		bill.Pct,
		string(bill.Status),
		bill.Commentary,
		bill.CommentAdmin,
		bill.Email,
		bill.FileName,
		bill.FileURL,
		bill.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update bill", zap.String("id", bill.ID), zap.Error(err))
		return fmt.Errorf("failed to update bill: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return port.ErrNotFound
	}
	return nil
}

// rowScanner covers both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBill(row rowScanner) (*entity.Bill, error) {
	var bill entity.Bill
	var status string

	err := row.Scan(
		&bill.ID,
		&bill.Type,
		&bill.Name,
		&bill.Amount,
		&bill.Date,
		&bill.VAT,
		&bill.Pct,
		&status,
		&bill.Commentary,
		&bill.CommentAdmin,
		&bill.Email,
		&bill.FileName,
		&bill.FileURL,
	)
	if err != nil {
		return nil, err
	}
	bill.Status = entity.BillStatus(status)
	return &bill, nil
}
