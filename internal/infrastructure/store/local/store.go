// Package local implements the bill store in process, on the sqlite
// repository and the receipt file storage.
package local

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/billed/internal/application/dispatcher"
	"github.com/garyjia/billed/internal/application/port"
	"github.com/garyjia/billed/internal/domain/entity"
	"github.com/garyjia/billed/internal/domain/event"
	"github.com/garyjia/billed/pkg/utils"
)

// ReceiptRoute is the path prefix receipts are served under
const ReceiptRoute = "/receipts/"

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Store serves bills from the repository and keeps receipts in storage
type Store struct {
	repo          port.BillRepository
	receipts      port.ReceiptStorage
	events        dispatcher.Dispatcher
	publicBaseURL string
	logger        Logger
}

// NewStore creates a local store. events may be nil.
// publicBaseURL prefixes receipt URLs, e.g. "http://localhost:8080".
func NewStore(repo port.BillRepository, receipts port.ReceiptStorage, events dispatcher.Dispatcher, publicBaseURL string, logger Logger) *Store {
	return &Store{
		repo:          repo,
		receipts:      receipts,
		events:        events,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        logger,
	}
}

// Bills returns the bills resource for session.
// Employees see their own bills, admins see every bill.
func (s *Store) Bills(session *entity.Session) port.BillsClient {
	return &billsClient{store: s, session: session}
}

// ReceiptURL returns the public URL of a stored receipt
func (s *Store) ReceiptURL(relPath string) string {
	return s.publicBaseURL + ReceiptRoute + relPath
}

type billsClient struct {
	store   *Store
	session *entity.Session
}

func (c *billsClient) isAdmin() bool {
	return c.session != nil && c.session.Type == entity.UserTypeAdmin
}

func (c *billsClient) List(ctx context.Context) ([]port.RawRecord, error) {
	email := c.session.UserEmail()
	if c.isAdmin() {
		email = ""
	}

	bills, err := c.store.repo.List(ctx, email)
	if err != nil {
		return nil, err
	}

	records := make([]port.RawRecord, 0, len(bills))
	for _, bill := range bills {
		record, err := port.EncodeBill(*bill)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func (c *billsClient) Create(ctx context.Context, req port.CreateRequest) (*port.CreateResult, error) {
	email := req.Email
	if email == "" {
		email = c.session.UserEmail()
	}
	if err := utils.ValidateEmail(email); err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrInvalidBill, err)
	}

	switch {
	case req.Receipt != nil:
		return c.createFromReceipt(ctx, email, req.Receipt)
	case req.Bill != nil:
		return c.createBill(ctx, email, *req.Bill)
	default:
		return nil, fmt.Errorf("%w: create requires a receipt or a bill", entity.ErrInvalidBill)
	}
}

// createFromReceipt stores the receipt and opens a pending bill pointing at it
func (c *billsClient) createFromReceipt(ctx context.Context, email string, receipt *port.Receipt) (*port.CreateResult, error) {
	if !utils.IsAllowedReceipt(receipt.FileName) {
		return nil, fmt.Errorf("%w: unsupported receipt %q", entity.ErrInvalidBill, receipt.FileName)
	}

	relPath, err := c.store.receipts.Save(ctx, email, receipt.FileName, receipt.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to save receipt: %w", err)
	}

	bill := entity.Bill{
		Pct:      entity.DefaultVATPct,
		Status:   entity.BillStatusPending,
		Email:    email,
		FileName: utils.SanitizeFileName(receipt.FileName),
		FileURL:  c.store.ReceiptURL(relPath),
	}
	if err := c.store.repo.Create(ctx, &bill); err != nil {
		return nil, err
	}

	c.store.logger.Info("Receipt uploaded", "bill_id", bill.ID, "email", email, "path", relPath)
	c.store.publish(ctx, event.NewEvent(event.TypeReceiptUploaded, bill.ID, email, map[string]interface{}{
		"file_name": bill.FileName,
		"file_url":  bill.FileURL,
		"size":      len(receipt.Content),
	}))

	return &port.CreateResult{ID: bill.ID, FileURL: bill.FileURL, FileName: bill.FileName}, nil
}

func (c *billsClient) createBill(ctx context.Context, email string, bill entity.Bill) (*port.CreateResult, error) {
	bill.Email = email
	if bill.Status == "" {
		bill.Status = entity.BillStatusPending
	}
	if err := bill.Validate(); err != nil {
		return nil, err
	}
	if err := c.store.repo.Create(ctx, &bill); err != nil {
		return nil, err
	}

	c.store.logger.Info("Bill created", "bill_id", bill.ID, "email", email)
	c.store.publish(ctx, event.NewEvent(event.TypeBillCreated, bill.ID, email, map[string]interface{}{
		"amount": bill.Amount,
		"type":   bill.Type,
	}))

	return &port.CreateResult{ID: bill.ID, FileURL: bill.FileURL, FileName: bill.FileName}, nil
}

func (c *billsClient) Update(ctx context.Context, req port.UpdateRequest) (port.RawRecord, error) {
	existing, err := c.store.repo.GetByID(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if !c.isAdmin() && existing.Email != c.session.UserEmail() {
		return nil, port.ErrForbidden
	}

	bill := req.Bill
	bill.ID = existing.ID
	bill.Email = existing.Email
	if bill.Status == "" {
		bill.Status = existing.Status
	}
	if bill.FileURL == "" {
		bill.FileURL, bill.FileName = existing.FileURL, existing.FileName
	}
	if !c.isAdmin() {
		// Review fields are owned by admins
		bill.CommentAdmin = existing.CommentAdmin
		bill.Status = existing.Status
	}
	if err := bill.Validate(); err != nil {
		return nil, err
	}

	if err := c.store.repo.Update(ctx, &bill); err != nil {
		return nil, err
	}

	c.store.logger.Info("Bill updated", "bill_id", bill.ID, "status", bill.Status)
	c.store.publish(ctx, event.NewEvent(event.TypeBillUpdated, bill.ID, bill.Email, map[string]interface{}{
		"status":      bill.Status.String(),
		"prev_status": existing.Status.String(),
	}))

	return port.EncodeBill(bill)
}

func (s *Store) publish(ctx context.Context, evt *event.Event) {
	if s.events == nil {
		return
	}
	s.events.DispatchAsync(context.WithoutCancel(ctx), evt)
}
