// Package bills holds the logic behind the employee bill list page.
package bills

import (
	"context"
	"fmt"

	"github.com/garyjia/billed/internal/application/port"
	"github.com/garyjia/billed/internal/domain/entity"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Container loads the bill list and reacts to the list page actions
type Container struct {
	client  port.BillsClient
	view    port.BillsView
	nav     port.Navigator
	session *entity.Session
	logger  Logger
}

// New creates a bills container and registers its handlers on the view.
// client may be nil when no store is configured.
func New(client port.BillsClient, view port.BillsView, nav port.Navigator, session *entity.Session, logger Logger) *Container {
	c := &Container{
		client:  client,
		view:    view,
		nav:     nav,
		session: session,
		logger:  logger,
	}

	if view != nil {
		view.OnNewBillClick(c.OnNewBillRequested)
		view.OnIconEyeClick(c.OnPreviewRequested)
	}

	return c
}

// FetchBills lists the bills of the store and maps them to view-models, in store order.
// Without a store the result is empty. Store errors are returned to the caller.
func (c *Container) FetchBills(ctx context.Context) ([]entity.BillViewModel, error) {
	if c.client == nil {
		c.logger.Info("No store configured, returning empty bill list")
		return []entity.BillViewModel{}, nil
	}

	records, err := c.client.List(ctx)
	if err != nil {
		c.logger.Error("Failed to list bills",
			"email", c.session.UserEmail(),
			"error", err,
		)
		return nil, fmt.Errorf("failed to list bills: %w", err)
	}

	result := make([]entity.BillViewModel, 0, len(records))
	for _, record := range records {
		bill, err := port.DecodeBill(record)
		if err != nil {
			c.logger.Error("Bill record partially decoded",
				"bill_id", bill.ID,
				"error", err,
			)
		}

		vm, err := entity.NewBillViewModel(bill)
		if err != nil {
			// Corrupted dates are shown as stored
			c.logger.Error("Failed to format bill date",
				"bill_id", bill.ID,
				"date", bill.Date,
				"error", err,
			)
		}
		result = append(result, vm)
	}

	return result, nil
}

// OnNewBillRequested navigates to the new-bill form
func (c *Container) OnNewBillRequested(ctx context.Context) {
	c.nav.Navigate(ctx, port.RouteNewBill)
}

// OnPreviewRequested opens the receipt modal for receiptURL.
// An empty URL still opens the modal, with nothing in it.
func (c *Container) OnPreviewRequested(ctx context.Context, receiptURL string) {
	if receiptURL == "" {
		c.logger.Info("Receipt preview requested without a URL")
	}
	c.view.ShowReceipt(entity.ReceiptModal{
		Title:   entity.ReceiptModalTitle,
		FileURL: receiptURL,
	})
}
