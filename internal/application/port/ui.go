package port

import (
	"context"

	"github.com/garyjia/billed/internal/domain/entity"
)

// Route paths known to the router
const (
	RouteLogin   = "/"
	RouteBills   = "/employee/bills"
	RouteNewBill = "/employee/bill/new"
)

// Navigator asks the router to render the view at path
type Navigator interface {
	Navigate(ctx context.Context, path string)
}

// BillForm holds the raw fields of the new-bill form
type BillForm struct {
	Type       string `form:"expense-type"`
	Name       string `form:"expense-name"`
	Amount     string `form:"amount"`
	Date       string `form:"datepicker"`
	VAT        string `form:"vat"`
	Pct        string `form:"pct"`
	Commentary string `form:"commentary"`
}

// BillsView is what the bill list page exposes to its container
type BillsView interface {
	OnNewBillClick(handler func(ctx context.Context))
	OnIconEyeClick(handler func(ctx context.Context, billURL string))
	ShowReceipt(modal entity.ReceiptModal)
}

// NewBillView is what the new-bill page exposes to its container
type NewBillView interface {
	OnFileChange(handler func(ctx context.Context, files []Receipt))
	OnSubmit(handler func(ctx context.Context, form BillForm) error)
	ClearFileInput()
	ShowError(message string)
}
