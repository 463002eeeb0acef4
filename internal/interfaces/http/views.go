package http

import (
	"context"
	"sync"

	"github.com/garyjia/billed/internal/application/port"
	"github.com/garyjia/billed/internal/domain/entity"
)

// redirector records where a container asked to navigate to.
// The handler turns it into an HTTP redirect.
type redirector struct {
	mu   sync.Mutex
	path string
}

func (r *redirector) Navigate(_ context.Context, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.path = path
}

func (r *redirector) target(fallback string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.path == "" {
		return fallback
	}
	return r.path
}

// billsPage is the bill list as its container sees it, for one request
type billsPage struct {
	newBillClick func(ctx context.Context)
	eyeClick     func(ctx context.Context, billURL string)
	modal        *entity.ReceiptModal
}

var _ port.BillsView = (*billsPage)(nil)

func (p *billsPage) OnNewBillClick(handler func(ctx context.Context)) {
	p.newBillClick = handler
}

func (p *billsPage) OnIconEyeClick(handler func(ctx context.Context, billURL string)) {
	p.eyeClick = handler
}

func (p *billsPage) ShowReceipt(modal entity.ReceiptModal) {
	p.modal = &modal
}

func (p *billsPage) clickNewBill(ctx context.Context) {
	if p.newBillClick != nil {
		p.newBillClick(ctx)
	}
}

func (p *billsPage) clickEye(ctx context.Context, billURL string) {
	if p.eyeClick != nil {
		p.eyeClick(ctx, billURL)
	}
}

// formPage is a new-bill form as its container sees it. It outlives
// requests: uploads report back to it from their own goroutine.
type formPage struct {
	nav redirector

	fileChange func(ctx context.Context, files []port.Receipt)
	submit     func(ctx context.Context, form port.BillForm) error

	mu      sync.Mutex
	cleared bool
	message string
}

var (
	_ port.NewBillView = (*formPage)(nil)
	_ port.Navigator   = (*formPage)(nil)
)

func (p *formPage) OnFileChange(handler func(ctx context.Context, files []port.Receipt)) {
	p.fileChange = handler
}

func (p *formPage) OnSubmit(handler func(ctx context.Context, form port.BillForm) error) {
	p.submit = handler
}

func (p *formPage) ClearFileInput() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleared = true
}

func (p *formPage) ShowError(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.message = message
}

func (p *formPage) Navigate(ctx context.Context, path string) {
	p.nav.Navigate(ctx, path)
}

// selectFiles forwards a file change and reports whether the input was cleared
func (p *formPage) selectFiles(ctx context.Context, files []port.Receipt) bool {
	p.mu.Lock()
	p.cleared = false
	p.message = ""
	p.mu.Unlock()

	if p.fileChange != nil {
		p.fileChange(ctx, files)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cleared
}

func (p *formPage) submitForm(ctx context.Context, form port.BillForm) error {
	p.mu.Lock()
	p.message = ""
	p.mu.Unlock()

	if p.submit == nil {
		return nil
	}
	return p.submit(ctx, form)
}

// errorMessage returns the last error the container showed
func (p *formPage) errorMessage() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.message
}
