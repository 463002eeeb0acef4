// Package newbill holds the logic behind the new-bill form: receipt
// selection, upload and submission.
package newbill

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/garyjia/billed/internal/application/port"
	"github.com/garyjia/billed/internal/domain/entity"
	"github.com/garyjia/billed/internal/domain/workflow"
	"github.com/garyjia/billed/pkg/utils"
)

// ErrNoReceipt is returned by AwaitUpload when the receipt could not be uploaded
var ErrNoReceipt = errors.New("receipt not uploaded")

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// upload tracks one receipt upload attempt
type upload struct {
	seq  uint64
	done chan struct{}
	err  error
}

// Container drives one new-bill form
type Container struct {
	client  port.BillsClient
	view    port.NewBillView
	nav     port.Navigator
	session *entity.Session
	logger  Logger

	mu       sync.Mutex
	machine  workflow.StateMachine
	seq      uint64
	current  *upload
	billID   string
	fileURL  string
	fileName string
}

// New creates a new-bill container and registers its handlers on the view.
// client may be nil when no store is configured.
func New(client port.BillsClient, view port.NewBillView, nav port.Navigator, session *entity.Session, logger Logger) *Container {
	c := &Container{
		client:  client,
		view:    view,
		nav:     nav,
		session: session,
		logger:  logger,
		machine: workflow.NewFormMachine(),
	}

	if view != nil {
		view.OnFileChange(c.OnFileSelected)
		view.OnSubmit(c.OnSubmit)
	}

	return c
}

// State returns the current form state
func (c *Container) State() workflow.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.State()
}

// Receipt returns the name and URL of the uploaded receipt, empty until an upload succeeds
func (c *Container) Receipt() (fileName, fileURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fileName, c.fileURL
}

// OnFileSelected handles a change of the receipt input. Only the first file is considered.
// An accepted image starts an upload in the background; any other file clears the input.
func (c *Container) OnFileSelected(ctx context.Context, files []port.Receipt) {
	if len(files) == 0 {
		return
	}
	file := files[0]

	if !utils.IsAllowedReceipt(file.FileName) {
		c.rejectFile(ctx, file.FileName)
		return
	}

	c.mu.Lock()
	if err := c.machine.Fire(ctx, workflow.TriggerSelectValid); err != nil {
		c.mu.Unlock()
		c.logger.Error("Receipt selection ignored", "file_name", file.FileName, "error", err)
		return
	}
	c.seq++
	c.current = nil
	c.billID, c.fileURL, c.fileName = "", "", ""

	if c.client == nil {
		c.mu.Unlock()
		c.logger.Info("No store configured, receipt kept locally", "file_name", file.FileName)
		return
	}

	if err := c.machine.Fire(ctx, workflow.TriggerStartUpload); err != nil {
		c.mu.Unlock()
		c.logger.Error("Failed to start receipt upload", "file_name", file.FileName, "error", err)
		return
	}
	u := &upload{seq: c.seq, done: make(chan struct{})}
	c.current = u
	c.mu.Unlock()

	// The upload outlives the request that selected the file
	go c.upload(context.WithoutCancel(ctx), u, file)
}

func (c *Container) rejectFile(ctx context.Context, fileName string) {
	c.mu.Lock()
	c.seq++
	c.current = nil
	c.billID, c.fileURL, c.fileName = "", "", ""
	if err := c.machine.Fire(ctx, workflow.TriggerSelectInvalid); err != nil {
		c.logger.Error("Invalid receipt after submission", "file_name", fileName, "error", err)
	}
	c.mu.Unlock()

	c.logger.Info("Receipt rejected, unsupported extension", "file_name", fileName)
	c.view.ClearFileInput()
}

func (c *Container) upload(ctx context.Context, u *upload, file port.Receipt) {
	res, err := c.client.Create(ctx, port.CreateRequest{
		Email:   c.session.UserEmail(),
		Receipt: &file,
	})
	if err == nil && res == nil {
		err = fmt.Errorf("store returned no upload result")
	}

	c.mu.Lock()
	stale := u.seq != c.seq
	switch {
	case stale:
		u.err = fmt.Errorf("upload of %s superseded", file.FileName)
	case err != nil:
		u.err = fmt.Errorf("%w: %w", ErrNoReceipt, err)
		if fireErr := c.machine.Fire(ctx, workflow.TriggerFail); fireErr != nil {
			c.logger.Error("Failed to record upload failure", "error", fireErr)
		}
	default:
		c.billID = res.ID
		c.fileURL = res.FileURL
		c.fileName = file.FileName
		if fireErr := c.machine.Fire(ctx, workflow.TriggerCompleteUpload); fireErr != nil {
			c.logger.Error("Failed to record upload completion", "error", fireErr)
		}
	}
	c.mu.Unlock()
	close(u.done)

	switch {
	case stale:
		c.logger.Info("Discarding stale receipt upload", "file_name", file.FileName, "seq", u.seq)
	case err != nil:
		c.logger.Error("Receipt upload failed", "file_name", file.FileName, "error", err)
		c.view.ShowError(err.Error())
	default:
		c.logger.Info("Receipt uploaded",
			"file_name", file.FileName,
			"bill_id", res.ID,
			"file_url", res.FileURL,
		)
	}
}

// AwaitUpload blocks until the latest upload settles or ctx is done.
// It returns nil when no upload is in flight.
func (c *Container) AwaitUpload(ctx context.Context) error {
	c.mu.Lock()
	u := c.current
	c.mu.Unlock()

	if u == nil {
		return nil
	}

	select {
	case <-u.done:
		return u.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnSubmit builds a pending bill from the form and the uploaded receipt, then
// updates the bill created by the upload or creates a new one. On success the
// user is sent back to the bill list. Failures are shown on the view and returned.
// A failed upload blocks submission until another file is selected.
func (c *Container) OnSubmit(ctx context.Context, form port.BillForm) error {
	if err := c.AwaitUpload(ctx); err != nil {
		if ctx.Err() != nil {
			return err
		}
		c.logger.Error("Submission refused, receipt upload failed", "email", c.session.UserEmail(), "error", err)
		c.view.ShowError(err.Error())
		return fmt.Errorf("cannot submit form: %w", err)
	}

	c.mu.Lock()
	if err := c.machine.Fire(ctx, workflow.TriggerSubmit); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("cannot submit form: %w", err)
	}
	billID, fileURL, fileName := c.billID, c.fileURL, c.fileName
	c.mu.Unlock()

	bill, err := c.buildBill(form)
	if err != nil {
		return c.fail(ctx, err)
	}
	bill.ID = billID
	bill.FileURL = fileURL
	bill.FileName = fileName

	if c.client == nil {
		c.logger.Info("No store configured, bill not saved", "email", bill.Email)
		c.nav.Navigate(ctx, port.RouteBills)
		return nil
	}

	if billID != "" {
		_, err = c.client.Update(ctx, port.UpdateRequest{ID: billID, Bill: bill})
	} else {
		var res *port.CreateResult
		res, err = c.client.Create(ctx, port.CreateRequest{Email: bill.Email, Bill: &bill})
		if err == nil && res != nil {
			billID = res.ID
		}
	}
	if err != nil {
		return c.fail(ctx, err)
	}

	c.logger.Info("Bill submitted", "bill_id", billID, "email", bill.Email)
	c.nav.Navigate(ctx, port.RouteBills)
	return nil
}

func (c *Container) fail(ctx context.Context, err error) error {
	c.mu.Lock()
	if fireErr := c.machine.Fire(ctx, workflow.TriggerFail); fireErr != nil {
		c.logger.Error("Failed to record submission failure", "error", fireErr)
	}
	c.mu.Unlock()

	c.logger.Error("Bill submission failed", "email", c.session.UserEmail(), "error", err)
	c.view.ShowError(err.Error())
	return err
}

func (c *Container) buildBill(form port.BillForm) (entity.Bill, error) {
	bill := entity.Bill{
		Type:       form.Type,
		Name:       utils.SanitizeString(form.Name),
		Date:       strings.TrimSpace(form.Date),
		VAT:        strings.TrimSpace(form.VAT),
		Pct:        entity.DefaultVATPct,
		Status:     entity.BillStatusPending,
		Commentary: utils.SanitizeString(form.Commentary),
		Email:      c.session.UserEmail(),
	}

	amount, err := strconv.ParseFloat(strings.TrimSpace(form.Amount), 64)
	if err != nil {
		return bill, fmt.Errorf("%w: amount %q is not a number", entity.ErrInvalidBill, form.Amount)
	}
	if err := utils.ValidateAmount(amount); err != nil {
		return bill, fmt.Errorf("%w: %v", entity.ErrInvalidBill, err)
	}
	bill.Amount = amount

	if pct := strings.TrimSpace(form.Pct); pct != "" {
		bill.Pct, err = strconv.Atoi(pct)
		if err != nil {
			return bill, fmt.Errorf("%w: pct %q is not a number", entity.ErrInvalidBill, form.Pct)
		}
	}

	if err := bill.Validate(); err != nil {
		return bill, err
	}
	return bill, nil
}
