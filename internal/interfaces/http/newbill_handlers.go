package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/billed/internal/application/port"
	"github.com/garyjia/billed/internal/domain/entity"
	"github.com/garyjia/billed/internal/domain/workflow"
	"github.com/garyjia/billed/pkg/utils"
)

// newBillPageData is what the new-bill template renders
type newBillPageData struct {
	FormID       string
	ExpenseTypes []string
	DefaultPct   int
	Form         port.BillForm
	FileName     string
	Error        string
}

// formStatus is the JSON state of a form, returned after file changes
type formStatus struct {
	State    string `json:"state"`
	Cleared  bool   `json:"cleared"`
	FileName string `json:"fileName,omitempty"`
	FileURL  string `json:"fileUrl,omitempty"`
	Error    string `json:"error,omitempty"`
}

func newBillPage(f *billForm, form port.BillForm, message string) newBillPageData {
	fileName, _ := f.container.Receipt()
	return newBillPageData{
		FormID:       f.id,
		ExpenseTypes: entity.ExpenseTypes,
		DefaultPct:   entity.DefaultVATPct,
		Form:         form,
		FileName:     fileName,
		Error:        message,
	}
}

func statusOf(f *billForm, cleared bool) formStatus {
	fileName, fileURL := f.container.Receipt()
	return formStatus{
		State:    f.container.State().String(),
		Cleared:  cleared,
		FileName: fileName,
		FileURL:  fileURL,
		Error:    f.page.errorMessage(),
	}
}

// NewBillForm handles GET /employee/bill/new
func (h *Handlers) NewBillForm(c *gin.Context) {
	session := sessionFrom(c)
	f := h.forms.open(session, h.client(session))
	c.HTML(http.StatusOK, tmplNewBill, newBillPage(f, port.BillForm{}, ""))
}

// SelectFile handles POST /employee/bill/new/:form/file
func (h *Handlers) SelectFile(c *gin.Context) {
	f, err := h.forms.get(c.Param("form"), sessionFrom(c))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	receipt, status, err := readReceipt(c, h.maxUploadSize)
	if err != nil {
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	cleared := f.page.selectFiles(c.Request.Context(), []port.Receipt{receipt})
	c.JSON(http.StatusAccepted, statusOf(f, cleared))
}

// FormStatus handles GET /employee/bill/new/:form/status
func (h *Handlers) FormStatus(c *gin.Context) {
	f, err := h.forms.get(c.Param("form"), sessionFrom(c))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, statusOf(f, false))
}

// SubmitBill handles POST /employee/bill/new/:form
func (h *Handlers) SubmitBill(c *gin.Context) {
	id := c.Param("form")
	f, err := h.forms.get(id, sessionFrom(c))
	if err != nil {
		h.logger.Info("Submission for an unknown form, opening a new one", "form_id", id)
		c.Redirect(http.StatusSeeOther, port.RouteNewBill)
		return
	}

	var form port.BillForm
	if err := c.ShouldBind(&form); err != nil {
		c.HTML(http.StatusBadRequest, tmplNewBill, newBillPage(f, form, err.Error()))
		return
	}

	if err := f.page.submitForm(c.Request.Context(), form); err != nil {
		message := f.page.errorMessage()
		if message == "" {
			message = err.Error()
		}
		c.HTML(submitStatus(err), tmplNewBill, newBillPage(f, form, message))
		return
	}

	h.forms.remove(id)
	c.Redirect(http.StatusSeeOther, f.page.nav.target(port.RouteBills))
}

func submitStatus(err error) int {
	switch {
	case errors.Is(err, entity.ErrInvalidBill):
		return http.StatusBadRequest
	case errors.Is(err, workflow.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

// readReceipt reads the "file" part of a multipart request
func readReceipt(c *gin.Context, maxUploadSize int64) (port.Receipt, int, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return port.Receipt{}, http.StatusBadRequest, fmt.Errorf("missing file: %w", err)
	}
	if maxUploadSize > 0 && fh.Size > maxUploadSize {
		return port.Receipt{}, http.StatusRequestEntityTooLarge, fmt.Errorf("file too large: %d bytes", fh.Size)
	}

	file, err := fh.Open()
	if err != nil {
		return port.Receipt{}, http.StatusBadRequest, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return port.Receipt{}, http.StatusBadRequest, fmt.Errorf("failed to read file: %w", err)
	}

	return port.Receipt{
		FileName:    fh.Filename,
		ContentType: utils.ReceiptContentType(fh.Filename),
		Content:     content,
	}, http.StatusOK, nil
}
