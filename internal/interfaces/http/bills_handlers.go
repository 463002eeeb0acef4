package http

import (
	"bytes"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/billed/internal/application/bills"
	"github.com/garyjia/billed/internal/application/port"
	"github.com/garyjia/billed/internal/domain/entity"
	"github.com/garyjia/billed/internal/infrastructure/export"
)

const exportFileName = "notes-de-frais.xlsx"

// billsPageData is what the bill list template renders: the bills or an error
type billsPageData struct {
	Data  []entity.BillViewModel
	Error string
}

// fetchSorted loads the bills of the session, latest first
func (h *Handlers) fetchSorted(c *gin.Context) ([]entity.BillViewModel, error) {
	session := sessionFrom(c)
	container := bills.New(h.client(session), nil, nil, session, h.logger)

	list, err := container.FetchBills(c.Request.Context())
	if err != nil {
		return nil, err
	}
	sortAntiChrono(list)
	return list, nil
}

// sortAntiChrono orders bills by date, latest first. ISO dates compare as strings.
func sortAntiChrono(list []entity.BillViewModel) {
	slices.SortStableFunc(list, func(a, b entity.BillViewModel) int {
		return strings.Compare(b.Date, a.Date)
	})
}

// ListBills handles GET /employee/bills
func (h *Handlers) ListBills(c *gin.Context) {
	list, err := h.fetchSorted(c)
	if err != nil {
		c.HTML(http.StatusInternalServerError, tmplBills, billsPageData{Error: errorText(err)})
		return
	}
	c.HTML(http.StatusOK, tmplBills, billsPageData{Data: list})
}

// PreviewReceipt handles GET /employee/bills/preview?url=...
func (h *Handlers) PreviewReceipt(c *gin.Context) {
	session := sessionFrom(c)
	page := &billsPage{}
	bills.New(h.client(session), page, &redirector{}, session, h.logger)

	page.clickEye(c.Request.Context(), c.Query("url"))
	if page.modal == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.HTML(http.StatusOK, tmplModal, page.modal)
}

// RequestNewBill handles POST /employee/bills/new
func (h *Handlers) RequestNewBill(c *gin.Context) {
	session := sessionFrom(c)
	page := &billsPage{}
	nav := &redirector{}
	bills.New(h.client(session), page, nav, session, h.logger)

	page.clickNewBill(c.Request.Context())
	c.Redirect(http.StatusSeeOther, nav.target(port.RouteBills))
}

// ExportBills handles GET /employee/bills/export.xlsx
func (h *Handlers) ExportBills(c *gin.Context) {
	list, err := h.fetchSorted(c)
	if err != nil {
		c.String(http.StatusInternalServerError, errorText(err))
		return
	}

	var buf bytes.Buffer
	if err := h.exporter.Write(&buf, list); err != nil {
		h.logger.Error("Failed to export bills", "email", sessionFrom(c).UserEmail(), "error", err)
		c.String(http.StatusInternalServerError, errorText(err))
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+exportFileName+`"`)
	c.Data(http.StatusOK, export.ContentType, buf.Bytes())
}
