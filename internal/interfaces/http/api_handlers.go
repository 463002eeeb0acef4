package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/billed/internal/application/port"
	"github.com/garyjia/billed/internal/domain/entity"
)

// APIHandlers serve the store contract (list, create, update) over HTTP,
// plus the receipts the store keeps
type APIHandlers struct {
	store         port.Store
	receipts      port.ReceiptStorage
	maxUploadSize int64
	logger        Logger
}

// NewAPIHandlers creates the store API handlers. receipts may be nil.
func NewAPIHandlers(store port.Store, receipts port.ReceiptStorage, maxUploadSize int64, logger Logger) *APIHandlers {
	return &APIHandlers{
		store:         store,
		receipts:      receipts,
		maxUploadSize: maxUploadSize,
		logger:        logger,
	}
}

// abortWithStatus ends the request with the store error body
func abortWithStatus(c *gin.Context, status int) {
	c.AbortWithStatusJSON(status, gin.H{"error": fmt.Sprintf("Erreur %d", status)})
}

func (h *APIHandlers) fail(c *gin.Context, operation string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, port.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, port.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, entity.ErrInvalidBill):
		status = http.StatusBadRequest
	}

	h.logger.Error("Store API call failed",
		"operation", operation,
		"email", sessionFrom(c).UserEmail(),
		"status", status,
		"error", err,
	)
	abortWithStatus(c, status)
}

// ListBills handles GET /api/bills
func (h *APIHandlers) ListBills(c *gin.Context) {
	records, err := h.store.Bills(sessionFrom(c)).List(c.Request.Context())
	if err != nil {
		h.fail(c, "bills.list", err)
		return
	}
	c.JSON(http.StatusOK, records)
}

// CreateBill handles POST /api/bills. A multipart body uploads a receipt,
// a JSON body creates a complete bill.
func (h *APIHandlers) CreateBill(c *gin.Context) {
	session := sessionFrom(c)
	req := port.CreateRequest{Email: session.UserEmail()}

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if email := c.PostForm("email"); email != "" {
			req.Email = email
		}
		receipt, _, err := readReceipt(c, h.maxUploadSize)
		if err != nil {
			h.logger.Error("Invalid receipt upload", "email", req.Email, "error", err)
			abortWithStatus(c, http.StatusBadRequest)
			return
		}
		req.Receipt = &receipt
	} else {
		var bill entity.Bill
		if err := c.ShouldBindJSON(&bill); err != nil {
			h.logger.Error("Invalid bill body", "email", req.Email, "error", err)
			abortWithStatus(c, http.StatusBadRequest)
			return
		}
		req.Bill = &bill
	}

	if req.Email != session.UserEmail() {
		h.fail(c, "bills.create", port.ErrForbidden)
		return
	}

	result, err := h.store.Bills(session).Create(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "bills.create", err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// UpdateBill handles PATCH /api/bills/:id
func (h *APIHandlers) UpdateBill(c *gin.Context) {
	var bill entity.Bill
	if err := c.ShouldBindJSON(&bill); err != nil {
		h.logger.Error("Invalid bill body", "bill_id", c.Param("id"), "error", err)
		abortWithStatus(c, http.StatusBadRequest)
		return
	}

	record, err := h.store.Bills(sessionFrom(c)).Update(c.Request.Context(), port.UpdateRequest{
		ID:   c.Param("id"),
		Bill: bill,
	})
	if err != nil {
		h.fail(c, "bills.update", err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// ServeReceipt handles GET /receipts/*path
func (h *APIHandlers) ServeReceipt(c *gin.Context) {
	relPath := strings.TrimPrefix(c.Param("path"), "/")
	absPath, err := h.receipts.Open(relPath)
	if err != nil {
		if errors.Is(err, port.ErrNotFound) {
			abortWithStatus(c, http.StatusNotFound)
			return
		}
		h.logger.Error("Receipt rejected", "path", relPath, "error", err)
		abortWithStatus(c, http.StatusBadRequest)
		return
	}
	c.File(absPath)
}
