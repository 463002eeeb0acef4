package port

import (
	"context"

	"github.com/garyjia/billed/internal/domain/entity"
)

// RawRecord is a bill as returned by the store: loosely typed key/value data
type RawRecord map[string]interface{}

// Receipt is an uploaded receipt file
type Receipt struct {
	FileName    string
	ContentType string
	Content     []byte
}

// CreateRequest carries either a receipt upload or a complete bill
type CreateRequest struct {
	Email   string
	Receipt *Receipt
	Bill    *entity.Bill
}

// CreateResult is the store's answer to a create: the server-assigned id
// and, for uploads, where the receipt can be fetched from
type CreateResult struct {
	ID       string `json:"key"`
	FileURL  string `json:"fileUrl"`
	FileName string `json:"fileName"`
}

// UpdateRequest replaces the bill stored under ID
type UpdateRequest struct {
	ID   string
	Bill entity.Bill
}

// BillsClient is the bills resource of the remote store
type BillsClient interface {
	List(ctx context.Context) ([]RawRecord, error)
	Create(ctx context.Context, req CreateRequest) (*CreateResult, error)
	Update(ctx context.Context, req UpdateRequest) (RawRecord, error)
}

// Store hands out resource clients scoped to the caller's session
type Store interface {
	Bills(session *entity.Session) BillsClient
}
