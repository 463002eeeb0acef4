package port

import "context"

// ReceiptStorage stores uploaded receipt files
type ReceiptStorage interface {
	// Save writes a receipt and returns its path relative to the storage root
	Save(ctx context.Context, owner, fileName string, content []byte) (string, error)

	// Open returns the absolute path of a stored receipt after validating it
	Open(relativePath string) (string, error)
}
