package port

import (
	"testing"

	"github.com/garyjia/billed/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBill(t *testing.T) {
	t.Run("decodes loosely typed values", func(t *testing.T) {
		bill, err := DecodeBill(RawRecord{
			"id":           1,
			"vat":          80,
			"amount":       "400",
			"pct":          20.0,
			"status":       "pending",
			"type":         "Hôtel et logement",
			"commentAdmin": nil,
			"fileUrl":      "https://localhost:3456/images/test.jpg",
		})

		require.NoError(t, err)
		assert.Equal(t, "1", bill.ID)
		assert.Equal(t, "80", bill.VAT)
		assert.Equal(t, 400.0, bill.Amount)
		assert.Equal(t, 20, bill.Pct)
		assert.Equal(t, entity.BillStatusPending, bill.Status)
		assert.Equal(t, "Hôtel et logement", bill.Type)
		assert.Empty(t, bill.CommentAdmin)
		assert.Equal(t, "https://localhost:3456/images/test.jpg", bill.FileURL)
	})

	t.Run("rejects unconvertible values", func(t *testing.T) {
		_, err := DecodeBill(RawRecord{"amount": "four hundred"})
		assert.Error(t, err)
	})
}

func TestEncodeBill(t *testing.T) {
	record, err := EncodeBill(entity.Bill{
		ID:       "47qAXb6fIm2zOKkLzMro",
		Amount:   400,
		Pct:      20,
		Status:   entity.BillStatusPending,
		Email:    "a@a",
		FileName: "preview-facture-free-201801-pdf-1.jpg",
	})

	require.NoError(t, err)
	assert.Equal(t, "47qAXb6fIm2zOKkLzMro", record["id"])
	assert.Equal(t, "pending", record["status"])
	assert.Equal(t, "a@a", record["email"])
	assert.Equal(t, "preview-facture-free-201801-pdf-1.jpg", record["fileName"])

	decoded, err := DecodeBill(record)
	require.NoError(t, err)
	assert.Equal(t, 400.0, decoded.Amount)
}
