package port

import (
	"fmt"

	"github.com/garyjia/billed/internal/domain/entity"
	"github.com/mitchellh/mapstructure"
)

// DecodeBill converts a loosely typed record into a Bill.
// Numbers given as strings (and the reverse) are converted.
func DecodeBill(record RawRecord) (entity.Bill, error) {
	var bill entity.Bill
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &bill,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return bill, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(map[string]interface{}(record)); err != nil {
		return bill, fmt.Errorf("failed to decode bill record: %w", err)
	}
	return bill, nil
}

// EncodeBill converts a Bill into the record shape returned by the store
func EncodeBill(bill entity.Bill) (RawRecord, error) {
	record := make(map[string]interface{})
	if err := mapstructure.Decode(bill, &record); err != nil {
		return nil, fmt.Errorf("failed to encode bill record: %w", err)
	}
	record["status"] = bill.Status.String()
	return RawRecord(record), nil
}
