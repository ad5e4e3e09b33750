package models

import "github.com/shopspring/decimal"

// CartItem is one line of the in-progress order. JSON names match the
// persisted "cart" blob.
type CartItem struct {
	MedicineID int64           `json:"medicine_id"`
	Name       string          `json:"name"`
	UnitPrice  decimal.Decimal `json:"price"`
	Quantity   int             `json:"quantity"`
}

// LineTotal is UnitPrice × Quantity.
func (i CartItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
