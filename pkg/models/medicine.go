package models

import "github.com/shopspring/decimal"

// Medicine is a catalog record as served by the catalog service.
type Medicine struct {
	ID                   int64           `json:"medicine_id"`
	Name                 string          `json:"name"`
	GenericName          string          `json:"generic_name"`
	Category             string          `json:"category,omitempty"`
	Manufacturer         string          `json:"manufacturer,omitempty"`
	Description          string          `json:"description,omitempty"`
	Price                decimal.Decimal `json:"price"`
	StockQuantity        int             `json:"stock_quantity"`
	PrescriptionRequired bool            `json:"prescription_required"`
}

func (m Medicine) InStock() bool { return m.StockQuantity > 0 }
