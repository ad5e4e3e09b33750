package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderStatusConfirmed = "Confirmed"

	PaymentCashOnDelivery = "Cash on Delivery"
	PaymentOnline         = "Online Payment"
)

type CustomerInfo struct {
	Name    string `json:"name" validate:"required"`
	Phone   string `json:"phone" validate:"required"`
	Address string `json:"address" validate:"required"`
	City    string `json:"city" validate:"required"`
	Pincode string `json:"pincode" validate:"required"`
}

// Order is an immutable record of a completed checkout.
type Order struct {
	OrderID       string          `json:"orderId"`
	UserID        string          `json:"userId,omitempty"`
	Items         []CartItem      `json:"items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	DeliveryFee   decimal.Decimal `json:"deliveryFee"`
	Total         decimal.Decimal `json:"total"`
	CustomerInfo  CustomerInfo    `json:"customerInfo"`
	OrderDate     time.Time       `json:"orderDate"`
	Status        string          `json:"status"`
	PaymentMethod string          `json:"paymentMethod"`
}

// Clone returns a deep copy so callers can never reach the ledger's slices.
func (o Order) Clone() Order {
	o.Items = append([]CartItem(nil), o.Items...)
	return o
}

// UnmarshalJSON also accepts the locale-formatted orderDate written by older
// clients.
func (o *Order) UnmarshalJSON(data []byte) error {
	type plain Order
	aux := struct {
		*plain
		OrderDate json.RawMessage `json:"orderDate"`
	}{plain: (*plain)(o)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	at, err := looseTime(aux.OrderDate)
	if err != nil {
		return fmt.Errorf("order date: %w", err)
	}
	o.OrderDate = at
	return nil
}
