// Package view derives what the presentation layer shows from an engine
// snapshot. Render has no side effects.
package view

import (
	"fmt"
	"time"

	"github.com/example/medistore/pkg/cart"
	"github.com/example/medistore/pkg/checkout"
	"github.com/example/medistore/pkg/engine"
	"github.com/example/medistore/pkg/models"
	"github.com/example/medistore/pkg/reminder"
	"github.com/shopspring/decimal"
)

type Line struct {
	MedicineID int64           `json:"medicine_id"`
	Name       string          `json:"name"`
	UnitPrice  decimal.Decimal `json:"price"`
	Quantity   int             `json:"quantity"`
	LineTotal  decimal.Decimal `json:"lineTotal"`
}

type Cart struct {
	Lines       []Line          `json:"lines"`
	Count       int             `json:"count"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	DeliveryFee decimal.Decimal `json:"deliveryFee"`
	Total       decimal.Decimal `json:"total"`
	Empty       bool            `json:"empty"`
}

type Reminder struct {
	models.Reminder
	Schedule  []string   `json:"schedule"`
	NextAlert *time.Time `json:"nextAlert,omitempty"`
}

type Session struct {
	LoggedIn bool         `json:"loggedIn"`
	User     *models.User `json:"user,omitempty"`
}

type View struct {
	Cart           Cart                     `json:"cart"`
	Orders         []models.Order           `json:"orders"`
	Reminders      []Reminder               `json:"reminders"`
	Session        Session                  `json:"session"`
	PaymentOptions []checkout.PaymentOption `json:"paymentOptions"`
}

func Render(s engine.Snapshot) View {
	return View{
		Cart:           renderCart(s.Items, s.DeliveryFee),
		Orders:         nonNilOrders(s.Orders),
		Reminders:      renderReminders(s.Reminders, s.Now),
		Session:        Session{LoggedIn: s.User != nil, User: s.User},
		PaymentOptions: checkout.PaymentOptions(),
	}
}

func renderCart(items []models.CartItem, fee decimal.Decimal) Cart {
	c := Cart{
		Lines:       make([]Line, 0, len(items)),
		Subtotal:    cart.Subtotal(items),
		DeliveryFee: fee,
		Empty:       len(items) == 0,
	}
	for _, it := range items {
		c.Lines = append(c.Lines, Line{
			MedicineID: it.MedicineID,
			Name:       it.Name,
			UnitPrice:  it.UnitPrice,
			Quantity:   it.Quantity,
			LineTotal:  it.LineTotal(),
		})
		c.Count += it.Quantity
	}
	// An empty cart owes nothing; the fee only applies to an order.
	if !c.Empty {
		c.Total = c.Subtotal.Add(fee)
	}
	return c
}

func nonNilOrders(orders []models.Order) []models.Order {
	if orders == nil {
		return []models.Order{}
	}
	return orders
}

func renderReminders(reminders []models.Reminder, now time.Time) []Reminder {
	out := make([]Reminder, 0, len(reminders))
	for _, r := range reminders {
		v := Reminder{Reminder: r, Schedule: schedule(r)}
		if at, ok := reminder.NextAlert(r, now); ok {
			v.NextAlert = &at
		}
		out = append(out, v)
	}
	return out
}

func schedule(r models.Reminder) []string {
	slots := reminder.Slots(r)
	out := make([]string, 0, len(slots))
	for _, m := range slots {
		out = append(out, fmt.Sprintf("%02d:%02d", m/60, m%60))
	}
	return out
}
