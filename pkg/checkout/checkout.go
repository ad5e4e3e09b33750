// Package checkout turns the current cart into a placed order.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/medistore/pkg/apperr"
	"github.com/example/medistore/pkg/cart"
	"github.com/example/medistore/pkg/ledger"
	"github.com/example/medistore/pkg/models"
	"github.com/example/medistore/pkg/validate"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxIDAttempts = 3

// PaymentOption is one entry of the payment selector. Only enabled options
// can be used at checkout.
type PaymentOption struct {
	Method  string `json:"method"`
	Enabled bool   `json:"enabled"`
}

var paymentOptions = []PaymentOption{
	{Method: models.PaymentCashOnDelivery, Enabled: true},
	{Method: models.PaymentOnline, Enabled: false},
}

func PaymentOptions() []PaymentOption {
	return append([]PaymentOption(nil), paymentOptions...)
}

func paymentEnabled(method string) bool {
	for _, opt := range paymentOptions {
		if opt.Method == method {
			return opt.Enabled
		}
	}
	return false
}

// Summary is the price breakdown shown before an order is placed.
type Summary struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	DeliveryFee decimal.Decimal `json:"deliveryFee"`
	Total       decimal.Decimal `json:"total"`
}

type Request struct {
	Customer models.CustomerInfo `json:"customerInfo"`
	// PaymentMethod defaults to cash on delivery when empty.
	PaymentMethod string `json:"paymentMethod,omitempty"`
	UserID        string `json:"-"`
}

type Options struct {
	DeliveryFee decimal.Decimal
	Clock       func() time.Time
	NewOrderID  func() string
}

type Orchestrator struct {
	cart        *cart.Store
	ledger      *ledger.Ledger
	deliveryFee decimal.Decimal
	clock       func() time.Time
	newOrderID  func() string
	logger      *zap.Logger
}

func New(c *cart.Store, l *ledger.Ledger, opts Options, logger *zap.Logger) *Orchestrator {
	o := &Orchestrator{
		cart:        c,
		ledger:      l,
		deliveryFee: opts.DeliveryFee,
		clock:       opts.Clock,
		newOrderID:  opts.NewOrderID,
		logger:      logger,
	}
	if o.clock == nil {
		o.clock = time.Now
	}
	if o.newOrderID == nil {
		o.newOrderID = NewOrderID
	}
	return o
}

// NewOrderID returns "ORD-" followed by a random UUID.
func NewOrderID() string {
	return "ORD-" + strings.ToUpper(uuid.NewString())
}

func (o *Orchestrator) DeliveryFee() decimal.Decimal { return o.deliveryFee }

// Quote prices the current cart.
func (o *Orchestrator) Quote() Summary {
	subtotal := o.cart.Subtotal()
	return Summary{
		Subtotal:    subtotal,
		DeliveryFee: o.deliveryFee,
		Total:       subtotal.Add(o.deliveryFee),
	}
}

func normalize(c models.CustomerInfo) models.CustomerInfo {
	return models.CustomerInfo{
		Name:    strings.TrimSpace(c.Name),
		Phone:   strings.TrimSpace(c.Phone),
		Address: strings.TrimSpace(c.Address),
		City:    strings.TrimSpace(c.City),
		Pincode: strings.TrimSpace(c.Pincode),
	}
}

// Checkout validates the request, appends a new order to the ledger and then
// empties the cart. On any validation failure nothing is mutated.
func (o *Orchestrator) Checkout(ctx context.Context, req Request) (models.Order, error) {
	if o.cart.IsEmpty() {
		return models.Order{}, apperr.NewValidation("cart is empty")
	}

	customer := normalize(req.Customer)
	if err := validate.Struct(customer); err != nil {
		o.logger.Debug("Checkout rejected", zap.Error(err))
		return models.Order{}, err
	}

	method := strings.TrimSpace(req.PaymentMethod)
	if method == "" {
		method = models.PaymentCashOnDelivery
	}
	if !paymentEnabled(method) {
		return models.Order{}, apperr.NewValidation("payment method not available", "paymentMethod")
	}

	orderID, err := o.uniqueOrderID()
	if err != nil {
		return models.Order{}, err
	}

	quote := o.Quote()
	order := models.Order{
		OrderID:       orderID,
		UserID:        req.UserID,
		Items:         o.cart.Items(),
		Subtotal:      quote.Subtotal,
		DeliveryFee:   quote.DeliveryFee,
		Total:         quote.Total,
		CustomerInfo:  customer,
		OrderDate:     o.clock(),
		Status:        models.OrderStatusConfirmed,
		PaymentMethod: method,
	}

	if err := o.ledger.Append(ctx, order); err != nil {
		return models.Order{}, fmt.Errorf("failed to place order: %w", err)
	}

	// The order is already in the ledger; a failed clear is only logged.
	if err := o.cart.Clear(ctx); err != nil {
		o.logger.Error("Order placed but cart not cleared",
			zap.String("order_id", order.OrderID), zap.Error(err))
	}

	o.logger.Info("Order placed",
		zap.String("order_id", order.OrderID),
		zap.String("total", order.Total.StringFixed(2)),
		zap.Int("lines", len(order.Items)))
	return order.Clone(), nil
}

func (o *Orchestrator) uniqueOrderID() (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id := o.newOrderID()
		if !o.ledger.Contains(id) {
			return id, nil
		}
	}
	return "", errors.New("could not allocate a unique order id")
}
