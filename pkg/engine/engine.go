// Package engine is the client-side commerce state: cart, order ledger,
// reminders and session, owned by one Engine value and mutated only through
// its methods.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/example/medistore/pkg/cart"
	"github.com/example/medistore/pkg/checkout"
	"github.com/example/medistore/pkg/ledger"
	"github.com/example/medistore/pkg/models"
	"github.com/example/medistore/pkg/notify"
	"github.com/example/medistore/pkg/reminder"
	"github.com/example/medistore/pkg/session"
	"github.com/example/medistore/pkg/storage"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	AuditOrderPlaced     = "order_placed"
	AuditReminderCreated = "reminder_created"
	AuditReminderDeleted = "reminder_deleted"
)

// Auditor receives a record of every order and reminder lifecycle event.
type Auditor interface {
	Record(ctx context.Context, action, entityID string, data map[string]interface{}) error
}

type Options struct {
	DeliveryFee         decimal.Decimal
	DefaultDurationDays int
	Clock               func() time.Time
	NewOrderID          func() string
	NewReminderID       func() string
}

type Engine struct {
	cart      *cart.Store
	ledger    *ledger.Ledger
	reminders *reminder.Scheduler
	session   *session.State
	checkout  *checkout.Orchestrator
	notifier  notify.Service
	auditor   Auditor
	clock     func() time.Time
	logger    *zap.Logger
}

// New builds an engine over store. notifier and auditor may be nil.
func New(store storage.Store, notifier notify.Service, auditor Auditor, opts Options, logger *zap.Logger) *Engine {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	c := cart.NewStore(store, logger.Named("cart"))
	l := ledger.New(store, logger.Named("ledger"))
	return &Engine{
		cart:   c,
		ledger: l,
		reminders: reminder.NewScheduler(store, notifier, reminder.Options{
			DefaultDurationDays: opts.DefaultDurationDays,
			Clock:               opts.Clock,
			NewID:               opts.NewReminderID,
		}, logger.Named("reminder")),
		session: session.New(store, opts.Clock, logger.Named("session")),
		checkout: checkout.New(c, l, checkout.Options{
			DeliveryFee: opts.DeliveryFee,
			Clock:       opts.Clock,
			NewOrderID:  opts.NewOrderID,
		}, logger.Named("checkout")),
		notifier: notifier,
		auditor:  auditor,
		clock:    opts.Clock,
		logger:   logger,
	}
}

// Load hydrates every store from persistence. It is called once per session,
// before any intent is handled. A key whose value cannot be decoded is logged
// and its store starts empty; any other storage error is returned as is.
func (e *Engine) Load(ctx context.Context) error {
	steps := []func(context.Context) error{
		e.cart.Load,
		e.ledger.Load,
		e.reminders.Load,
		e.session.Restore,
	}
	for _, step := range steps {
		err := step(ctx)
		if err == nil {
			continue
		}
		// An unreadable value leaves its store empty; the session goes on.
		var de *storage.DecodeError
		if errors.As(err, &de) {
			e.logger.Error("Stored value unreadable, starting empty",
				zap.String("key", de.Key), zap.Error(err))
			continue
		}
		return err
	}
	e.logger.Info("Engine loaded",
		zap.Strings("keys", storage.Keys),
		zap.Int("cart_lines", len(e.cart.Items())),
		zap.Int("orders", e.ledger.Len()),
		zap.Int("reminders", e.reminders.Len()),
		zap.Bool("logged_in", e.session.LoggedIn()))
	return nil
}

func (e *Engine) AddToCart(ctx context.Context, medicineID int64, name string, unitPrice decimal.Decimal) error {
	return e.cart.AddItem(ctx, medicineID, name, unitPrice)
}

func (e *Engine) UpdateQuantity(ctx context.Context, medicineID int64, delta int) error {
	return e.cart.UpdateQuantity(ctx, medicineID, delta)
}

func (e *Engine) RemoveFromCart(ctx context.Context, medicineID int64) error {
	return e.cart.RemoveItem(ctx, medicineID)
}

// Checkout places an order for the current cart on behalf of the logged-in
// user, if any.
func (e *Engine) Checkout(ctx context.Context, req checkout.Request) (models.Order, error) {
	req.UserID = e.session.UserID()
	order, err := e.checkout.Checkout(ctx, req)
	if err != nil {
		return models.Order{}, err
	}
	e.audit(ctx, AuditOrderPlaced, order.OrderID, map[string]interface{}{
		"user_id":        order.UserID,
		"total":          order.Total.StringFixed(2),
		"lines":          len(order.Items),
		"payment_method": order.PaymentMethod,
	})
	return order, nil
}

func (e *Engine) Orders() []models.Order { return e.ledger.List() }

func (e *Engine) CreateReminder(ctx context.Context, in reminder.Input) (models.Reminder, error) {
	r, err := e.reminders.Create(ctx, in)
	if err != nil {
		return models.Reminder{}, err
	}
	e.audit(ctx, AuditReminderCreated, r.ID, map[string]interface{}{
		"medicine_name": r.MedicineName,
		"frequency":     string(r.Frequency),
		"time":          r.Time,
		"duration":      r.DurationDays,
	})
	return r, nil
}

func (e *Engine) DeleteReminder(ctx context.Context, id string) error {
	before := e.reminders.Len()
	if err := e.reminders.Delete(ctx, id); err != nil {
		return err
	}
	if e.reminders.Len() < before {
		e.audit(ctx, AuditReminderDeleted, id, nil)
	}
	return nil
}

func (e *Engine) Reminders() []models.Reminder { return e.reminders.List() }

func (e *Engine) ApplyLogin(ctx context.Context, token string, user models.User) error {
	return e.session.Apply(ctx, token, user)
}

func (e *Engine) Logout(ctx context.Context) error {
	if err := e.session.Clear(ctx); err != nil {
		return err
	}
	e.logger.Info("Logged out")
	return nil
}

func (e *Engine) LoggedIn() bool { return e.session.LoggedIn() }

// CheckReminders alerts for every reminder due in the minute containing now
// and returns the alerts that were attempted. Delivery failures are logged.
func (e *Engine) CheckReminders(ctx context.Context, now time.Time) []notify.Alert {
	due := e.reminders.Due(now)
	if len(due) == 0 {
		return nil
	}
	alerts := make([]notify.Alert, 0, len(due))
	for _, r := range due {
		a := notify.Alert{
			ReminderID: r.ID,
			Title:      "Time for " + r.MedicineName,
			Body:       alertBody(r),
			At:         now.Truncate(time.Minute),
		}
		alerts = append(alerts, a)
		if e.notifier == nil {
			continue
		}
		if err := e.notifier.Alert(ctx, a); err != nil {
			e.logger.Warn("Reminder alert not delivered", zap.String("reminder_id", r.ID), zap.Error(err))
		}
	}
	return alerts
}

func alertBody(r models.Reminder) string {
	if r.Instructions == "" {
		return "Take " + r.Dosage
	}
	return "Take " + r.Dosage + ". " + r.Instructions
}

// Snapshot is a read-only copy of the state, taken at a single point in time.
type Snapshot struct {
	Items       []models.CartItem
	DeliveryFee decimal.Decimal
	Orders      []models.Order
	Reminders   []models.Reminder
	User        *models.User
	Now         time.Time
}

func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		Items:       e.cart.Items(),
		DeliveryFee: e.checkout.DeliveryFee(),
		Orders:      e.ledger.List(),
		Reminders:   e.reminders.List(),
		User:        e.session.User(),
		Now:         e.clock(),
	}
}

func (e *Engine) audit(ctx context.Context, action, entityID string, data map[string]interface{}) {
	if e.auditor == nil {
		return
	}
	if err := e.auditor.Record(ctx, action, entityID, data); err != nil {
		e.logger.Warn("Failed to record audit entry",
			zap.String("action", action), zap.String("entity_id", entityID), zap.Error(err))
	}
}
