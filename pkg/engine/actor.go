package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/example/medistore/pkg/apperr"
	"github.com/example/medistore/pkg/checkout"
	"github.com/example/medistore/pkg/models"
	"github.com/example/medistore/pkg/notify"
	"github.com/example/medistore/pkg/reminder"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Intents. Each is handled to completion by the engine actor before the next
// one is taken from the mailbox.
type (
	AddToCart struct {
		MedicineID int64
		Name       string
		UnitPrice  decimal.Decimal
	}

	UpdateQuantity struct {
		MedicineID int64
		Delta      int
	}

	RemoveFromCart struct {
		MedicineID int64
	}

	Checkout struct {
		Request checkout.Request
		// RequireLogin rejects the checkout with apperr.ErrUnauthenticated
		// when no user is logged in.
		RequireLogin bool
	}

	ListOrders struct{}

	CreateReminder struct {
		Input reminder.Input
	}

	DeleteReminder struct {
		ID string
	}

	ListReminders struct{}

	ApplyLogin struct {
		Token string
		User  models.User
	}

	Logout struct{}

	CheckReminders struct {
		Now time.Time
	}

	GetSnapshot struct{}
)

// Reply answers every intent with the state after it was applied.
type Reply struct {
	Snapshot  Snapshot
	Order     *models.Order
	Orders    []models.Order
	Reminder  *models.Reminder
	Reminders []models.Reminder
	Alerts    []notify.Alert
	Err       error
}

// Actor owns one Engine. Persistence calls made while handling an intent are
// bounded by the deadline the intent was dispatched with, or by opTimeout when
// it arrived without one.
type Actor struct {
	engine    *Engine
	opTimeout time.Duration
	logger    *zap.Logger
}

// envelope carries an intent together with the caller's deadline.
type envelope struct {
	intent   interface{}
	deadline time.Time
}

func (a *Actor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		a.logger.Info("Engine actor started")

	case *actor.Stopping:
		a.logger.Info("Engine actor stopping")

	case *actor.Stopped:
		a.logger.Info("Engine actor stopped")

	case *envelope:
		// Expired intents are answered but never applied.
		if !time.Now().Before(msg.deadline) {
			a.logger.Warn("Dropping expired intent", zap.String("intent", fmt.Sprintf("%T", msg.intent)))
			a.respond(ctx, &Reply{Err: context.DeadlineExceeded})
			return
		}
		a.apply(ctx, msg.intent, msg.deadline)

	default:
		a.apply(ctx, msg, time.Now().Add(a.opTimeout))
	}
}

func (a *Actor) apply(ctx actor.Context, intent interface{}, deadline time.Time) {
	switch msg := intent.(type) {
	case *AddToCart:
		a.handle(ctx, deadline, func(c context.Context, r *Reply) error {
			return a.engine.AddToCart(c, msg.MedicineID, msg.Name, msg.UnitPrice)
		})

	case *UpdateQuantity:
		a.handle(ctx, deadline, func(c context.Context, r *Reply) error {
			return a.engine.UpdateQuantity(c, msg.MedicineID, msg.Delta)
		})

	case *RemoveFromCart:
		a.handle(ctx, deadline, func(c context.Context, r *Reply) error {
			return a.engine.RemoveFromCart(c, msg.MedicineID)
		})

	case *Checkout:
		a.handle(ctx, deadline, func(c context.Context, r *Reply) error {
			if msg.RequireLogin && !a.engine.LoggedIn() {
				return apperr.ErrUnauthenticated
			}
			order, err := a.engine.Checkout(c, msg.Request)
			if err != nil {
				return err
			}
			r.Order = &order
			return nil
		})

	case *ListOrders:
		a.handle(ctx, deadline, func(c context.Context, r *Reply) error {
			r.Orders = a.engine.Orders()
			return nil
		})

	case *CreateReminder:
		a.handle(ctx, deadline, func(c context.Context, r *Reply) error {
			rem, err := a.engine.CreateReminder(c, msg.Input)
			if err != nil {
				return err
			}
			r.Reminder = &rem
			return nil
		})

	case *DeleteReminder:
		a.handle(ctx, deadline, func(c context.Context, r *Reply) error {
			return a.engine.DeleteReminder(c, msg.ID)
		})

	case *ListReminders:
		a.handle(ctx, deadline, func(c context.Context, r *Reply) error {
			r.Reminders = a.engine.Reminders()
			return nil
		})

	case *ApplyLogin:
		a.handle(ctx, deadline, func(c context.Context, r *Reply) error {
			return a.engine.ApplyLogin(c, msg.Token, msg.User)
		})

	case *Logout:
		a.handle(ctx, deadline, func(c context.Context, r *Reply) error {
			return a.engine.Logout(c)
		})

	case *CheckReminders:
		a.handle(ctx, deadline, func(c context.Context, r *Reply) error {
			r.Alerts = a.engine.CheckReminders(c, msg.Now)
			return nil
		})

	case *GetSnapshot:
		a.handle(ctx, deadline, func(c context.Context, r *Reply) error { return nil })
	}
}

func (a *Actor) handle(ctx actor.Context, deadline time.Time, fn func(context.Context, *Reply) error) {
	opCtx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	reply := &Reply{}
	reply.Err = fn(opCtx, reply)
	a.respond(ctx, reply)
}

func (a *Actor) respond(ctx actor.Context, reply *Reply) {
	reply.Snapshot = a.engine.Snapshot()
	if ctx.Sender() != nil {
		ctx.Respond(reply)
	}
}

var ErrUnexpectedReply = errors.New("unexpected reply from engine actor")

// Dispatcher sends intents to the engine actor and waits for the reply.
type Dispatcher struct {
	root    *actor.RootContext
	pid     *actor.PID
	timeout time.Duration
	logger  *zap.Logger
}

// Spawn starts the engine actor on system. The engine must already be loaded.
func Spawn(system *actor.ActorSystem, e *Engine, timeout time.Duration, logger *zap.Logger) (*Dispatcher, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	props := actor.PropsFromProducer(func() actor.Actor {
		return &Actor{engine: e, opTimeout: timeout, logger: logger.Named("engine-actor")}
	})
	pid, err := system.Root.SpawnNamed(props, "engine")
	if err != nil {
		return nil, fmt.Errorf("failed to spawn engine actor: %w", err)
	}
	return &Dispatcher{root: system.Root, pid: pid, timeout: timeout, logger: logger}, nil
}

// Dispatch delivers intent and returns the reply. The reply's Err, if any, is
// also returned as the error. An intent still queued when the caller's
// deadline passes is dropped by the actor rather than applied late.
func (d *Dispatcher) Dispatch(ctx context.Context, intent interface{}) (*Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	timeout := d.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	env := &envelope{intent: intent, deadline: time.Now().Add(timeout)}
	res, err := d.root.RequestFuture(d.pid, env, timeout).Result()
	if err != nil {
		d.logger.Error("Intent failed", zap.String("intent", fmt.Sprintf("%T", intent)), zap.Error(err))
		return nil, fmt.Errorf("dispatch %T: %w", intent, err)
	}
	reply, ok := res.(*Reply)
	if !ok {
		return nil, fmt.Errorf("dispatch %T: %w", intent, ErrUnexpectedReply)
	}
	return reply, reply.Err
}

// Stop stops the engine actor and waits for it to finish the current intent.
func (d *Dispatcher) Stop() error {
	return d.root.StopFuture(d.pid).Wait()
}
