// Package reminder stores medication reminders and works out when they are
// due. Reminders are independent of the cart and of orders.
package reminder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/example/medistore/pkg/models"
	"github.com/example/medistore/pkg/notify"
	"github.com/example/medistore/pkg/storage"
	"github.com/example/medistore/pkg/validate"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultDurationDays = 7

// Input is what the user fills in to create a reminder.
type Input struct {
	MedicineName string `json:"medicineName" validate:"required"`
	Dosage       string `json:"dosage" validate:"required"`
	Frequency    string `json:"frequency" validate:"required,oneof=once twice thrice four"`
	Time         string `json:"time" validate:"required,datetime=15:04"`
	DurationDays int    `json:"duration"`
	Instructions string `json:"instructions"`
}

type Options struct {
	DefaultDurationDays int
	Clock               func() time.Time
	NewID               func() string
}

type Scheduler struct {
	reminders       []models.Reminder
	store           storage.Store
	notifier        notify.Service
	askedPermission bool
	defaultDuration int
	clock           func() time.Time
	newID           func() string
	logger          *zap.Logger
}

func NewScheduler(store storage.Store, notifier notify.Service, opts Options, logger *zap.Logger) *Scheduler {
	s := &Scheduler{
		store:           store,
		notifier:        notifier,
		defaultDuration: opts.DefaultDurationDays,
		clock:           opts.Clock,
		newID:           opts.NewID,
		logger:          logger,
	}
	if s.defaultDuration <= 0 {
		s.defaultDuration = DefaultDurationDays
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// Load replaces the reminders with the persisted ones. Stored reminders
// without a usable duration get the default one.
func (s *Scheduler) Load(ctx context.Context) error {
	s.reminders = nil
	var reminders []models.Reminder
	if _, err := s.store.Get(ctx, storage.KeyReminders, &reminders); err != nil {
		return fmt.Errorf("failed to load reminders: %w", err)
	}
	for i := range reminders {
		if reminders[i].DurationDays <= 0 {
			reminders[i].DurationDays = s.defaultDuration
		}
	}
	s.reminders = reminders
	return nil
}

// List returns the reminders in storage order.
func (s *Scheduler) List() []models.Reminder {
	return append([]models.Reminder(nil), s.reminders...)
}

func (s *Scheduler) Len() int { return len(s.reminders) }

func (s *Scheduler) Create(ctx context.Context, in Input) (models.Reminder, error) {
	in.MedicineName = strings.TrimSpace(in.MedicineName)
	in.Dosage = strings.TrimSpace(in.Dosage)
	in.Frequency = strings.TrimSpace(in.Frequency)
	in.Time = strings.TrimSpace(in.Time)
	in.Instructions = strings.TrimSpace(in.Instructions)

	if err := validate.Struct(in); err != nil {
		s.logger.Debug("Reminder rejected", zap.Error(err))
		return models.Reminder{}, err
	}

	duration := in.DurationDays
	if duration <= 0 {
		duration = s.defaultDuration
	}

	r := models.Reminder{
		ID:           s.newID(),
		MedicineName: in.MedicineName,
		Dosage:       in.Dosage,
		Frequency:    models.Frequency(in.Frequency),
		Time:         in.Time,
		DurationDays: duration,
		Instructions: in.Instructions,
		CreatedAt:    s.clock(),
		IsActive:     true,
	}

	next := append(s.reminders[:len(s.reminders):len(s.reminders)], r)
	if err := s.persist(ctx, next); err != nil {
		return models.Reminder{}, err
	}
	s.reminders = next
	s.logger.Info("Reminder created",
		zap.String("reminder_id", r.ID),
		zap.String("medicine", r.MedicineName),
		zap.String("time", r.Time))

	s.requestPermissionOnce(ctx)
	return r, nil
}

// Delete removes the reminder with id. Unknown ids are ignored.
func (s *Scheduler) Delete(ctx context.Context, id string) error {
	idx := -1
	for i := range s.reminders {
		if s.reminders[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}

	next := append(s.reminders[:idx:idx], s.reminders[idx+1:]...)
	if err := s.persist(ctx, next); err != nil {
		return err
	}
	s.reminders = next
	s.logger.Info("Reminder deleted", zap.String("reminder_id", id))
	return nil
}

// Due returns the reminders that should alert during the minute containing now.
func (s *Scheduler) Due(now time.Time) []models.Reminder {
	var due []models.Reminder
	for _, r := range s.reminders {
		if IsDue(r, now) {
			due = append(due, r)
		}
	}
	return due
}

func (s *Scheduler) requestPermissionOnce(ctx context.Context) {
	if s.askedPermission || s.notifier == nil {
		return
	}
	s.askedPermission = true
	p, err := s.notifier.RequestPermission(ctx)
	if err != nil {
		s.logger.Debug("Notification permission request failed", zap.Error(err))
		return
	}
	s.logger.Debug("Notification permission", zap.String("permission", string(p)))
}

func (s *Scheduler) persist(ctx context.Context, reminders []models.Reminder) error {
	if reminders == nil {
		reminders = []models.Reminder{}
	}
	if err := s.store.Set(ctx, storage.KeyReminders, reminders); err != nil {
		s.logger.Error("Failed to persist reminders", zap.Error(err))
		return fmt.Errorf("failed to persist reminders: %w", err)
	}
	return nil
}
