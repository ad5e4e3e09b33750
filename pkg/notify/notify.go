package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

var ErrNotPermitted = errors.New("notifications not permitted")

// Alert is a single reminder notification shown to the user.
type Alert struct {
	ReminderID string    `json:"reminderId"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	At         time.Time `json:"at"`
}

// Service is the notification collaborator. Delivery is best effort.
type Service interface {
	RequestPermission(ctx context.Context) (Permission, error)
	Alert(ctx context.Context, a Alert) error
}

// LogNotifier shows alerts by logging them. The user's answer to the
// permission prompt comes from Decide (granted when nil).
type LogNotifier struct {
	mu         sync.Mutex
	permission Permission
	decide     func() Permission
	logger     *zap.Logger
}

func NewLogNotifier(logger *zap.Logger, decide func() Permission) *LogNotifier {
	return &LogNotifier{
		permission: PermissionDefault,
		decide:     decide,
		logger:     logger,
	}
}

// RequestPermission prompts only while the permission is still undecided.
func (n *LogNotifier) RequestPermission(ctx context.Context) (Permission, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.permission != PermissionDefault {
		return n.permission, nil
	}
	answer := PermissionGranted
	if n.decide != nil {
		answer = n.decide()
	}
	n.permission = answer
	n.logger.Info("Notification permission decided", zap.String("permission", string(answer)))
	return answer, nil
}

func (n *LogNotifier) Permission() Permission {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.permission
}

func (n *LogNotifier) Alert(ctx context.Context, a Alert) error {
	if n.Permission() != PermissionGranted {
		return ErrNotPermitted
	}
	n.logger.Info("Sending notification",
		zap.String("reminder_id", a.ReminderID),
		zap.String("title", a.Title),
		zap.String("body", a.Body),
		zap.Time("at", a.At))
	return nil
}
