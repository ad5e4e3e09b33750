// Package session holds the authenticated identity for the running
// storefront and keeps it in the persistence adapter.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/example/medistore/pkg/models"
	"github.com/example/medistore/pkg/storage"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type State struct {
	token  string
	user   *models.User
	store  storage.Store
	clock  func() time.Time
	logger *zap.Logger
}

func New(store storage.Store, clock func() time.Time, logger *zap.Logger) *State {
	if clock == nil {
		clock = time.Now
	}
	return &State{store: store, clock: clock, logger: logger}
}

// Restore loads the persisted token and user. A session is restored only when
// both are present; a token whose exp claim has passed is dropped.
func (s *State) Restore(ctx context.Context) error {
	var token string
	var user models.User
	hasToken, err := s.store.Get(ctx, storage.KeyAuthToken, &token)
	if err != nil {
		return fmt.Errorf("failed to load auth token: %w", err)
	}
	hasUser, err := s.store.Get(ctx, storage.KeyCurrentUser, &user)
	if err != nil {
		return fmt.Errorf("failed to load current user: %w", err)
	}
	if !hasToken || !hasUser || token == "" {
		return nil
	}

	if expired(token, s.clock()) {
		s.logger.Info("Stored session expired", zap.String("email", user.Email))
		return s.Clear(ctx)
	}

	s.token = token
	s.user = &user
	return nil
}

// Apply records a successful login.
func (s *State) Apply(ctx context.Context, token string, user models.User) error {
	if err := s.store.Set(ctx, storage.KeyAuthToken, token); err != nil {
		return fmt.Errorf("failed to persist auth token: %w", err)
	}
	if err := s.store.Set(ctx, storage.KeyCurrentUser, user); err != nil {
		return fmt.Errorf("failed to persist current user: %w", err)
	}
	s.token = token
	s.user = &user
	s.logger.Info("Logged in", zap.Int64("user_id", user.ID), zap.String("email", user.Email))
	return nil
}

// Clear logs out.
func (s *State) Clear(ctx context.Context) error {
	s.token = ""
	s.user = nil
	if err := s.store.Delete(ctx, storage.KeyAuthToken); err != nil {
		return fmt.Errorf("failed to delete auth token: %w", err)
	}
	if err := s.store.Delete(ctx, storage.KeyCurrentUser); err != nil {
		return fmt.Errorf("failed to delete current user: %w", err)
	}
	return nil
}

func (s *State) LoggedIn() bool { return s.user != nil }

func (s *State) Token() string { return s.token }

// User returns a copy of the current identity, or nil when logged out.
func (s *State) User() *models.User {
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// UserID is the string form of the current user's id, or "".
func (s *State) UserID() string {
	if s.user == nil {
		return ""
	}
	return fmt.Sprintf("%d", s.user.ID)
}

// expired reports whether token is a JWT with an exp claim before now.
// Tokens that are not JWTs are treated as opaque and never expire here.
func expired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Before(exp.Time)
}
