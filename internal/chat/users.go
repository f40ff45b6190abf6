package chat

import (
	"context"
	"errors"
	"github.com/google/uuid"
	"sessionchat/internal/storage"
	"strings"
)

type newUser struct {
	Username  string `json:"username" validate:"required,max=32"`
	SessionID string `json:"session" validate:"max=128"`
}

// CreateUser starts a session. An existing session is refreshed with the new username and marked online,
// otherwise a user is created. A session token is issued when sessionID is empty.
// The username must not be held by another session that is currently online.
func (s *Service) CreateUser(ctx context.Context, username, sessionID string) (storage.User, error) {
	in := newUser{Username: strings.TrimSpace(username), SessionID: strings.TrimSpace(sessionID)}
	if err := s.check(in); err != nil {
		return storage.User{}, err
	}
	if in.SessionID == "" {
		in.SessionID = uuid.NewString()
	}

	now := s.now()

	var u storage.User
	err := s.store.InTx(ctx, func(tx *storage.Tx) error {
		held, err := tx.UsernameHeld(ctx, in.Username, in.SessionID, now.Add(-s.cfg.PresenceWindow))
		if err != nil {
			return err
		}
		if held {
			return ErrUsernameTaken
		}

		existing, err := tx.UserBySession(ctx, in.SessionID)
		switch {
		case err == nil:
			if err := tx.RefreshUser(ctx, existing.ID, in.Username, now); err != nil {
				return err
			}
			u, err = tx.UserByID(ctx, existing.ID)
			return err
		case errors.Is(err, storage.ErrUserNotExist):
			u, err = tx.CreateUser(ctx, in.Username, in.SessionID, now)
			return err
		default:
			return err
		}
	})
	if err != nil {
		return storage.User{}, err
	}

	s.logger.Infof("User (id: %d) started session as %q", u.ID, u.Username)

	return u, nil
}

// CurrentUser returns the user owning sessionID with presence computed
func (s *Service) CurrentUser(ctx context.Context, sessionID string) (storage.User, error) {
	if strings.TrimSpace(sessionID) == "" {
		return storage.User{}, invalid("session", "is required")
	}

	u, err := s.store.UserBySession(ctx, sessionID)
	if err != nil {
		return storage.User{}, notFound(err)
	}
	s.withPresence(&u)

	return u, nil
}

// UpdatePresence stores the online flag and bumps the last activity time
func (s *Service) UpdatePresence(ctx context.Context, userID int64, online bool) error {
	if userID < 1 {
		return invalid("user", "must be greater than 0")
	}

	err := s.store.InTx(ctx, func(tx *storage.Tx) error {
		return tx.SetPresence(ctx, userID, online, s.now())
	})
	return notFound(err)
}

// OnlineUsers lists users currently online, ordered by username
func (s *Service) OnlineUsers(ctx context.Context) ([]storage.User, error) {
	return s.store.OnlineUsers(ctx, s.now().Add(-s.cfg.PresenceWindow))
}

// LogoutUser purges the user with the same cascade as the offline reaper
func (s *Service) LogoutUser(ctx context.Context, userID int64) error {
	if userID < 1 {
		return invalid("user", "must be greater than 0")
	}

	var report storage.PurgeReport
	err := s.store.InTx(ctx, func(tx *storage.Tx) error {
		var err error
		report, err = tx.PurgeUser(ctx, userID)
		return err
	})
	if err != nil {
		return notFound(err)
	}

	s.logger.Infof("User (id: %d) logged out: %+v", userID, report)

	return nil
}
