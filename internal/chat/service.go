// Package chat is the message lifecycle and chat directory engine.
//
// Every externally triggered write runs in a single storage transaction, so derived state
// (member counts, directory rows, unread counts) never disagrees with its source rows.
// Deferred and periodic work is exposed as plain methods and wired to a scheduler by RegisterJobs.
package chat

import (
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"sessionchat/internal/clock"
	"sessionchat/internal/storage"
	"time"
)

// Service defines fields used by chat operations
type Service struct {
	logger   *zap.SugaredLogger
	store    *storage.Store
	clock    clock.Clock
	cfg      Config
	validate *validator.Validate
}

// NewService returns Service using provided store. Wall clock and DefaultConfig are used unless overridden.
func NewService(logger *zap.SugaredLogger, store *storage.Store, opts ...Option) *Service {
	s := &Service{
		logger:   logger,
		store:    store,
		clock:    clock.Real(),
		cfg:      DefaultConfig(),
		validate: newValidator(),
	}
	for _, opt := range opts {
		opt.apply(s)
	}
	return s
}

func (s *Service) now() time.Time {
	return s.clock.Now()
}

// IsOnline recomputes presence of u: the stored flag must be set and the last activity must be
// within the presence window
func (s *Service) IsOnline(u storage.User) bool {
	return u.IsOnline && s.now().Sub(u.LastSeen) < s.cfg.PresenceWindow
}

// withPresence replaces the stored online flag of u with the computed one
func (s *Service) withPresence(u *storage.User) {
	if u != nil {
		u.IsOnline = s.IsOnline(*u)
	}
}
