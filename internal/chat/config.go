package chat

import (
	"golang.org/x/crypto/bcrypt"
	"sessionchat/internal/clock"
	"time"
)

// Config holds time windows and intervals of the chat engine
type Config struct {
	// PresenceWindow is how long after the last activity a user flagged online is displayed as online
	PresenceWindow time.Duration `env:"PRESENCE_WINDOW" envDefault:"60s"`
	// StaleAfter is how long after the last activity a user is reaped
	StaleAfter time.Duration `env:"STALE_AFTER" envDefault:"5m"`
	// TypingWindow is how long a typing signal stays visible
	TypingWindow time.Duration `env:"TYPING_WINDOW" envDefault:"5s"`
	// TypingTTL is how long a typing row is kept at all
	TypingTTL     time.Duration `env:"TYPING_TTL" envDefault:"10s"`
	DeliveryDelay time.Duration `env:"DELIVERY_DELAY" envDefault:"1s"`

	ReapInterval        time.Duration `env:"REAP_INTERVAL" envDefault:"5m"`
	TypingSweepInterval time.Duration `env:"TYPING_SWEEP_INTERVAL" envDefault:"10s"`
	ReconcileInterval   time.Duration `env:"RECONCILE_INTERVAL" envDefault:"1h"`

	PasswordCost int `env:"BCRYPT_COST" envDefault:"10"`
}

// DefaultConfig returns Config with the same values as the envDefault tags
func DefaultConfig() Config {
	return Config{
		PresenceWindow:      60 * time.Second,
		StaleAfter:          5 * time.Minute,
		TypingWindow:        5 * time.Second,
		TypingTTL:           10 * time.Second,
		DeliveryDelay:       time.Second,
		ReapInterval:        5 * time.Minute,
		TypingSweepInterval: 10 * time.Second,
		ReconcileInterval:   time.Hour,
		PasswordCost:        bcrypt.DefaultCost,
	}
}

type Option interface {
	apply(*Service)
}

type optionFunc func(s *Service)

func (f optionFunc) apply(s *Service) { f(s) }

// WithClock replaces the wall clock, used by tests to simulate time passage
func WithClock(c clock.Clock) Option {
	return optionFunc(func(s *Service) {
		s.clock = c
	})
}

// WithConfig overrides DefaultConfig
func WithConfig(cfg Config) Option {
	return optionFunc(func(s *Service) {
		s.cfg = cfg
	})
}
