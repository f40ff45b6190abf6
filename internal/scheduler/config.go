package scheduler

import (
	"sessionchat/internal/clock"
	"time"
)

// Config defines fields used for polling the task queue
type Config struct {
	PollInterval time.Duration `env:"TASK_POLL_INTERVAL" envDefault:"250ms"`
	BatchSize    int           `env:"TASK_BATCH_SIZE" envDefault:"100"`
	MaxAttempts  int           `env:"TASK_MAX_ATTEMPTS" envDefault:"5"`
	// RetryBackoff is multiplied by the attempt number
	RetryBackoff time.Duration `env:"TASK_RETRY_BACKOFF" envDefault:"2s"`
}

// DefaultConfig returns Config with the same values as the envDefault tags
func DefaultConfig() Config {
	return Config{
		PollInterval: 250 * time.Millisecond,
		BatchSize:    100,
		MaxAttempts:  5,
		RetryBackoff: 2 * time.Second,
	}
}

type Option interface {
	apply(*Runner)
}

type optionFunc func(r *Runner)

func (f optionFunc) apply(r *Runner) { f(r) }

// WithClock replaces the wall clock used to decide which tasks are due
func WithClock(c clock.Clock) Option {
	return optionFunc(func(r *Runner) {
		r.clock = c
	})
}

// WithConfig overrides DefaultConfig
func WithConfig(cfg Config) Option {
	return optionFunc(func(r *Runner) {
		r.cfg = cfg
	})
}
