package server

import (
	"go.uber.org/zap"
	"net/http"
	"strconv"
	"time"
)

// Option customizes a Server built by NewServer
type Option interface {
	apply(*config)
}

type optionFunc func(c *config)

func (f optionFunc) apply(c *config) { f(c) }

// config is the mutable state options work on before the Server is assembled.
// handlers is keyed by route pattern and is registered on the mux last.
type config struct {
	httpServer    *http.Server
	handlers      map[string]http.Handler
	afterShutdown []func()
}

// EnvConfig is the listen address of the chat API read from HOST and PORT
type EnvConfig struct {
	Host string `env:"HOST" envDefault:"0.0.0.0"`
	Port uint16 `env:"PORT" envDefault:"9000"`
}

func (cfg EnvConfig) addr() string {
	return cfg.Host + ":" + strconv.FormatUint(uint64(cfg.Port), 10)
}

// WithEnvConfig makes the server listen on the address from cfg
func WithEnvConfig(cfg EnvConfig) Option {
	return optionFunc(func(c *config) {
		c.httpServer.Addr = cfg.addr()
	})
}

// ReadTimeout limits the time spent reading a whole request
func ReadTimeout(d time.Duration) Option {
	return optionFunc(func(c *config) {
		c.httpServer.ReadTimeout = d
	})
}

// RegisterAfterShutdown adds f to the functions Start runs, in order, once the listener is closed
func RegisterAfterShutdown(f func()) Option {
	return optionFunc(func(c *config) {
		c.afterShutdown = append(c.afterShutdown, f)
	})
}

// TimeoutHandler answers 503 with msg for any route that does not respond within d
func TimeoutHandler(d time.Duration, msg string) Option {
	return wrapHandlers(func(h http.Handler) http.Handler {
		return http.TimeoutHandler(h, d, msg)
	})
}

func applyEnforcePostJson() Option {
	return wrapHandlers(enforcePostJson)
}

func applyLog(logger *zap.Logger) Option {
	return wrapHandlers(func(h http.Handler) http.Handler {
		return log(h, logger)
	})
}

// wrapHandlers applies mw to every route. Options run in order, so the last wrapper is outermost.
func wrapHandlers(mw func(http.Handler) http.Handler) Option {
	return optionFunc(func(c *config) {
		for pattern, h := range c.handlers {
			c.handlers[pattern] = mw(h)
		}
	})
}

// registerHandlers mounts the routes on a fresh mux used as the server handler
func registerHandlers() Option {
	return optionFunc(func(c *config) {
		mux := http.NewServeMux()
		for pattern, h := range c.handlers {
			mux.Handle(pattern, h)
		}
		c.httpServer.Handler = mux
	})
}
