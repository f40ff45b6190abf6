package storage

import (
	"strconv"
	"time"
)

const (
	// DriverPostgres is the database/sql driver name registered by github.com/jackc/pgx/v4/stdlib
	DriverPostgres = "pgx"
	// DriverSQLite is the database/sql driver name registered by github.com/mattn/go-sqlite3
	DriverSQLite = "sqlite3"
)

// Config defines fields used for building the connection string, parsed from environment variables
type Config struct {
	Driver   string `env:"DB_DRIVER" envDefault:"pgx"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     uint16 `env:"DB_PORT" envDefault:"5432"`
	DBName   string `env:"DB_NAME" envDefault:"chat"`
	// Path is the sqlite database file, ":memory:" keeps everything in process
	Path string `env:"DB_PATH" envDefault:"chat.db"`
}

// TestConfig points to a private in-memory sqlite database
var TestConfig = Config{
	Driver: DriverSQLite,
	Path:   ":memory:",
}

// DSN returns connection string for the configured driver
func (c Config) DSN() string {
	if c.Driver == DriverSQLite {
		if c.Path == ":memory:" {
			return c.Path
		}
		return "file:" + c.Path + "?_busy_timeout=5000&_journal_mode=WAL"
	}

	return "user=" + c.User +
		" password=" + c.Password +
		" host=" + c.Host +
		" port=" + strconv.FormatUint(uint64(c.Port), 10) +
		" dbname=" + c.DBName +
		" sslmode=disable"
}

// options holds tunables applied while opening the database
type options struct {
	connectTimeout time.Duration
	maxOpenConns   int
}

// Option alters the default configuration used during new Store construction
type Option interface {
	apply(*options)
}

type optionFunc func(o *options)

func (f optionFunc) apply(o *options) { f(o) }

// ConnectionTimeout sets timeout for connection to be established (postgres only)
func ConnectionTimeout(d time.Duration) Option {
	return optionFunc(func(o *options) {
		o.connectTimeout = d
	})
}

// MaxOpenConns limits the connection pool size. Ignored for sqlite, which always uses one connection.
func MaxOpenConns(n int) Option {
	return optionFunc(func(o *options) {
		o.maxOpenConns = n
	})
}
