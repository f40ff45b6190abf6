package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/stdlib"
	"go.uber.org/zap"
	"sessionchat/internal/storage/zapadapter"
)

var (
	ErrUserNotExist    = errors.New("user does not exist")
	ErrGroupNotExist   = errors.New("group does not exist")
	ErrMessageNotExist = errors.New("message does not exist")
	ErrSessionExists   = errors.New("session already exists")
	ErrUserActive      = errors.New("user is active")
)

const maxTxAttempts = 3

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Queries holds every primitive operation. It is embedded in Store (auto-commit) and Tx.
type Queries struct {
	logger  *zap.SugaredLogger
	dialect dialect
	q       querier
}

func (q *Queries) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return q.q.ExecContext(ctx, q.dialect.rebind(query), args...)
}

func (q *Queries) query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return q.q.QueryContext(ctx, q.dialect.rebind(query), args...)
}

func (q *Queries) queryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return q.q.QueryRowContext(ctx, q.dialect.rebind(query), args...)
}

// execCount runs query and returns number of affected rows
func (q *Queries) execCount(ctx context.Context, query string, args ...interface{}) (int64, error) {
	res, err := q.exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Store defines fields used in db interaction processes
type Store struct {
	*Queries
	logger  *zap.SugaredLogger
	db      *sql.DB
	dialect dialect
}

// Tx is a unit of work; every Queries method called on it shares one database transaction
type Tx struct {
	*Queries
}

// New opens database described by cfg, applies schema and returns instance of Store struct.
// For postgres provided zap.Logger is set via zapadapter to the pgx connection config.
func New(logger *zap.SugaredLogger, cfg Config, opts ...Option) (*Store, error) {
	o := options{}
	for _, opt := range opts {
		opt.apply(&o)
	}

	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}

	var db *sql.DB
	switch d {
	case postgres:
		connConfig, err := pgx.ParseConfig(cfg.DSN())
		if err != nil {
			return nil, err
		}
		connConfig.Logger = zapadapter.NewLogger(logger.Desugar())
		connConfig.LogLevel = pgx.LogLevelWarn
		if o.connectTimeout > 0 {
			connConfig.ConnectTimeout = o.connectTimeout
		}

		db = stdlib.OpenDB(*connConfig)
		if o.maxOpenConns > 0 {
			db.SetMaxOpenConns(o.maxOpenConns)
		}
	case sqlite:
		db, err = sql.Open(DriverSQLite, cfg.DSN())
		if err != nil {
			return nil, err
		}
		// an in-memory database lives and dies with its connection
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	}

	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	s := &Store{
		Queries: &Queries{logger: logger, dialect: d, q: db},
		logger:  logger,
		db:      db,
		dialect: d,
	}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// InTx runs fn inside a transaction, commits when fn returns nil and rolls back otherwise.
// Postgres transactions are serializable; serialization failures replay fn up to three times,
// so fn must not have side effects outside of tx.
func (s *Store) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.runTx(ctx, fn)
		if err == nil || !isRetryable(err) {
			return err
		}
		s.logger.Debugf("Retrying transaction (attempt %d): %v", attempt, err)
	}
	return err
}

func (s *Store) runTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, s.dialect.txOptions())
	if err != nil {
		return err
	}
	// rollback after commit is a no-op returning sql.ErrTxDone
	defer sqlTx.Rollback()

	tx := &Tx{Queries: &Queries{logger: s.logger, dialect: s.dialect, q: sqlTx}}
	if err := fn(tx); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// Close closes underlying database
func (s *Store) Close() {
	if err := s.db.Close(); err != nil {
		s.logger.Errorf("closing database: %v", err)
	}
}
