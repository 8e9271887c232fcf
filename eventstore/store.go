// Package eventstore implements the durable core of the event indexer: the
// chain artifact tables, the per-filter coverage interval ledger, the
// factory child-address index, the ordered event replay iterator, realtime
// ingestion with reorg rollback, and the contract-read cache.
//
// A Store wraps one SQLite database. Every multi-statement operation runs in
// a single immediate write transaction; writer collisions are retried with
// jittered exponential backoff, so concurrent backfill and realtime writers
// converge on the same final state.
package eventstore

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/go-chain-index/eventstore/migrations"
	_ "github.com/rony4d/go-chain-index/utils/dbutil"
	"github.com/rony4d/go-chain-index/utils/logging"
)

// DefaultChildAddressPageSize and DefaultLogEventPageSize bound iterator
// pages when the caller does not choose a page size.
const (
	DefaultChildAddressPageSize = 500
	DefaultLogEventPageSize     = 1000
)

// Config carries the tunables for opening a Store.
type Config struct {
	// Path is the SQLite database file path.
	Path string

	// BusyTimeout is how long a connection waits on the write lock before
	// reporting a conflict. Zero selects one second.
	BusyTimeout time.Duration

	// MaxWriteRetries bounds how many times a conflicting write transaction
	// is retried before ErrRetryExhausted. Zero selects 5.
	MaxWriteRetries uint64

	// Logger receives the store's structured logs. Nil selects a default
	// info-level logger.
	Logger *logrus.Logger
}

// Store is the single entry point to the event index database.
type Store struct {
	db         *sql.DB
	log        *logrus.Entry
	maxRetries uint64
}

// Open opens (creating if needed) the database at cfg.Path, applies schema
// migrations, and returns the ready store.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("eventstore: config has no database path")
	}

	busy := cfg.BusyTimeout
	if busy == 0 {
		busy = time.Second
	}
	retries := cfg.MaxWriteRetries
	if retries == 0 {
		retries = 5
	}

	lg := cfg.Logger
	if lg == nil {
		var err error
		lg, err = logging.New(logging.Config{})
		if err != nil {
			return nil, err
		}
	}

	dsn := fmt.Sprintf("file:%s?%s", cfg.Path, url.Values{
		"_busy_timeout": {fmt.Sprintf("%d", busy.Milliseconds())},
		"_journal_mode": {"WAL"},
		"_txlock":       {"immediate"},
		"_foreign_keys": {"on"},
	}.Encode())

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("eventstore: open %s: %w", cfg.Path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("eventstore: ping %s: %w", cfg.Path, err)
	}

	if err := migrations.Run(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{
		db:         db,
		log:        logging.WithComponent(lg, "event-store"),
		maxRetries: retries,
	}
	s.log.WithField("path", cfg.Path).Info("event store opened")
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for test introspection. Production consumers go
// through the typed operations.
func (s *Store) DB() *sql.DB {
	return s.db
}

// withWriteTx runs fn inside one immediate write transaction, retrying
// serialization conflicts with jittered exponential backoff up to the
// configured budget. Any other error rolls back and surfaces unchanged.
func (s *Store) withWriteTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	attempt := func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			if isSerializationConflict(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		defer tx.Rollback()

		if err := fn(tx); err != nil {
			if isSerializationConflict(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if err := tx.Commit(); err != nil {
			if isSerializationConflict(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxInterval = 250 * time.Millisecond

	var retried uint64
	err := backoff.Retry(func() error {
		err := attempt()
		if err != nil && !isPermanent(err) {
			retried++
			s.log.WithField("attempt", retried).Debug("write transaction conflict, retrying")
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, s.maxRetries), ctx))

	if err != nil && isSerializationConflict(err) {
		return fmt.Errorf("%w: %w", ErrRetryExhausted, err)
	}
	return err
}

func isPermanent(err error) bool {
	_, ok := err.(*backoff.PermanentError)
	return ok
}
