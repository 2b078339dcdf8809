package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	createTableSQL = `
		CREATE TABLE IF NOT EXISTS gateway_kv (
			key TEXT PRIMARY KEY,
			value BYTEA NOT NULL,
			expires_at TIMESTAMP WITH TIME ZONE
		);
		CREATE INDEX IF NOT EXISTS idx_gateway_kv_expires_at ON gateway_kv(expires_at);
	`

	getSQL = `
		SELECT value FROM gateway_kv
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > NOW())
	`

	putSQL = `
		INSERT INTO gateway_kv (key, value, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			expires_at = EXCLUDED.expires_at
	`

	purgeSQL = `DELETE FROM gateway_kv WHERE expires_at IS NOT NULL AND expires_at <= NOW()`
)

// implements Store using a single PostgreSQL table
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// connects, pings and creates the table
func NewPostgresStoreFromURL(ctx context.Context, connString string) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	// the gateway only does point reads and upserts
	poolConfig.MaxConns = 5
	poolConfig.MinConns = 1
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// simple protocol keeps PgBouncer transaction pooling working
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	db, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := NewPostgresStore(db)
	if err := store.Initialize(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create kv table: %w", err)
	}

	return store, nil
}

// creates the table if it doesn't exist
func (s *PostgresStore) Initialize(ctx context.Context) error {
	_, err := s.db.Exec(ctx, createTableSQL)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte

	err := s.db.QueryRow(ctx, getSQL, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read %s from database: %w", key, err)
	}

	return value, nil
}

func (s *PostgresStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expiresAt = &t
	}

	if _, err := s.db.Exec(ctx, putSQL, key, value, expiresAt); err != nil {
		return fmt.Errorf("failed to write %s to database: %w", key, err)
	}

	return nil
}

// deletes expired rows; returns how many were removed
func (s *PostgresStore) Purge(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, purgeSQL)
	if err != nil {
		return 0, err
	}

	return tag.RowsAffected(), nil
}

// periodically purges expired rows until ctx is done
func (s *PostgresStore) StartJanitor(ctx context.Context, interval time.Duration, onError func(error)) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Purge(ctx); err != nil && onError != nil {
					onError(err)
				}
			}
		}
	}()
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}
