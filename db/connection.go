package db

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

var (
	DB *sqlx.DB

	mu          sync.Mutex
	databaseURL string
)

// ErrNotConnected is returned by Ping and Reconnect before Connect succeeded.
var ErrNotConnected = errors.New("database not connected")

// ConnectAttempts and RetryDelay control the startup retry loop.
var (
	ConnectAttempts = 30
	RetryDelay      = time.Second
)

func Connect(url string) error {
	if url == "" {
		return errors.New("database url is empty")
	}

	var (
		conn *sqlx.DB
		err  error
	)

	// Retry connection logic for Docker container startup
	for i := 0; i < ConnectAttempts; i++ {
		conn, err = sqlx.Connect("postgres", url)
		if err == nil {
			break
		}
		if i < ConnectAttempts-1 {
			time.Sleep(RetryDelay)
		}
	}

	if err != nil {
		return fmt.Errorf("failed to connect to database after %d attempts: %w", ConnectAttempts, err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)

	mu.Lock()
	DB = conn
	databaseURL = url
	mu.Unlock()
	return nil
}

func Migrate() error {
	if DB == nil {
		return ErrNotConnected
	}
	schema := `
		CREATE EXTENSION IF NOT EXISTS "uuid-ossp";

		CREATE TABLE IF NOT EXISTS exports (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			client_id VARCHAR(100) NOT NULL,
			source_filename VARCHAR(255) NOT NULL,
			output_filename VARCHAR(255) NOT NULL,
			policy VARCHAR(10) NOT NULL,
			output_size INTEGER NOT NULL DEFAULT 0,
			stored_url VARCHAR(1000),
			title VARCHAR(200),
			keyword_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_exports_client ON exports(client_id, created_at DESC);
	`

	_, err := DB.Exec(schema)
	return err
}

// Conn returns the current pool, which Reconnect may have replaced.
func Conn() *sqlx.DB {
	mu.Lock()
	defer mu.Unlock()
	return DB
}

func Ping(ctx context.Context) error {
	conn := Conn()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.PingContext(ctx)
}

// Reconnect replaces DB with a fresh pool for the last URL passed to Connect.
// It makes a single attempt.
func Reconnect() error {
	mu.Lock()
	url := databaseURL
	old := DB
	mu.Unlock()
	if url == "" {
		return ErrNotConnected
	}

	conn, err := sqlx.Connect("postgres", url)
	if err != nil {
		return fmt.Errorf("failed to reconnect to database: %w", err)
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)

	mu.Lock()
	DB = conn
	mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return nil
}

func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if DB != nil {
		return DB.Close()
	}
	return nil
}
