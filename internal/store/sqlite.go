package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"lease_engine/internal/lease"
	apperrors "lease_engine/pkg/errors"

	_ "github.com/mattn/go-sqlite3"
)

// ErrChecksum reports a stored record whose bytes no longer match its checksum
var ErrChecksum = errors.New("checksum verification failed: data corruption detected")

const schema = `CREATE TABLE IF NOT EXISTS leases (
	id         TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	checksum   BLOB NOT NULL,
	closed     INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL
)`

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Enable WAL mode for crash recovery
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SaveLease(ctx context.Context, l *lease.Lease) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("failed to marshal lease %s: %w", l.ID, err)
	}

	// Round-trip before writing so an unreadable record never lands on disk
	if _, err := decode(data); err != nil {
		return fmt.Errorf("lease %s validation failed: %w", l.ID, err)
	}

	checksum := sha256.Sum256(data)
	query := `INSERT OR REPLACE INTO leases (id, data, checksum, closed, updated_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, query, l.ID, string(data), checksum[:], l.Closed, time.Now().UnixNano()); err != nil {
		return fmt.Errorf("failed to write lease %s to db: %w", l.ID, err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) LoadLease(ctx context.Context, id string) (*lease.Lease, error) {
	var data string
	var checksum []byte
	err := s.db.QueryRowContext(ctx, `SELECT data, checksum FROM leases WHERE id = ?`, id).Scan(&data, &checksum)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("lease %s: %w", id, apperrors.ErrLeaseNotFound)
		}
		return nil, fmt.Errorf("failed to read lease %s from db: %w", id, err)
	}
	return verify(data, checksum)
}

func (s *SQLiteStore) ListLeases(ctx context.Context) ([]*lease.Lease, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data, checksum FROM leases ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list leases: %w", err)
	}
	defer rows.Close()

	var out []*lease.Lease
	for rows.Next() {
		var data string
		var checksum []byte
		if err := rows.Scan(&data, &checksum); err != nil {
			return nil, fmt.Errorf("failed to scan lease: %w", err)
		}
		l, err := verify(data, checksum)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func verify(data string, stored []byte) (*lease.Lease, error) {
	computed := sha256.Sum256([]byte(data))
	if !bytes.Equal(stored, computed[:]) {
		return nil, ErrChecksum
	}
	return decode([]byte(data))
}
