package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Get returns the value stored under key.
func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s == nil || s.DB == nil {
		return nil, false, ErrNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return nil, false, errors.New("key is required")
	}

	var value string
	row := s.DB.QueryRowContext(ctx, `
		SELECT value
		FROM entries
		WHERE key = ?
	`, key)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("fetch entry: %w", err)
	}

	return []byte(value), true, nil
}

// Put stores value under key, replacing any previous value.
func (s *SQLStore) Put(ctx context.Context, key string, value []byte) error {
	if s == nil || s.DB == nil {
		return ErrNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("key is required")
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO entries (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, string(value), time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("store entry: %w", err)
	}

	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *SQLStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.DB == nil {
		return ErrNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := s.DB.ExecContext(ctx, `DELETE FROM entries WHERE key = ?`, strings.TrimSpace(key)); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

// List returns entries whose key starts with prefix.
func (s *SQLStore) List(ctx context.Context, prefix string) ([]Entry, error) {
	if s == nil || s.DB == nil {
		return nil, ErrNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args := prefixClause(prefix)
	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT key, value
		FROM entries
		%s
		ORDER BY key
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	entries := []Entry{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan entries: %w", err)
		}
		entries = append(entries, Entry{Key: key, Value: []byte(value)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	return entries, nil
}

// DeletePrefix removes all keys starting with prefix.
func (s *SQLStore) DeletePrefix(ctx context.Context, prefix string) ([]string, error) {
	if s == nil || s.DB == nil {
		return nil, ErrNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	where, args := prefixClause(prefix)
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`SELECT key FROM entries %s ORDER BY key`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("select entries: %w", err)
	}

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan entries: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("select entries: %w", err)
	}
	_ = rows.Close()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM entries %s`, where), args...); err != nil {
		return nil, fmt.Errorf("delete entries: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete: %w", err)
	}

	return keys, nil
}

// prefixClause avoids LIKE because '_' in "rateLimit_" is a wildcard there.
func prefixClause(prefix string) (string, []any) {
	if prefix == "" {
		return "", nil
	}
	return "WHERE substr(key, 1, ?) = ?", []any{utf8.RuneCountInString(prefix), prefix}
}
