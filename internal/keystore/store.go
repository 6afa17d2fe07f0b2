package keystore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound indicates no key is stored for the user and model.
var ErrNotFound = errors.New("api key not found")

// Entry describes a stored key without its secret.
type Entry struct {
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store reads and writes per-user API keys.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens the database at path and applies pending migrations.
func Open(path string) (*Store, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return New(db), nil
}

// New wraps an already migrated database.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores or replaces the key for userID and model.
func (s *Store) Put(ctx context.Context, userID, model, apiKey string) error {
	if err := validate(userID, model); err != nil {
		return err
	}
	if strings.TrimSpace(apiKey) == "" {
		return errors.New("api key must not be empty")
	}

	now := s.now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_api_keys (user_id, model, api_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, model) DO UPDATE SET
			api_key = excluded.api_key,
			updated_at = excluded.updated_at
	`, userID, model, strings.TrimSpace(apiKey), now, now)
	if err != nil {
		return fmt.Errorf("store api key for %s: %w", model, err)
	}
	return nil
}

// Delete removes the key for userID and model.
func (s *Store) Delete(ctx context.Context, userID, model string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM user_api_keys WHERE user_id = ? AND model = ?",
		userID, model,
	)
	if err != nil {
		return fmt.Errorf("delete api key for %s: %w", model, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete api key for %s: %w", model, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, model)
	}
	return nil
}

// List returns the models userID has keys for, ordered by model.
func (s *Store) List(ctx context.Context, userID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT model, created_at, updated_at FROM user_api_keys WHERE user_id = ? ORDER BY model",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e                  Entry
			created, updated string
		)
		if err := rows.Scan(&e.Model, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan api key row: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		e.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Keys returns every stored key for userID indexed by model.
func (s *Store) Keys(ctx context.Context, userID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT model, api_key FROM user_api_keys WHERE user_id = ?",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("load api keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]string)
	for rows.Next() {
		var model, key string
		if err := rows.Scan(&model, &key); err != nil {
			return nil, fmt.Errorf("scan api key row: %w", err)
		}
		keys[model] = key
	}
	return keys, rows.Err()
}

func validate(userID, model string) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("user id must not be empty")
	}
	if strings.TrimSpace(model) == "" {
		return errors.New("model must not be empty")
	}
	return nil
}
