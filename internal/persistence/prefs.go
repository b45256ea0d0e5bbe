package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const defaultPrefTimeout = 5 * time.Second

// PrefStore is a small key/value store for settings that must survive a
// restart. Every write is committed before it returns.
type PrefStore struct {
	db      *sql.DB
	timeout time.Duration
	now     func() time.Time
}

func NewPrefStore(db *sql.DB) *PrefStore {
	return &PrefStore{db: db, timeout: defaultPrefTimeout, now: time.Now}
}

func (s *PrefStore) String(key string) (string, bool, error) {
	raw, ok, err := s.Bytes(key)
	return string(raw), ok, err
}

func (s *PrefStore) PutString(key, value string) error {
	return s.PutBytes(key, []byte(value))
}

func (s *PrefStore) Bytes(key string) ([]byte, bool, error) {
	ctx, cancel := s.context()
	defer cancel()

	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM prefs WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get pref %q: %w", key, err)
	}
	return value, true, nil
}

func (s *PrefStore) PutBytes(key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	ctx, cancel := s.context()
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prefs(key, value, updated_at)
		VALUES(?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, value, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("put pref %q: %w", key, err)
	}
	return nil
}

// Bool returns def when the key is missing.
func (s *PrefStore) Bool(key string, def bool) (bool, error) {
	raw, ok, err := s.Bytes(key)
	if err != nil || !ok {
		return def, err
	}
	if len(raw) != 1 {
		return def, fmt.Errorf("get pref %q: malformed bool %x", key, raw)
	}
	return raw[0] != 0, nil
}

func (s *PrefStore) PutBool(key string, value bool) error {
	var b byte
	if value {
		b = 1
	}
	return s.PutBytes(key, []byte{b})
}

func (s *PrefStore) Remove(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := s.context()
	defer cancel()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM prefs WHERE key IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("remove prefs: %w", err)
	}
	return nil
}

func (s *PrefStore) Clear() error {
	ctx, cancel := s.context()
	defer cancel()
	return Wipe(ctx, s.db)
}

// Pref is one stored entry, for diagnostics.
type Pref struct {
	Key       string    `json:"key"`
	Size      int       `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *PrefStore) List(ctx context.Context) ([]Pref, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, length(value), updated_at FROM prefs ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list prefs: %w", err)
	}
	defer rows.Close()

	out := make([]Pref, 0)
	for rows.Next() {
		var (
			p         Pref
			updatedMs int64
		)
		if err := rows.Scan(&p.Key, &p.Size, &updatedMs); err != nil {
			return nil, fmt.Errorf("scan pref: %w", err)
		}
		if updatedMs > 0 {
			p.UpdatedAt = time.UnixMilli(updatedMs)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate prefs: %w", err)
	}
	return out, nil
}

func (s *PrefStore) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}
