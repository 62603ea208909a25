package conf

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// DefaultRoot is the namespace all keys live under unless the store is
// opened with an explicit override.
const DefaultRoot = "apps/iwkmail"

// value type discriminators stored alongside each entry.
const (
	typeString = "string"
	typeInt    = "int"
	typeFloat  = "float"
	typeBool   = "bool"
	typeList   = "list"
)

type watcher struct {
	namespace string
	fn        WatchFunc
}

// SQLiteStore implements Store using a local SQLite database.
type SQLiteStore struct {
	db       *sqlx.DB
	root     string
	watchers []watcher
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations. All keys
// are resolved under root; an empty root selects DefaultRoot.
func NewSQLiteStore(dbPath, root string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if root == "" {
		root = DefaultRoot
	}

	s := &SQLiteStore{db: db, root: strings.Trim(root, "/")}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// fullKey prefixes key with the store's root namespace.
func (s *SQLiteStore) fullKey(key string) string {
	return s.root + "/" + strings.Trim(key, "/")
}

func (s *SQLiteStore) get(ctx context.Context, key, wantType string) (string, error) {
	var row struct {
		Type  string `db:"type"`
		Value string `db:"value"`
	}
	err := s.db.GetContext(ctx, &row,
		"SELECT type, value FROM config_entries WHERE key = ?", s.fullKey(key))
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("reading key %q: %w", key, err)
	}
	if row.Type != wantType {
		return "", fmt.Errorf("%w: key %q holds %s, want %s",
			ErrTypeMismatch, key, row.Type, wantType)
	}
	return row.Value, nil
}

func (s *SQLiteStore) set(ctx context.Context, key, valType, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO config_entries (key, type, value, updated_at)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET
		   type = excluded.type,
		   value = excluded.value,
		   updated_at = excluded.updated_at`,
		s.fullKey(key), valType, value)
	if err != nil {
		return fmt.Errorf("writing key %q: %w", key, err)
	}
	s.notify(key, ChangeSet)
	return nil
}

func (s *SQLiteStore) GetString(ctx context.Context, key string) (string, error) {
	return s.get(ctx, key, typeString)
}

func (s *SQLiteStore) SetString(ctx context.Context, key, value string) error {
	return s.set(ctx, key, typeString, value)
}

func (s *SQLiteStore) GetInt(ctx context.Context, key string) (int, error) {
	raw, err := s.get(ctx, key, typeInt)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parsing int key %q: %w", key, err)
	}
	return n, nil
}

func (s *SQLiteStore) SetInt(ctx context.Context, key string, value int) error {
	return s.set(ctx, key, typeInt, strconv.Itoa(value))
}

func (s *SQLiteStore) GetFloat(ctx context.Context, key string) (float64, error) {
	raw, err := s.get(ctx, key, typeFloat)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing float key %q: %w", key, err)
	}
	return f, nil
}

func (s *SQLiteStore) SetFloat(ctx context.Context, key string, value float64) error {
	return s.set(ctx, key, typeFloat, strconv.FormatFloat(value, 'g', -1, 64))
}

func (s *SQLiteStore) GetBool(ctx context.Context, key string) (bool, error) {
	raw, err := s.get(ctx, key, typeBool)
	if err != nil {
		return false, err
	}
	return raw == "1", nil
}

func (s *SQLiteStore) SetBool(ctx context.Context, key string, value bool) error {
	raw := "0"
	if value {
		raw = "1"
	}
	return s.set(ctx, key, typeBool, raw)
}

func (s *SQLiteStore) GetStringList(ctx context.Context, key string) ([]string, error) {
	raw, err := s.get(ctx, key, typeList)
	if err != nil {
		return nil, err
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("parsing list key %q: %w", key, err)
	}
	return list, nil
}

func (s *SQLiteStore) SetStringList(ctx context.Context, key string, value []string) error {
	if value == nil {
		value = []string{}
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding list key %q: %w", key, err)
	}
	return s.set(ctx, key, typeList, string(raw))
}

// Exists reports whether key is set directly or has any descendants.
func (s *SQLiteStore) Exists(ctx context.Context, key string) (bool, error) {
	full := s.fullKey(key)
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM config_entries WHERE key = ? OR key LIKE ? ESCAPE '\\'",
		full, likePrefix(full))
	if err != nil {
		return false, fmt.Errorf("checking key %q: %w", key, err)
	}
	return count > 0, nil
}

// ListSubKeys returns the immediate child segments under key, sorted.
func (s *SQLiteStore) ListSubKeys(ctx context.Context, key string) ([]string, error) {
	full := s.fullKey(key)
	var keys []string
	err := s.db.SelectContext(ctx, &keys,
		"SELECT key FROM config_entries WHERE key LIKE ? ESCAPE '\\'", likePrefix(full))
	if err != nil {
		return nil, fmt.Errorf("listing subkeys of %q: %w", key, err)
	}

	seen := make(map[string]bool)
	var children []string
	for _, k := range keys {
		rest := strings.TrimPrefix(k, full+"/")
		seg, _, _ := strings.Cut(rest, "/")
		if seg != "" && !seen[seg] {
			seen[seg] = true
			children = append(children, seg)
		}
	}
	sort.Strings(children)
	return children, nil
}

// RemoveTree deletes key and every key below it, then emits a single
// ChangeRemoved event for the subtree root.
func (s *SQLiteStore) RemoveTree(ctx context.Context, key string) error {
	full := s.fullKey(key)
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM config_entries WHERE key = ? OR key LIKE ? ESCAPE '\\'",
		full, likePrefix(full))
	if err != nil {
		return fmt.Errorf("removing key %q: %w", key, err)
	}
	s.notify(key, ChangeRemoved)
	return nil
}

func (s *SQLiteStore) Watch(namespace string, fn WatchFunc) {
	s.watchers = append(s.watchers, watcher{
		namespace: strings.Trim(namespace, "/"),
		fn:        fn,
	})
}

// notify runs matching watcher callbacks synchronously with the key
// relative to the store root.
func (s *SQLiteStore) notify(key string, kind ChangeKind) {
	key = strings.Trim(key, "/")
	for _, w := range s.watchers {
		if key == w.namespace || strings.HasPrefix(key, w.namespace+"/") {
			w.fn(key, kind)
		}
	}
}

// likePrefix builds a LIKE pattern matching every descendant of key,
// escaping the LIKE metacharacters that may appear in escaped segments.
func likePrefix(key string) string {
	esc := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(key)
	return esc + "/%"
}
