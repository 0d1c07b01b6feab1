package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"backlab/internal/domain"
)

// Compile-time interface check.
var _ StrategyStore = (*SQLiteStore)(nil)

const strategiesSchema = `
CREATE TABLE IF NOT EXISTS strategies (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	definition  TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL,
	is_public   INTEGER NOT NULL DEFAULT 0,
	author      TEXT NOT NULL DEFAULT ''
);
`

// SQLiteStore implements StrategyStore backed by a SQLite database. The
// strategy definition is stored as a JSON document.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, runs the
// schema, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(strategiesSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating strategies table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateStrategy inserts a new strategy, assigning a fresh UUID and
// timestamps.
func (s *SQLiteStore) CreateStrategy(ctx context.Context, st *domain.Strategy) error {
	def, err := json.Marshal(st.Definition)
	if err != nil {
		return fmt.Errorf("encoding strategy definition: %w", err)
	}

	now := time.Now().UTC()
	st.ID = uuid.NewString()
	st.CreatedAt = now
	st.UpdatedAt = now

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO strategies (id, name, description, definition, created_at, updated_at, is_public, author)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.Name, st.Description, string(def),
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
		boolToInt(st.IsPublic), st.Author)
	if err != nil {
		return fmt.Errorf("inserting strategy: %w", err)
	}
	return nil
}

// GetStrategy retrieves a strategy by ID.
func (s *SQLiteStore) GetStrategy(ctx context.Context, id string) (*domain.Strategy, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, definition, created_at, updated_at, is_public, author
		 FROM strategies WHERE id = ?`, id)
	st, err := scanStrategy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

// ListStrategies returns all saved strategies, newest first.
func (s *SQLiteStore) ListStrategies(ctx context.Context) ([]domain.Strategy, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, definition, created_at, updated_at, is_public, author
		 FROM strategies ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Strategy
	for rows.Next() {
		st, err := scanStrategy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

// UpdateStrategy persists changes to an existing strategy.
func (s *SQLiteStore) UpdateStrategy(ctx context.Context, st *domain.Strategy) error {
	def, err := json.Marshal(st.Definition)
	if err != nil {
		return fmt.Errorf("encoding strategy definition: %w", err)
	}

	st.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE strategies SET name = ?, description = ?, definition = ?, updated_at = ?, is_public = ?, author = ?
		 WHERE id = ?`,
		st.Name, st.Description, string(def),
		st.UpdatedAt.Format(time.RFC3339Nano),
		boolToInt(st.IsPublic), st.Author, st.ID)
	if err != nil {
		return fmt.Errorf("updating strategy: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteStrategy removes a strategy by ID.
func (s *SQLiteStore) DeleteStrategy(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM strategies WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanStrategy(row scanner) (*domain.Strategy, error) {
	var (
		st                   domain.Strategy
		def                  string
		createdAt, updatedAt string
		isPublic             int
	)
	if err := row.Scan(&st.ID, &st.Name, &st.Description, &def, &createdAt, &updatedAt, &isPublic, &st.Author); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(def), &st.Definition); err != nil {
		return nil, fmt.Errorf("decoding strategy definition %s: %w", st.ID, err)
	}

	var err error
	if st.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at for %s: %w", st.ID, err)
	}
	if st.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at for %s: %w", st.ID, err)
	}
	st.IsPublic = isPublic != 0
	return &st, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
