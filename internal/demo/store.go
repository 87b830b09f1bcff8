package demo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/glebarez/go-sqlite"
)

// ErrExists is returned when adding an object whose id is taken.
var ErrExists = errors.New("basic object already exists")

// BasicObject is the row type of the demo store.
type BasicObject struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Store keeps BasicObjects in SQLite.
type Store struct {
	db *sql.DB
}

// OpenStore opens the SQLite database at dsn and creates the table if
// needed. ":memory:" keeps everything in process.
func OpenStore(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open demo store: %w", err)
	}
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
	}
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS basic_objects (
  id   INTEGER PRIMARY KEY,
  name TEXT NOT NULL
);`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create demo schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Get returns the object with id, or nil when there is none.
func (s *Store) Get(ctx context.Context, id int) (*BasicObject, error) {
	objs, err := s.GetMany(ctx, []int{id})
	if err != nil {
		return nil, err
	}
	return objs[0], nil
}

// GetMany loads ids with one query. The result has one entry per id, nil
// where the object does not exist.
func (s *Store) GetMany(ctx context.Context, ids []int) ([]*BasicObject, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name FROM basic_objects WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	found := make(map[int]*BasicObject)
	for rows.Next() {
		var o BasicObject
		if err := rows.Scan(&o.ID, &o.Name); err != nil {
			return nil, err
		}
		found[o.ID] = &o
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]*BasicObject, len(ids))
	for i, id := range ids {
		out[i] = found[id]
	}
	return out, nil
}

func (s *Store) List(ctx context.Context) ([]*BasicObject, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM basic_objects ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*BasicObject{}
	for rows.Next() {
		var o BasicObject
		if err := rows.Scan(&o.ID, &o.Name); err != nil {
			return nil, err
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

func (s *Store) Add(ctx context.Context, o BasicObject) (*BasicObject, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM basic_objects WHERE id = ?`, o.ID).Scan(&n); err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, fmt.Errorf("%w: id %d", ErrExists, o.ID)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO basic_objects (id, name) VALUES (?, ?)`, o.ID, o.Name); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &o, nil
}

// Update renames an existing object. It returns nil when id is unknown.
func (s *Store) Update(ctx context.Context, o BasicObject) (*BasicObject, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE basic_objects SET name = ? WHERE id = ?`, o.Name, o.ID)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	return &o, nil
}
