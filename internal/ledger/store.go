package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"snapsync/internal/config"
)

// Store manages queue and counter persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the queue database and verifies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("ledger requires config")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.QueueDBPath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Insert appends an item to the queue and bumps the produced counter in the
// same transaction. Inserting an id that is already queued is a no-op; the
// returned bool reports whether a new row was created.
func (s *Store) Insert(ctx context.Context, item Item) (bool, error) {
	if item.ID == "" {
		return false, errors.New("item id is empty")
	}
	createdAt := item.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin insert tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO queue_items (artifact_id, location_lat, location_lon, created_at)
         VALUES (?, ?, ?, ?)`,
		item.ID,
		nullableFloat(item.LocationLat),
		nullableFloat(item.LocationLon),
		createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, fmt.Errorf("insert item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return false, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, `UPDATE counters SET value = value + 1 WHERE name = 'produced'`); err != nil {
		return false, fmt.Errorf("bump produced counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit insert: %w", err)
	}
	return true, nil
}

// Remove deletes an item by id. Removing an absent id is not an error.
func (s *Store) Remove(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM queue_items WHERE artifact_id = ?`, id); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

// MarkDelivered removes the item and bumps the delivered counter in one
// transaction. The returned bool is false when the row was already gone, in
// which case the counter is left untouched.
func (s *Store) MarkDelivered(ctx context.Context, id string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin delivered tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM queue_items WHERE artifact_id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete delivered item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return false, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, `UPDATE counters SET value = value + 1 WHERE name = 'delivered'`); err != nil {
		return false, fmt.Errorf("bump delivered counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delivered: %w", err)
	}
	return true, nil
}

// Next returns the queue head in insertion order, or nil when the queue is empty.
func (s *Store) Next(ctx context.Context) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM queue_items ORDER BY seq LIMIT 1`)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next item: %w", err)
	}
	return item, nil
}

// Get fetches an item by id, or nil when absent.
func (s *Store) Get(ctx context.Context, id string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM queue_items WHERE artifact_id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// List returns a snapshot of all queued items in insertion order.
func (s *Store) List(ctx context.Context) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM queue_items ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list queue items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// Len returns the number of queued items.
func (s *Store) Len(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM queue_items`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count queue items: %w", err)
	}
	return count, nil
}

// Totals returns the durable produced/delivered counters.
func (s *Store) Totals(ctx context.Context) (Totals, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM counters`)
	if err != nil {
		return Totals{}, fmt.Errorf("read counters: %w", err)
	}
	defer rows.Close()

	var totals Totals
	for rows.Next() {
		var name string
		var value int64
		if err := rows.Scan(&name, &value); err != nil {
			return Totals{}, err
		}
		switch name {
		case "produced":
			totals.Produced = value
		case "delivered":
			totals.Delivered = value
		}
	}
	return totals, rows.Err()
}

// Reconcile drops every queued entry whose blob is missing and returns the
// number of dropped rows. Entries can lose their blob when a crash lands
// between the blob write and the queue insert.
func (s *Store) Reconcile(ctx context.Context, exists func(id string) bool) (int, error) {
	if exists == nil {
		return 0, errors.New("reconcile requires an existence check")
	}

	items, err := s.List(ctx)
	if err != nil {
		return 0, err
	}

	dropped := 0
	for _, item := range items {
		if exists(item.ID) {
			continue
		}
		if err := s.Remove(ctx, item.ID); err != nil {
			return dropped, err
		}
		dropped++
	}
	return dropped, nil
}

const itemColumns = "artifact_id, location_lat, location_lon, created_at"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id         string
		lat        sql.NullFloat64
		lon        sql.NullFloat64
		createdRaw string
	)
	if err := scanner.Scan(&id, &lat, &lon, &createdRaw); err != nil {
		return nil, err
	}

	item := &Item{ID: id}
	if lat.Valid {
		v := lat.Float64
		item.LocationLat = &v
	}
	if lon.Valid {
		v := lon.Float64
		item.LocationLon = &v
	}
	if created, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		item.CreatedAt = created
	}
	return item, nil
}

func nullableFloat(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}
