package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"txsentry/internal/domain"

	_ "modernc.org/sqlite"
)

const lookupChunk = 500

type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	if dbPath == "" {
		return nil, errors.New("db path is required")
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// one writer; the labeler and the analyzer may share the file
	db.SetMaxOpenConns(1)
	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := []string{
		`PRAGMA busy_timeout = 5000`,
		`CREATE TABLE IF NOT EXISTS automated_addresses (
			address TEXT PRIMARY KEY,
			label TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			updated_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) KnownAutomated(ctx context.Context, addresses []string) (map[string]bool, error) {
	known := make(map[string]bool)
	if len(addresses) == 0 {
		return known, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	for start := 0; start < len(addresses); start += lookupChunk {
		chunk := addresses[start:min(start+lookupChunk, len(addresses))]
		args := make([]any, 0, len(chunk))
		for _, addr := range chunk {
			args = append(args, strings.ToLower(addr))
		}
		query := "SELECT address FROM automated_addresses WHERE address IN (?" + strings.Repeat(", ?", len(chunk)-1) + ")"
		if err := r.collect(ctx, known, query, args); err != nil {
			return nil, err
		}
	}
	return known, nil
}

func (r *Repository) collect(ctx context.Context, known map[string]bool, query string, args []any) error {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return err
		}
		known[addr] = true
	}
	return rows.Err()
}

// Label returns the stored label for one address.
func (r *Repository) Label(ctx context.Context, address string) (domain.AutomatedLabel, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var (
		label   domain.AutomatedLabel
		updated int64
	)
	row := r.db.QueryRowContext(ctx, `SELECT address, label, source, updated_at FROM automated_addresses WHERE address = ?`, strings.ToLower(address))
	if err := row.Scan(&label.Address, &label.Label, &label.Source, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.AutomatedLabel{}, false, nil
		}
		return domain.AutomatedLabel{}, false, err
	}
	label.UpdatedAt = time.UnixMilli(updated).UTC()
	return label, true, nil
}

func (r *Repository) Upsert(ctx context.Context, label domain.AutomatedLabel) error {
	return r.UpsertLabels(ctx, []domain.AutomatedLabel{label})
}

func (r *Repository) UpsertLabels(ctx context.Context, labels []domain.AutomatedLabel) error {
	if len(labels) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO automated_addresses (address, label, source, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			label = excluded.label,
			source = excluded.source,
			updated_at = excluded.updated_at`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, label := range labels {
		updated := label.UpdatedAt
		if updated.IsZero() {
			updated = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, strings.ToLower(label.Address), label.Label, label.Source, updated.UnixMilli()); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (r *Repository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	return r.db.Close()
}
