package mysql

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"txsentry/internal/domain"

	_ "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// lookupChunk bounds the IN list of one lookup query.
const lookupChunk = 500

type Repository struct {
	db *sql.DB
}

func NewRepository(dsn string) (*Repository, error) {
	if dsn == "" {
		return nil, errors.New("db dsn is required")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return newRepository(db), nil
}

func newRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func createSchema(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS automated_addresses (
			address VARCHAR(42) NOT NULL,
			label VARCHAR(64) NOT NULL,
			source VARCHAR(64) NOT NULL DEFAULT '',
			updated_at DATETIME(6) NOT NULL,
			PRIMARY KEY (address),
			KEY automated_label_idx (label)
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return ensureColumn(db, "automated_addresses", "source", "VARCHAR(64) NOT NULL DEFAULT ''")
}

func ensureColumn(db *sql.DB, table, column, definition string) error {
	var count int
	row := db.QueryRow(
		`SELECT COUNT(*) FROM information_schema.columns WHERE table_schema = DATABASE() AND table_name = ? AND column_name = ?`,
		table, column,
	)
	if err := row.Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	_, err := db.Exec("ALTER TABLE " + table + " ADD COLUMN " + column + " " + definition)
	return err
}

// KnownAutomated reports which of the addresses are registered. Keys are lowercase.
func (r *Repository) KnownAutomated(ctx context.Context, addresses []string) (map[string]bool, error) {
	known := make(map[string]bool)
	if len(addresses) == 0 {
		return known, nil
	}
	ctx, span := startDBSpan(ctx, "mysql.KnownAutomated", attribute.Int("address.count", len(addresses)))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	for start := 0; start < len(addresses); start += lookupChunk {
		chunk := addresses[start:min(start+lookupChunk, len(addresses))]
		args := make([]any, 0, len(chunk))
		for _, addr := range chunk {
			args = append(args, strings.ToLower(addr))
		}
		query := "SELECT address FROM automated_addresses WHERE address IN (?" + strings.Repeat(", ?", len(chunk)-1) + ")"
		rows, err := r.db.QueryContext(ctx, query, args...)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		for rows.Next() {
			var addr string
			if err := rows.Scan(&addr); err != nil {
				rows.Close()
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return nil, err
			}
			known[strings.ToLower(addr)] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		rows.Close()
	}
	return known, nil
}

func (r *Repository) Upsert(ctx context.Context, label domain.AutomatedLabel) error {
	return r.UpsertLabels(ctx, []domain.AutomatedLabel{label})
}

func (r *Repository) UpsertLabels(ctx context.Context, labels []domain.AutomatedLabel) error {
	if len(labels) == 0 {
		return nil
	}
	ctx, span := startDBSpan(ctx, "mysql.UpsertLabels", attribute.Int("label.count", len(labels)))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO automated_addresses (address, label, source, updated_at)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			label = VALUES(label),
			source = VALUES(source),
			updated_at = VALUES(updated_at)`)
	if err != nil {
		_ = tx.Rollback()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer stmt.Close()

	for _, label := range labels {
		updated := label.UpdatedAt
		if updated.IsZero() {
			updated = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, strings.ToLower(label.Address), label.Label, label.Source, updated.UTC()); err != nil {
			_ = tx.Rollback()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func startDBSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("db.system", "mysql"))
	return otel.Tracer("txsentry/mysql").Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}
