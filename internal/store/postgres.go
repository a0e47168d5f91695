package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/websift/dedup-engine/pkg/config"
	apperrors "github.com/websift/dedup-engine/pkg/errors"
	"github.com/websift/dedup-engine/pkg/postgres"
	"github.com/websift/dedup-engine/pkg/resilience"
)

const createDocumentsTable = `
CREATE TABLE IF NOT EXISTS %s (
	id           TEXT PRIMARY KEY,
	url          TEXT NOT NULL,
	text_content TEXT NOT NULL DEFAULT '',
	html_content TEXT NOT NULL DEFAULT '',
	ts           TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS %s_url_idx ON %s (url);
`

// PostgresStore implements Store on a single documents table.
type PostgresStore struct {
	client *postgres.Client
	table  string
	cfg    config.StoreConfig
}

// NewPostgresStore connects to PostgreSQL (with backoff) and bootstraps the
// documents table and URL index.
func NewPostgresStore(ctx context.Context, cfg config.StoreConfig) (*PostgresStore, error) {
	client, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrStoreUnavailable, "connecting to postgres: %v", err)
	}
	s := &PostgresStore{
		client: client,
		table:  cfg.Postgres.Table,
		cfg:    cfg,
	}
	ddl := fmt.Sprintf(createDocumentsTable, s.table, s.table, s.table)
	if _, err := client.DB.ExecContext(ctx, ddl); err != nil {
		client.Close()
		return nil, apperrors.Newf(apperrors.ErrStoreUnavailable, "bootstrapping schema: %v", err)
	}
	return s, nil
}

func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := resilience.WithTimeout(ctx, s.cfg.OpTimeout, "postgres-count", func(ctx context.Context) error {
		row := s.client.DB.QueryRowContext(ctx, fmt.Sprintf("SELECT count(*) FROM %s", s.table))
		return row.Scan(&count)
	})
	if err != nil {
		return 0, apperrors.Newf(apperrors.ErrStoreUnavailable, "counting documents: %v", err)
	}
	return count, nil
}

func (s *PostgresStore) ScanAll(ctx context.Context, fields []string) (Iterator, error) {
	cols, err := selectColumns(fields)
	if err != nil {
		return nil, err
	}
	return &postgresIterator{
		store:    s,
		columns:  cols,
		pageSize: s.cfg.ScanPage,
	}, nil
}

func (s *PostgresStore) LookupExact(ctx context.Context, field, value string) (*Document, error) {
	if err := validField(field); err != nil {
		return nil, err
	}
	var doc Document
	err := resilience.WithTimeout(ctx, s.cfg.OpTimeout, "postgres-lookup", func(ctx context.Context) error {
		query := fmt.Sprintf(
			"SELECT id, url, text_content, html_content, ts FROM %s WHERE %s = $1 LIMIT 1",
			s.table, field,
		)
		row := s.client.DB.QueryRowContext(ctx, query, value)
		return row.Scan(&doc.ID, &doc.URL, &doc.TextContent, &doc.HTMLContent, &doc.Timestamp)
	})
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrStoreOperationFailed, "looking up %s=%q: %v", field, value, err)
	}
	return &doc, nil
}

func (s *PostgresStore) BulkDelete(ctx context.Context, ids []string) (BulkDeleteResult, error) {
	if len(ids) == 0 {
		return BulkDeleteResult{}, nil
	}
	var affected int64
	err := resilience.WithTimeout(ctx, s.cfg.OpTimeout, "postgres-bulk-delete", func(ctx context.Context) error {
		res, err := s.client.DB.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE id = ANY($1)", s.table),
			pq.Array(ids),
		)
		if err != nil {
			return err
		}
		affected, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return BulkDeleteResult{FailedIDs: ids},
			apperrors.Newf(apperrors.ErrStoreOperationFailed, "bulk delete of %d ids: %v", len(ids), err)
	}
	// Already-deleted ids simply do not count toward affected rows.
	return BulkDeleteResult{Succeeded: int(affected)}, nil
}

func (s *PostgresStore) Close(ctx context.Context) error {
	return s.client.Close()
}

// Ping reports store reachability, used by health checks.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.client.DB.PingContext(ctx)
}

// postgresIterator pages through the documents table by keyset on id, so a
// scan never holds a server-side cursor open across the whole run.
type postgresIterator struct {
	store    *PostgresStore
	columns  []string
	pageSize int

	page    []Document
	pos     int
	afterID string
	done    bool
	err     error
}

func (it *postgresIterator) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}
	if it.pos < len(it.page) {
		it.pos++
		return true
	}
	if it.done {
		return false
	}
	if err := it.fetchPage(ctx); err != nil {
		it.err = err
		return false
	}
	if len(it.page) == 0 {
		it.done = true
		return false
	}
	it.pos = 1
	return true
}

func (it *postgresIterator) fetchPage(ctx context.Context) error {
	size := it.pageSize
	if size <= 0 {
		size = 500
	}
	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE id > $1 ORDER BY id LIMIT $2",
		strings.Join(it.columns, ", "), it.store.table,
	)
	var page []Document
	err := resilience.WithTimeout(ctx, it.store.cfg.OpTimeout, "postgres-scan-page", func(ctx context.Context) error {
		rows, err := it.store.client.DB.QueryContext(ctx, query, it.afterID, size)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			doc, err := scanDocument(rows, it.columns)
			if err != nil {
				return err
			}
			page = append(page, doc)
		}
		return rows.Err()
	})
	if err != nil {
		return apperrors.Newf(apperrors.ErrStoreUnavailable, "scanning documents: %v", err)
	}
	it.page = page
	it.pos = 0
	if len(page) > 0 {
		it.afterID = page[len(page)-1].ID
	}
	if len(page) < size {
		it.done = true
	}
	return nil
}

func (it *postgresIterator) Document() Document {
	return it.page[it.pos-1]
}

func (it *postgresIterator) Err() error { return it.err }

func (it *postgresIterator) Close(ctx context.Context) error { return nil }

// scanDocument maps a row back onto a Document according to the selected
// column order.
func scanDocument(rows *sql.Rows, columns []string) (Document, error) {
	var doc Document
	dests := make([]any, 0, len(columns))
	for _, col := range columns {
		switch col {
		case "id":
			dests = append(dests, &doc.ID)
		case FieldURL:
			dests = append(dests, &doc.URL)
		case FieldTextContent:
			dests = append(dests, &doc.TextContent)
		case FieldHTMLContent:
			dests = append(dests, &doc.HTMLContent)
		case "ts":
			dests = append(dests, &doc.Timestamp)
		}
	}
	if err := rows.Scan(dests...); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// selectColumns maps requested adapter fields onto table columns, always
// including id.
func selectColumns(fields []string) ([]string, error) {
	if fields == nil {
		return []string{"id", FieldURL, FieldTextContent, FieldHTMLContent, "ts"}, nil
	}
	cols := []string{"id"}
	for _, f := range fields {
		switch f {
		case FieldURL, FieldTextContent, FieldHTMLContent:
			cols = append(cols, f)
		case FieldTimestamp:
			cols = append(cols, "ts")
		default:
			return nil, apperrors.Newf(apperrors.ErrInvalidConfiguration, "unknown scan field %q", f)
		}
	}
	return cols, nil
}

func validField(field string) error {
	switch field {
	case FieldURL, FieldTextContent:
		return nil
	default:
		return apperrors.Newf(apperrors.ErrInvalidConfiguration, "unsupported lookup field %q", field)
	}
}

var _ Store = (*PostgresStore)(nil)
