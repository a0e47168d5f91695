// Package store defines the persistent document-store boundary. The engine
// never builds backend-specific query syntax outside this package; any
// document store that can count, scan, look up by exact field value, and
// bulk-delete by id can back it.
package store

import (
	"context"
	"time"
)

// Field names accepted by ScanAll and LookupExact.
const (
	FieldURL         = "url"
	FieldTextContent = "text_content"
	FieldHTMLContent = "html_content"
	FieldTimestamp   = "timestamp"
)

// Document is a transient copy of one stored crawl record. The store owns
// the data; the engine only holds copies for the duration of a scan.
type Document struct {
	ID          string
	URL         string
	TextContent string
	HTMLContent string
	Timestamp   time.Time
}

// BulkDeleteResult reports the outcome of one bulk delete call.
type BulkDeleteResult struct {
	Succeeded int
	FailedIDs []string
}

// Iterator is a lazy, finite, non-restartable document sequence produced by
// ScanAll. Close must be called when iteration stops early.
type Iterator interface {
	// Next advances to the next document, returning false at the end of the
	// sequence or on error. Check Err after Next returns false.
	Next(ctx context.Context) bool
	Document() Document
	Err() error
	Close(ctx context.Context) error
}

// Store is the adapter interface to the persistent document store.
type Store interface {
	// Count returns the number of stored documents.
	Count(ctx context.Context) (int64, error)

	// ScanAll streams every document, populating only the requested fields
	// (plus ID, which is always set). A nil fields slice fetches everything.
	ScanAll(ctx context.Context, fields []string) (Iterator, error)

	// LookupExact returns the first document whose field equals value, or
	// nil when absent.
	LookupExact(ctx context.Context, field, value string) (*Document, error)

	// BulkDelete removes the given ids. Deleting an id that no longer exists
	// is not an error; at-least-once delivery upstream makes that routine.
	BulkDelete(ctx context.Context, ids []string) (BulkDeleteResult, error)

	Close(ctx context.Context) error
}

// Drain reads the remainder of an iterator into a slice and closes it.
func Drain(ctx context.Context, it Iterator) ([]Document, error) {
	defer it.Close(ctx)
	var docs []Document
	for it.Next(ctx) {
		docs = append(docs, it.Document())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}
