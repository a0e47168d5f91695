// Package storetest provides an in-memory Store fake for package tests.
package storetest

import (
	"context"
	"sync"

	"github.com/websift/dedup-engine/internal/store"
	apperrors "github.com/websift/dedup-engine/pkg/errors"
)

// Fake is an in-memory store.Store. Documents keep their insertion order so
// tests can rely on deterministic scan order and tie-breaks.
type Fake struct {
	mu   sync.Mutex
	docs []store.Document

	// ScanErr, when set, makes ScanAll fail immediately.
	ScanErr error
	// FailDeleteIDs marks ids whose containing BulkDelete call fails whole.
	FailDeleteIDs map[string]bool

	// BulkDeleteCalls records the id slices passed to BulkDelete.
	BulkDeleteCalls [][]string
	LookupCalls     int
}

// New creates a Fake seeded with the given documents.
func New(docs ...store.Document) *Fake {
	f := &Fake{FailDeleteIDs: make(map[string]bool)}
	f.docs = append(f.docs, docs...)
	return f
}

// Add appends documents to the store.
func (f *Fake) Add(docs ...store.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = append(f.docs, docs...)
}

// Documents returns a copy of the current contents in insertion order.
func (f *Fake) Documents() []store.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Document, len(f.docs))
	copy(out, f.docs)
	return out
}

func (f *Fake) Count(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.docs)), nil
}

func (f *Fake) ScanAll(ctx context.Context, fields []string) (store.Iterator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ScanErr != nil {
		return nil, f.ScanErr
	}
	docs := make([]store.Document, len(f.docs))
	copy(docs, f.docs)
	return &sliceIterator{docs: docs}, nil
}

func (f *Fake) LookupExact(ctx context.Context, field, value string) (*store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.LookupCalls++
	for _, doc := range f.docs {
		var got string
		switch field {
		case store.FieldURL:
			got = doc.URL
		case store.FieldTextContent:
			got = doc.TextContent
		default:
			return nil, apperrors.Newf(apperrors.ErrInvalidConfiguration, "unsupported lookup field %q", field)
		}
		if got == value {
			d := doc
			return &d, nil
		}
	}
	return nil, nil
}

func (f *Fake) BulkDelete(ctx context.Context, ids []string) (store.BulkDeleteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	recorded := make([]string, len(ids))
	copy(recorded, ids)
	f.BulkDeleteCalls = append(f.BulkDeleteCalls, recorded)

	for _, id := range ids {
		if f.FailDeleteIDs[id] {
			return store.BulkDeleteResult{FailedIDs: recorded},
				apperrors.Newf(apperrors.ErrStoreOperationFailed, "injected delete failure for %s", id)
		}
	}
	deleted := 0
	remaining := f.docs[:0]
	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}
	for _, doc := range f.docs {
		if idSet[doc.ID] {
			deleted++
			continue
		}
		remaining = append(remaining, doc)
	}
	f.docs = remaining
	return store.BulkDeleteResult{Succeeded: deleted}, nil
}

func (f *Fake) Close(ctx context.Context) error { return nil }

type sliceIterator struct {
	docs []store.Document
	pos  int
}

func (it *sliceIterator) Next(ctx context.Context) bool {
	if it.pos >= len(it.docs) {
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) Document() store.Document { return it.docs[it.pos-1] }

func (it *sliceIterator) Err() error { return nil }

func (it *sliceIterator) Close(ctx context.Context) error { return nil }

var _ store.Store = (*Fake)(nil)
