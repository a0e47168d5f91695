package store

import (
	"context"
	"errors"
	"testing"

	apperrors "github.com/websift/dedup-engine/pkg/errors"
)

type stubIterator struct {
	docs   []Document
	pos    int
	err    error
	closed bool
}

func (it *stubIterator) Next(ctx context.Context) bool {
	if it.pos >= len(it.docs) {
		return false
	}
	it.pos++
	return true
}

func (it *stubIterator) Document() Document { return it.docs[it.pos-1] }

func (it *stubIterator) Err() error { return it.err }

func (it *stubIterator) Close(ctx context.Context) error {
	it.closed = true
	return nil
}

func TestDrain(t *testing.T) {
	it := &stubIterator{docs: []Document{{ID: "1"}, {ID: "2"}}}
	docs, err := Drain(context.Background(), it)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 || docs[0].ID != "1" || docs[1].ID != "2" {
		t.Errorf("drained %+v", docs)
	}
	if !it.closed {
		t.Error("iterator not closed")
	}
}

func TestDrainPropagatesError(t *testing.T) {
	it := &stubIterator{
		docs: []Document{{ID: "1"}},
		err:  apperrors.New(apperrors.ErrStoreOperationFailed, "cursor broke"),
	}
	_, err := Drain(context.Background(), it)
	if !errors.Is(err, apperrors.ErrStoreOperationFailed) {
		t.Fatalf("want ErrStoreOperationFailed, got %v", err)
	}
	if !it.closed {
		t.Error("iterator not closed after error")
	}
}

func TestSelectColumns(t *testing.T) {
	cols, err := selectColumns(nil)
	if err != nil {
		t.Fatal(err)
	}
	if cols[0] != "id" || len(cols) != 5 {
		t.Errorf("nil fields columns = %v", cols)
	}

	cols, err = selectColumns([]string{FieldURL, FieldTimestamp})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"id", "url", "ts"}
	if len(cols) != len(want) {
		t.Fatalf("columns = %v, want %v", cols, want)
	}
	for i := range want {
		if cols[i] != want[i] {
			t.Errorf("columns[%d] = %q, want %q", i, cols[i], want[i])
		}
	}

	if _, err := selectColumns([]string{"body"}); !errors.Is(err, apperrors.ErrInvalidConfiguration) {
		t.Errorf("unknown field: want ErrInvalidConfiguration, got %v", err)
	}
}

func TestValidField(t *testing.T) {
	if err := validField(FieldURL); err != nil {
		t.Errorf("url: %v", err)
	}
	if err := validField(FieldTextContent); err != nil {
		t.Errorf("text_content: %v", err)
	}
	if err := validField(FieldTimestamp); !errors.Is(err, apperrors.ErrInvalidConfiguration) {
		t.Errorf("timestamp lookup: want ErrInvalidConfiguration, got %v", err)
	}
}
