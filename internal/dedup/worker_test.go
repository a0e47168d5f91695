package dedup

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/websift/dedup-engine/pkg/kafka"
)

type capturePublisher struct {
	events []kafka.Event
	err    error
}

func (p *capturePublisher) Publish(ctx context.Context, event kafka.Event) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func TestWorkerHandle(t *testing.T) {
	pub := &capturePublisher{}
	w := NewWorker(newTestDeduplicator(t, nil), pub, nil)
	ctx := context.Background()

	batch, _ := json.Marshal(URLBatch{
		BatchID: "batch-1",
		Source:  "crawler-a",
		URLs:    []string{"http://a.onion/", "http://b.onion/", "http://a.onion/"},
	})
	if err := w.Handle(ctx, []byte("batch-1"), batch); err != nil {
		t.Fatal(err)
	}
	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}
	out, ok := pub.events[0].Value.(URLBatch)
	if !ok {
		t.Fatalf("published value has type %T", pub.events[0].Value)
	}
	if len(out.URLs) != 2 {
		t.Errorf("forwarded %d urls, want 2: %v", len(out.URLs), out.URLs)
	}
	if out.BatchID != "batch-1" || pub.events[0].Key != "batch-1" {
		t.Error("batch id not propagated")
	}
}

func TestWorkerHandleAllDuplicates(t *testing.T) {
	pub := &capturePublisher{}
	w := NewWorker(newTestDeduplicator(t, nil), pub, nil)
	ctx := context.Background()

	first, _ := json.Marshal(URLBatch{BatchID: "b1", URLs: []string{"http://a.onion/"}})
	if err := w.Handle(ctx, []byte("b1"), first); err != nil {
		t.Fatal(err)
	}
	second, _ := json.Marshal(URLBatch{BatchID: "b2", URLs: []string{"http://a.onion/"}})
	if err := w.Handle(ctx, []byte("b2"), second); err != nil {
		t.Fatal(err)
	}
	// Nothing survived the second batch, so nothing is published for it.
	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}
}

func TestWorkerHandleMalformed(t *testing.T) {
	pub := &capturePublisher{}
	w := NewWorker(newTestDeduplicator(t, nil), pub, nil)

	// Malformed batches are dropped so the consumer can commit past them.
	if err := w.Handle(context.Background(), []byte("k"), []byte("{not json")); err != nil {
		t.Fatalf("malformed batch returned error: %v", err)
	}
	if len(pub.events) != 0 {
		t.Error("malformed batch produced output")
	}
}
