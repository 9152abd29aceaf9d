package feed

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/christianmark/transmit/internal/models"
	"github.com/christianmark/transmit/internal/store"
)

// scriptedSource hands out one scripted watch per call.
type scriptedSource struct {
	mu      sync.Mutex
	watches []func(ctx context.Context) (<-chan store.Snapshot, error)
	calls   int
}

func (s *scriptedSource) Watch(ctx context.Context) (<-chan store.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i >= len(s.watches) {
		ch := make(chan store.Snapshot)
		return ch, nil // never delivers
	}
	return s.watches[i](ctx)
}

func deliver(snaps ...store.Snapshot) func(ctx context.Context) (<-chan store.Snapshot, error) {
	return func(ctx context.Context) (<-chan store.Snapshot, error) {
		ch := make(chan store.Snapshot, len(snaps))
		for _, s := range snaps {
			ch <- s
		}
		close(ch)
		return ch, nil
	}
}

func failing(ctx context.Context) (<-chan store.Snapshot, error) {
	return nil, errors.New("unreachable")
}

func next(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-events:
		if !ok {
			t.Fatal("event stream closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func at(sec int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, sec, 0, time.UTC)
}

func TestSubscribeOrdersSnapshots(t *testing.T) {
	src := &scriptedSource{watches: []func(context.Context) (<-chan store.Snapshot, error){
		deliver(store.Snapshot{
			{ID: "c", Timestamp: at(3)},
			{ID: "a", Timestamp: at(1)},
			{ID: "b", Timestamp: at(2)},
		}),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := Subscribe(ctx, src, WithRetry(10*time.Millisecond))

	if ev := next(t, events); ev.Kind != EventConnected {
		t.Fatalf("expected connected first, got %v", ev.Kind)
	}
	ev := next(t, events)
	if ev.Kind != EventSnapshot {
		t.Fatalf("expected snapshot, got %v", ev.Kind)
	}
	for i, want := range []string{"a", "b", "c"} {
		if ev.Messages[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, ev.Messages[i].ID)
		}
	}
}

func TestSubscribeRestartsAfterLoss(t *testing.T) {
	src := &scriptedSource{watches: []func(context.Context) (<-chan store.Snapshot, error){
		deliver(store.Snapshot{{ID: "a", Timestamp: at(1)}}),
		failing,
		deliver(store.Snapshot{{ID: "a", Timestamp: at(1)}, {ID: "b", Timestamp: at(2)}}),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := Subscribe(ctx, src, WithRetry(5*time.Millisecond))

	kinds := []Kind{EventConnected, EventSnapshot, EventDisconnected, EventConnected, EventSnapshot}
	var last Event
	for i, want := range kinds {
		last = next(t, events)
		if last.Kind != want {
			t.Fatalf("event %d: expected %v, got %v", i, want, last.Kind)
		}
	}
	if len(last.Messages) != 2 {
		t.Errorf("expected 2 messages after reconnect, got %d", len(last.Messages))
	}
}

func TestSubscribeClosesOnCancel(t *testing.T) {
	src := &scriptedSource{}
	ctx, cancel := context.WithCancel(context.Background())
	events := Subscribe(ctx, src)
	cancel()

	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("expected no events")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream not closed after cancel")
	}
}

func TestSubscribeWithMemoryStore(t *testing.T) {
	s := store.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := Subscribe(ctx, s)

	next(t, events) // connected
	if ev := next(t, events); len(ev.Messages) != 0 {
		t.Fatalf("expected empty initial snapshot, got %d", len(ev.Messages))
	}

	if err := s.Push(context.Background(), &models.Message{Author: "ALPHA", Text: "hi"}); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	ev := next(t, events)
	if ev.Kind != EventSnapshot || len(ev.Messages) != 1 || ev.Messages[0].Text != "hi" {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestOrderTieBreaksByID(t *testing.T) {
	snap := []models.Message{
		{ID: "b", Timestamp: at(5)},
		{ID: "a", Timestamp: at(5)},
		{ID: "z", Timestamp: at(1)},
	}
	got := Order(snap)

	want := []string{"z", "a", "b"}
	for i := range want {
		if got[i].ID != want[i] {
			t.Fatalf("expected %v, got order %v %v %v", want, got[0].ID, got[1].ID, got[2].ID)
		}
	}
	if snap[0].ID != "b" {
		t.Error("expected Order to leave its input untouched")
	}
}

func TestOrderIsNonDecreasing(t *testing.T) {
	var snap []models.Message
	for _, sec := range []int{9, 3, 7, 3, 1, 8, 2, 2, 6} {
		snap = append(snap, models.Message{ID: strconv.Itoa(sec), Timestamp: at(sec)})
	}
	got := Order(snap)
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp.Before(got[i-1].Timestamp) {
			t.Fatalf("order broken at %d: %v before %v", i, got[i].Timestamp, got[i-1].Timestamp)
		}
	}
}
