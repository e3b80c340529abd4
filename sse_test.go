package main

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestBroadcasterSubscribeUnsubscribe(t *testing.T) {
	b := NewBroadcaster()

	s1 := b.Subscribe("FAM-202")
	s2 := b.Subscribe("FAM-202")
	s3 := b.Subscribe("SUN-101")

	if b.SubscriberCount("FAM-202") != 2 {
		t.Fatalf("expected 2 subscribers for FAM-202, got %d", b.SubscriberCount("FAM-202"))
	}
	if b.SubscriberCount("SUN-101") != 1 {
		t.Fatalf("expected 1 subscriber for SUN-101, got %d", b.SubscriberCount("SUN-101"))
	}

	b.Unsubscribe(s1)
	if b.SubscriberCount("FAM-202") != 1 {
		t.Fatalf("expected 1 subscriber for FAM-202 after unsubscribe, got %d", b.SubscriberCount("FAM-202"))
	}

	b.Unsubscribe(s2)
	b.Unsubscribe(s3)
	if b.SubscriberCount("FAM-202") != 0 || b.SubscriberCount("SUN-101") != 0 {
		t.Fatal("expected 0 subscribers after full unsubscribe")
	}
}

func TestBroadcasterDoubleUnsubscribe(t *testing.T) {
	b := NewBroadcaster()
	s := b.Subscribe("FAM-202")
	b.Unsubscribe(s)
	b.Unsubscribe(s) // should not panic
}

func TestBroadcast(t *testing.T) {
	b := NewBroadcaster()

	s1 := b.Subscribe("FAM-202")
	s2 := b.Subscribe("FAM-202")
	s3 := b.Subscribe("SUN-101")

	b.Broadcast(CircleEvent{Type: EventIssuePublished, Circle: "FAM-202", IssueID: "issue-1"})

	for i, s := range []*subscriber{s1, s2} {
		select {
		case evt := <-s.ch:
			if evt.Type != EventIssuePublished || evt.IssueID != "issue-1" {
				t.Fatalf("s%d got unexpected event %+v", i+1, evt)
			}
			if evt.Seq != 1 {
				t.Fatalf("s%d expected seq 1, got %d", i+1, evt.Seq)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("s%d did not receive event", i+1)
		}
	}

	// s3 follows another circle.
	select {
	case <-s3.ch:
		t.Fatal("s3 should not receive FAM-202 event")
	case <-time.After(50 * time.Millisecond):
	}

	b.Unsubscribe(s1)
	b.Unsubscribe(s2)
	b.Unsubscribe(s3)
}

func TestBroadcastNumbersEvents(t *testing.T) {
	b := NewBroadcaster()
	s := b.Subscribe("FAM-202")
	defer b.Unsubscribe(s)

	b.Broadcast(CircleEvent{Type: EventPuzzleReady, Circle: "FAM-202"})
	b.Broadcast(CircleEvent{Type: EventIssuePublished, Circle: "SUN-101"})
	b.Broadcast(CircleEvent{Type: EventIssuePublished, Circle: "FAM-202"})

	first, second := <-s.ch, <-s.ch
	if first.Seq != 1 || second.Seq != 3 {
		t.Fatalf("expected seq 1 and 3, got %d and %d", first.Seq, second.Seq)
	}
}

func TestBroadcastWithoutCircle(t *testing.T) {
	b := NewBroadcaster()
	s := b.Subscribe("")
	defer b.Unsubscribe(s)

	b.Broadcast(CircleEvent{Type: EventIssuePublished})

	select {
	case evt := <-s.ch:
		t.Fatalf("unexpected event %+v", evt)
	default:
	}
}

func TestBroadcastSkipsFullChannel(t *testing.T) {
	b := NewBroadcaster()
	s := b.Subscribe("FAM-202")

	for range sseChannelBuffer {
		b.Broadcast(CircleEvent{Type: EventPuzzleReady, Circle: "FAM-202"})
	}

	// Must not block.
	b.Broadcast(CircleEvent{Type: EventPuzzleReady, Circle: "FAM-202"})

	b.Unsubscribe(s)
}

func TestBroadcasterConcurrent(t *testing.T) {
	b := NewBroadcaster()
	var wg sync.WaitGroup

	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			circle := "FAM-202"
			if i%2 == 0 {
				circle = "SUN-101"
			}
			s := b.Subscribe(circle)
			b.Broadcast(CircleEvent{Type: EventPuzzleReady, Circle: circle})
			b.SubscriberCount(circle)
			b.Unsubscribe(s)
		}(i)
	}
	wg.Wait()

	if b.SubscriberCount("FAM-202") != 0 || b.SubscriberCount("SUN-101") != 0 {
		t.Fatal("expected 0 subscribers after concurrent test")
	}
}

func TestServeSSEStreamsEvents(t *testing.T) {
	b := NewBroadcaster()

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest("GET", "/api/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.ServeSSE(w, req, "FAM-202")
	}()

	deadline := time.Now().Add(time.Second)
	for b.SubscriberCount("FAM-202") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	b.Broadcast(CircleEvent{Type: EventIssuePublished, Circle: "FAM-202", IssueID: "issue-1", WeekNumber: 42})
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected text/event-stream, got %s", ct)
	}

	var events []CircleEvent
	for _, frame := range strings.Split(strings.TrimSpace(w.Body.String()), "\n\n") {
		for _, line := range strings.Split(frame, "\n") {
			data, ok := strings.CutPrefix(line, "data: ")
			if !ok {
				continue
			}
			var evt CircleEvent
			if err := json.Unmarshal([]byte(data), &evt); err != nil {
				t.Fatalf("decode %q: %v", data, err)
			}
			events = append(events, evt)
		}
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d in %q", len(events), w.Body.String())
	}
	if events[0].Type != EventConnected || events[0].Circle != "FAM-202" || events[0].Listeners != 1 {
		t.Fatalf("unexpected connected event %+v", events[0])
	}
	if events[1].Type != EventIssuePublished || events[1].IssueID != "issue-1" || events[1].WeekNumber != 42 {
		t.Fatalf("unexpected broadcast event %+v", events[1])
	}
	if !strings.Contains(w.Body.String(), "id: 1\n") {
		t.Fatalf("missing event id in %q", w.Body.String())
	}
	if b.SubscriberCount("FAM-202") != 0 {
		t.Fatal("subscriber should be removed after disconnect")
	}
}
