package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

const (
	sseChannelBuffer = 16
	sseHeartbeat     = 30 * time.Second
)

// EventType names what happened in a circle.
type EventType string

const (
	EventConnected      EventType = "connected"
	EventIssuePublished EventType = "issue_published"
	EventPuzzleReady    EventType = "puzzle_ready"
)

// CircleEvent is a notification sent to the members of one circle.
// Only the fields relevant to Type are set.
type CircleEvent struct {
	Seq        uint64    `json:"seq"`
	Type       EventType `json:"type"`
	Circle     string    `json:"circle"`
	IssueID    string    `json:"issueId,omitempty"`
	WeekNumber int       `json:"weekNumber,omitempty"`
	BlockID    string    `json:"blockId,omitempty"`
	UserName   string    `json:"userName,omitempty"`
	Listeners  int       `json:"listeners,omitempty"`
}

func issuePublishedEvent(issue *Issue) CircleEvent {
	return CircleEvent{
		Type:       EventIssuePublished,
		Circle:     issue.CircleCode,
		IssueID:    issue.ID,
		WeekNumber: issue.WeekNumber,
	}
}

func puzzleReadyEvent(u User, b *PuzzleBlock) CircleEvent {
	return CircleEvent{
		Type:     EventPuzzleReady,
		Circle:   u.GroupCode,
		BlockID:  b.ID,
		UserName: u.Name,
	}
}

// subscriber is one member's SSE connection to a circle.
type subscriber struct {
	ch     chan CircleEvent
	circle string
}

// Broadcaster fans circle events out to the members listening on that
// circle. Events are numbered in the order they are broadcast.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
	seq  atomic.Uint64
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[*subscriber]struct{}),
	}
}

// Subscribe registers a subscriber for a circle.
func (b *Broadcaster) Subscribe(circle string) *subscriber {
	s := &subscriber{
		ch:     make(chan CircleEvent, sseChannelBuffer),
		circle: circle,
	}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(s *subscriber) {
	b.mu.Lock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.ch)
	}
	b.mu.Unlock()
}

// Broadcast numbers evt and sends it to every subscriber of evt.Circle.
// Subscribers whose buffer is full miss the event.
func (b *Broadcaster) Broadcast(evt CircleEvent) {
	if evt.Circle == "" {
		log.Printf("Event %s dropped: no circle", evt.Type)
		return
	}
	evt.Seq = b.seq.Add(1)

	b.mu.RLock()
	defer b.mu.RUnlock()

	for s := range b.subs {
		if s.circle != evt.Circle {
			continue
		}
		select {
		case s.ch <- evt:
		default:
		}
	}
}

// SubscriberCount returns the number of subscribers of a circle.
func (b *Broadcaster) SubscriberCount(circle string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for s := range b.subs {
		if s.circle == circle {
			n++
		}
	}
	return n
}

// ServeSSE streams a circle's events until the client goes away. The first
// event is a connected event carrying the number of listeners.
func (b *Broadcaster) ServeSSE(w http.ResponseWriter, r *http.Request, circle string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	s := b.Subscribe(circle)
	defer b.Unsubscribe(s)

	hello := CircleEvent{
		Seq:       b.seq.Load(),
		Type:      EventConnected,
		Circle:    circle,
		Listeners: b.SubscriberCount(circle),
	}
	if err := writeEvent(w, hello); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-s.ch:
			if !ok {
				return
			}
			if err := writeEvent(w, evt); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, evt CircleEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\ndata: %s\n\n", evt.Seq, data)
	return err
}
