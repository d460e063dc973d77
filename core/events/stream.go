package events

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"
)

const streamHistoryLimit = 2048

// StreamUpdate is a published event tagged with its position in the stream.
type StreamUpdate struct {
	Sequence   uint64            `json:"sequence"`
	Cursor     string            `json:"cursor"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Timestamp  int64             `json:"timestamp"`
}

func cloneUpdate(update StreamUpdate) StreamUpdate {
	cloned := update
	if len(update.Attributes) > 0 {
		cloned.Attributes = make(map[string]string, len(update.Attributes))
		for k, v := range update.Attributes {
			cloned.Attributes[k] = v
		}
	}
	return cloned
}

// Stream is an Emitter that fans events out to live subscribers and keeps a
// bounded history so reconnecting clients can resume from a cursor.
type Stream struct {
	mu      sync.Mutex
	seq     uint64
	nextID  uint64
	subs    map[uint64]chan StreamUpdate
	history []StreamUpdate
	nowFn   func() int64
}

// NewStream creates an empty stream.
func NewStream() *Stream {
	return &Stream{
		subs:  make(map[uint64]chan StreamUpdate),
		nowFn: func() int64 { return time.Now().Unix() },
	}
}

// Emit implements the Emitter interface. Slow subscribers miss updates
// rather than blocking the publisher.
func (s *Stream) Emit(evt Event) {
	if s == nil || evt == nil {
		return
	}
	update := StreamUpdate{Type: evt.EventType()}
	if payload, ok := ToPayload(evt); ok {
		update.Attributes = payload.Attributes
	}

	s.mu.Lock()
	s.seq++
	update.Sequence = s.seq
	update.Cursor = strconv.FormatUint(update.Sequence, 10)
	update.Timestamp = s.nowFn()
	stored := cloneUpdate(update)
	s.history = append(s.history, stored)
	if len(s.history) > streamHistoryLimit {
		excess := len(s.history) - streamHistoryLimit
		trimmed := make([]StreamUpdate, streamHistoryLimit)
		copy(trimmed, s.history[excess:])
		s.history = trimmed
	}
	// Sends stay under the lock: cancel closes channels while holding it.
	for _, ch := range s.subs {
		select {
		case ch <- cloneUpdate(update):
		default:
		}
	}
	s.mu.Unlock()
}

// Subscribe registers a subscriber for updates after cursor. It returns the
// live channel, a cancel function and the retained backlog. The subscription
// is cancelled automatically when ctx is done.
func (s *Stream) Subscribe(ctx context.Context, cursor string) (<-chan StreamUpdate, func(), []StreamUpdate) {
	updates := make(chan StreamUpdate, 32)

	var since uint64
	if trimmed := strings.TrimSpace(cursor); trimmed != "" {
		if parsed, err := strconv.ParseUint(trimmed, 10, 64); err == nil {
			since = parsed
		}
	}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = updates
	history := make([]StreamUpdate, len(s.history))
	copy(history, s.history)
	s.mu.Unlock()

	backlog := make([]StreamUpdate, 0, len(history))
	for _, entry := range history {
		if entry.Sequence > since {
			backlog = append(backlog, cloneUpdate(entry))
		}
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			if sub, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(sub)
			}
			s.mu.Unlock()
		})
	}

	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}
	return updates, cancel, backlog
}

// Subscribers returns the number of live subscriptions.
func (s *Stream) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
