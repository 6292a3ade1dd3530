package eventlog

import (
	"sync"
	"sync/atomic"
	"time"

	"agentd/pkg/logx"
	"agentd/pkg/proto"
)

// Sink receives events; the JSONL Writer implements it, as do test recorders.
type Sink interface {
	Write(e *proto.Event) error
}

// Stream assigns per-trace sequence numbers, persists events through an
// optional Sink, and fans them out to subscribers. Subscribers that fall
// behind have events dropped rather than blocking the turn.
type Stream struct {
	traceID string
	seq     atomic.Int64
	sink    Sink
	logger  *logx.Logger

	mu   sync.Mutex
	subs []chan *proto.Event
}

// NewStream creates an event stream for one turn trace.
func NewStream(traceID string, sink Sink) *Stream {
	return &Stream{
		traceID: traceID,
		sink:    sink,
		logger:  logx.NewLogger("eventlog"),
	}
}

// TraceID returns the trace id this stream is bound to.
func (s *Stream) TraceID() string {
	return s.traceID
}

// Subscribe returns a channel receiving all subsequent events.
func (s *Stream) Subscribe() <-chan *proto.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan *proto.Event, 256)
	s.subs = append(s.subs, ch)
	return ch
}

// Emit records a new event with the next sequence number.
func (s *Stream) Emit(name proto.EventName, data map[string]any) {
	e := &proto.Event{
		TraceID:   s.traceID,
		Seq:       s.seq.Add(1),
		Name:      name,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	if s.sink != nil {
		if err := s.sink.Write(e); err != nil {
			s.logger.Warn("failed to persist event %s: %v", name, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- e:
		default:
			// Subscriber is not keeping up; drop rather than block the turn.
		}
	}
}

// Close closes all subscriber channels.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		close(ch)
	}
	s.subs = nil
}
