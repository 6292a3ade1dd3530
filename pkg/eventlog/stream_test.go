package eventlog

import (
	"bufio"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"agentd/pkg/proto"
)

type recordingSink struct {
	mu     sync.Mutex
	events []*proto.Event
}

func (s *recordingSink) Write(e *proto.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func TestEmitAssignsSequenceNumbers(t *testing.T) {
	sink := &recordingSink{}
	s := NewStream("trace-1", sink)

	s.Emit(proto.EventStateChange, map[string]any{"from": "INTAKE", "to": "PLANNING"})
	s.Emit(proto.EventPlanGenerated, nil)
	s.Emit(proto.EventTurnFinished, nil)

	if len(sink.events) != 3 {
		t.Fatalf("sink got %d events", len(sink.events))
	}
	for i, e := range sink.events {
		if e.Seq != int64(i+1) {
			t.Errorf("events[%d].Seq = %d, want %d", i, e.Seq, i+1)
		}
		if e.TraceID != "trace-1" {
			t.Errorf("events[%d].TraceID = %q", i, e.TraceID)
		}
	}
	if sink.events[1].Name != proto.EventPlanGenerated {
		t.Errorf("events[1].Name = %s", sink.events[1].Name)
	}
}

func TestSubscribeReceivesEvents(t *testing.T) {
	s := NewStream("trace-2", nil)
	ch := s.Subscribe()

	s.Emit(proto.EventToolCall, map[string]any{"tool": "read_file"})
	s.Close()

	var got []*proto.Event
	for e := range ch {
		got = append(got, e)
	}
	if len(got) != 1 {
		t.Fatalf("subscriber got %d events", len(got))
	}
	if got[0].Name != proto.EventToolCall {
		t.Errorf("Name = %s", got[0].Name)
	}
	if got[0].Data["tool"] != "read_file" {
		t.Errorf("Data = %v", got[0].Data)
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	s := NewStream("trace-3", nil)
	ch := s.Subscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 300; i++ {
			s.Emit(proto.EventToolResult, nil)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a slow subscriber")
	}

	s.Close()
	received := 0
	for range ch {
		received++
	}
	if received == 0 || received > 256 {
		t.Errorf("received = %d, want bounded by subscriber buffer", received)
	}
}

func TestWriterAppendsJSONLines(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()

	s := NewStream("trace-4", w)
	s.Emit(proto.EventApprovalRequest, map[string]any{"approval_id": "ap-1"})
	s.Emit(proto.EventApprovalDecision, map[string]any{"status": "approved"})

	pattern := filepath.Join(dir, "events-*.jsonl")
	matches, err := filepath.Glob(pattern)
	if err != nil || len(matches) != 1 {
		t.Fatalf("glob %s: %v %v", pattern, matches, err)
	}

	f, err := os.Open(matches[0])
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	var lines []*proto.Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		e, err := proto.EventFromJSON(scanner.Bytes())
		if err != nil {
			t.Fatalf("parse line: %v", err)
		}
		lines = append(lines, e)
	}
	if len(lines) != 2 {
		t.Fatalf("read %d lines", len(lines))
	}
	if lines[0].Name != proto.EventApprovalRequest || lines[0].Seq != 1 {
		t.Errorf("line 0 = %+v", lines[0])
	}
	if lines[1].Data["status"] != "approved" {
		t.Errorf("line 1 data = %v", lines[1].Data)
	}
}

func TestWriterCloseIdempotent(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
