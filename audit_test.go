package authcore

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestAuditDispatcher_DeliversAndDrains(t *testing.T) {
	sink := NewChannelSink(16)
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 16}, sink)

	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: "login"})
	}
	d.Close()

	received := 0
	for {
		select {
		case <-sink.Events():
			received++
		default:
			if received != 5 {
				t.Fatalf("received %d events, want 5", received)
			}
			return
		}
	}
}

// gateSink blocks every Emit until the gate opens, to saturate the
// dispatcher buffer.
type gateSink struct {
	open chan struct{}
}

func (s gateSink) Emit(context.Context, AuditEvent) {
	<-s.open
}

func TestAuditDispatcher_DropIfFullCounts(t *testing.T) {
	sink := gateSink{open: make(chan struct{})}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	deadline := time.Now().Add(2 * time.Second)
	for d.Dropped() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no events dropped despite a saturated buffer")
		}
		d.Emit(context.Background(), AuditEvent{EventType: "login"})
	}

	close(sink.open)
	d.Close()
}

func TestAuditDispatcher_DisabledIsNoOp(t *testing.T) {
	d := newAuditDispatcher(AuditConfig{Enabled: false}, NewChannelSink(1))
	if d != nil {
		t.Fatal("disabled audit must yield a nil dispatcher")
	}
	// nil receiver is safe.
	d.Emit(context.Background(), AuditEvent{})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher dropped count must be zero")
	}
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), AuditEvent{EventType: "login", Outcome: "success", Success: true})
	sink.Emit(context.Background(), AuditEvent{EventType: "logout", Success: true})

	scanner := bufio.NewScanner(&buf)
	var events []AuditEvent
	for scanner.Scan() {
		var event AuditEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			t.Fatalf("bad line %q: %v", scanner.Text(), err)
		}
		events = append(events, event)
	}
	if len(events) != 2 || events[0].EventType != "login" || events[1].EventType != "logout" {
		t.Fatalf("events = %+v", events)
	}
}
