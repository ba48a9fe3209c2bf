package channel

import (
	"testing"
	"time"
)

func fillWithMessages(a *Adapter) {
	for i := 0; i < cap(a.events)+8; i++ {
		a.emit(Event{Type: EventMessage, From: "628111", Body: "x"})
	}
}

func TestEmitDropsMessagesWhenBufferFull(t *testing.T) {
	a := NewAdapter("tenant-1", "")
	fillWithMessages(a)

	if len(a.events) != cap(a.events) {
		t.Errorf("buffered %d events, want %d", len(a.events), cap(a.events))
	}
}

func TestCloseDeliveredThroughFullBuffer(t *testing.T) {
	a := NewAdapter("tenant-1", "")

	// A stalled consumer lets messages pile up to the cap. The close
	// event emitted behind them must still reach the consumer.
	fillWithMessages(a)

	delivered := make(chan struct{})
	go func() {
		a.emit(Event{Type: EventClose})
		close(delivered)
	}()

	select {
	case <-delivered:
		t.Fatal("close event completed against a full buffer without a consumer")
	case <-time.After(50 * time.Millisecond):
	}

	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-a.events:
			if ev.Type == EventClose {
				<-delivered
				return
			}
		case <-timeout:
			t.Fatal("close event never delivered")
		}
	}
}

func TestCloseUnblocksPendingLifecycleEmit(t *testing.T) {
	a := NewAdapter("tenant-1", "")
	fillWithMessages(a)

	emitDone := make(chan struct{})
	go func() {
		a.emit(Event{Type: EventOpen, PhoneNumber: "628123"})
		close(emitDone)
	}()
	time.Sleep(20 * time.Millisecond)

	a.Close()

	select {
	case <-emitDone:
	case <-time.After(2 * time.Second):
		t.Fatal("teardown left a lifecycle emit blocked")
	}

	// the event channel ends cleanly for the consumer
	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-a.events:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("event channel never closed")
		}
	}
}

func TestEmitAfterCloseIsNoop(t *testing.T) {
	a := NewAdapter("tenant-1", "")
	a.Close()

	a.emit(Event{Type: EventClose})
	a.emit(Event{Type: EventMessage, From: "628111", Body: "x"})

	if _, ok := <-a.events; ok {
		t.Error("event delivered after teardown")
	}
}
