// ABOUTME: Tests for the unbounded outbound frame queue
// ABOUTME: Covers FIFO order, blocking pop and close semantics
package ws

import (
	"testing"
	"time"
)

func TestQueueFIFO(t *testing.T) {
	q := newOutQueue()
	q.push(outFrame{kind: frameKindText, data: []byte("a")})
	q.push(outFrame{kind: frameKindText, data: []byte("b")})

	f, ok := q.pop()
	if !ok || string(f.data) != "a" {
		t.Errorf("expected a, got %s (ok=%v)", f.data, ok)
	}
	f, ok = q.pop()
	if !ok || string(f.data) != "b" {
		t.Errorf("expected b, got %s (ok=%v)", f.data, ok)
	}
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	q := newOutQueue()
	got := make(chan outFrame, 1)
	go func() {
		f, _ := q.pop()
		got <- f
	}()

	time.Sleep(20 * time.Millisecond)
	q.push(outFrame{kind: frameKindPing})

	select {
	case f := <-got:
		if f.kind != frameKindPing {
			t.Errorf("expected ping frame, got kind %d", f.kind)
		}
	case <-time.After(time.Second):
		t.Fatal("pop never unblocked")
	}
}

func TestQueueCloseUnblocksPop(t *testing.T) {
	q := newOutQueue()
	done := make(chan bool, 1)
	go func() {
		_, ok := q.pop()
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.close()

	select {
	case ok := <-done:
		if ok {
			t.Error("pop on closed empty queue should report not-ok")
		}
	case <-time.After(time.Second):
		t.Fatal("pop never unblocked after close")
	}
}

func TestQueuePushAfterClose(t *testing.T) {
	q := newOutQueue()
	q.close()
	if q.push(outFrame{kind: frameKindText}) {
		t.Error("push after close should report failure")
	}
}
