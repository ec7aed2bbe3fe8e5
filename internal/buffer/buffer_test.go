package buffer

import (
	"context"
	"testing"
	"time"

	"github.com/andresmejia3/rollcall/internal/types"
)

func TestTryPushDropsWhenFull(t *testing.T) {
	b := New(3)

	for i := 0; i < 3; i++ {
		if !b.TryPush(types.Frame{Seq: uint64(i)}) {
			t.Fatalf("Push %d rejected while buffer had room", i)
		}
	}

	done := make(chan bool, 1)
	go func() { done <- b.TryPush(types.Frame{Seq: 99}) }()

	select {
	case ok := <-done:
		if ok {
			t.Error("Expected TryPush to return false on a full buffer")
		}
	case <-time.After(time.Second):
		t.Fatal("TryPush blocked on a full buffer")
	}

	stats := b.Stats()
	if stats.Pushed != 3 || stats.Dropped != 1 || stats.Queued != 3 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestFIFOOrder(t *testing.T) {
	b := New(DefaultCapacity)
	for i := 1; i <= 5; i++ {
		b.TryPush(types.Frame{Seq: uint64(i)})
	}

	for want := uint64(1); want <= 5; want++ {
		f, ok := b.TryPop()
		if !ok {
			t.Fatalf("Expected frame %d, buffer empty", want)
		}
		if f.Seq != want {
			t.Errorf("Expected seq %d, got %d", want, f.Seq)
		}
	}

	if _, ok := b.TryPop(); ok {
		t.Error("Expected empty buffer after draining")
	}
}

func TestPushAfterPopHasRoomAgain(t *testing.T) {
	b := New(1)
	if !b.TryPush(types.Frame{Seq: 1}) {
		t.Fatal("First push rejected")
	}
	if b.TryPush(types.Frame{Seq: 2}) {
		t.Fatal("Second push accepted on a full buffer")
	}
	if _, ok := b.TryPop(); !ok {
		t.Fatal("Pop failed")
	}
	if !b.TryPush(types.Frame{Seq: 3}) {
		t.Error("Push rejected after a slot was freed")
	}
}

func TestPopTimeout(t *testing.T) {
	b := New(2)

	start := time.Now()
	_, ok := b.Pop(context.Background(), 30*time.Millisecond)
	if ok {
		t.Fatal("Expected timeout on empty buffer")
	}
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Errorf("Pop returned too early: %v", elapsed)
	}
}

func TestPopWakesOnPush(t *testing.T) {
	b := New(2)

	go func() {
		time.Sleep(10 * time.Millisecond)
		b.TryPush(types.Frame{Seq: 7})
	}()

	f, ok := b.Pop(context.Background(), time.Second)
	if !ok {
		t.Fatal("Expected a frame")
	}
	if f.Seq != 7 {
		t.Errorf("Expected seq 7, got %d", f.Seq)
	}
}

func TestPopCancelled(t *testing.T) {
	b := New(2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, ok := b.Pop(ctx, time.Second); ok {
		t.Error("Expected Pop to give up on a cancelled context")
	}
}

func TestNewDefaultsCapacity(t *testing.T) {
	if got := New(0).Cap(); got != DefaultCapacity {
		t.Errorf("Expected default capacity %d, got %d", DefaultCapacity, got)
	}
}
