package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestSlidingWindowAllow(t *testing.T) {
	sw := NewSlidingWindow(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !sw.Allow() {
			t.Fatalf("request %d denied below the limit", i+1)
		}
	}
	if sw.Allow() {
		t.Error("request allowed above the limit")
	}
}

func TestSlidingWindowExpiry(t *testing.T) {
	sw := NewSlidingWindow(2, 50*time.Millisecond)

	if !sw.Allow() || !sw.Allow() {
		t.Fatal("initial requests denied")
	}
	if sw.Allow() {
		t.Fatal("request allowed above the limit")
	}

	time.Sleep(60 * time.Millisecond)
	if !sw.Allow() {
		t.Error("request denied after the window expired")
	}
}

func TestSlidingWindowReset(t *testing.T) {
	sw := NewSlidingWindow(1, time.Minute)

	if !sw.Allow() {
		t.Fatal("first request denied")
	}
	if sw.Allow() {
		t.Fatal("second request allowed")
	}

	sw.Reset()
	if !sw.Allow() {
		t.Error("request denied after reset")
	}
}

func TestSlidingWindowWaitBlocks(t *testing.T) {
	sw := NewSlidingWindow(1, 80*time.Millisecond)

	if err := sw.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait failed: %v", err)
	}

	start := time.Now()
	if err := sw.Wait(context.Background()); err != nil {
		t.Fatalf("second Wait failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("second Wait returned after %v, expected it to block for the window", elapsed)
	}
}

func TestSlidingWindowWaitCancellation(t *testing.T) {
	sw := NewSlidingWindow(1, time.Minute)
	if !sw.Allow() {
		t.Fatal("first request denied")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- sw.Wait(ctx)
	}()

	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Wait returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return promptly after cancellation")
	}
}
