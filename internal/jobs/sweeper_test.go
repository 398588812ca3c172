package jobs

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSweeperRemovesExpiredRecords(t *testing.T) {
	manager := newTestManager(t)

	manager.now = func() time.Time { return time.Now().UTC().Add(-2 * time.Hour) }
	if _, err := manager.Create("", "expired"); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	manager.now = time.Now
	if _, err := manager.Create("", "live"); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	sweeper := NewSweeper(manager, time.Hour, 10*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sweeper.Start(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := manager.Get("expired"); errors.Is(err, ErrNotFound) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, err := manager.Get("expired"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired record removed, got %v", err)
	}
	if _, err := manager.Get("live"); err != nil {
		t.Fatalf("live record must survive: %v", err)
	}
}

func TestSweeperDefaultInterval(t *testing.T) {
	manager := newTestManager(t)

	sweeper := NewSweeper(manager, 24*time.Hour, 0, nil)
	if sweeper.interval != 6*time.Hour {
		t.Fatalf("unexpected interval: %v", sweeper.interval)
	}

	sweeper = NewSweeper(manager, 2*time.Minute, 0, nil)
	if sweeper.interval != time.Minute {
		t.Fatalf("expected one-minute floor, got %v", sweeper.interval)
	}
}
