package services

import (
	"context"
	"testing"
	"time"

	"tesoro/internal/storage"
)

type schedulerStoreFake struct {
	pending []storage.PendingSyncEntry
}

func (f *schedulerStoreFake) ListPendingSync(context.Context, int) ([]storage.PendingSyncEntry, error) {
	return f.pending, nil
}

func TestSyncSchedulerLifecycle(t *testing.T) {
	store := &schedulerStoreFake{}
	scheduler := NewSyncScheduler(store, &publisherFake{}, SyncSchedulerConfig{
		PollInterval: time.Hour, // never ticks during the test
		BatchSize:    10,
	})

	ctx := context.Background()
	if scheduler.IsRunning() {
		t.Fatal("scheduler should not be running before Start")
	}

	if err := scheduler.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !scheduler.IsRunning() {
		t.Error("scheduler should be running after Start")
	}
	if err := scheduler.Start(ctx); err == nil {
		t.Error("second Start() should fail")
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := scheduler.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if scheduler.IsRunning() {
		t.Error("scheduler should not be running after Stop")
	}

	// stopping again is a no-op
	if err := scheduler.Stop(stopCtx); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestSyncSchedulerPublishesPendingOnStartup(t *testing.T) {
	store := &schedulerStoreFake{pending: []storage.PendingSyncEntry{
		{ID: 1, Version: 1},
		{ID: 2, Version: 1},
	}}
	pub := &publisherFake{}
	scheduler := NewSyncScheduler(store, pub, SyncSchedulerConfig{
		PollInterval: time.Hour,
		BatchSize:    10,
	})

	ctx := context.Background()
	if err := scheduler.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		scheduler.Stop(stopCtx)
	}()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if pub.count() == 2 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Errorf("published %d messages, want 2", pub.count())
}
