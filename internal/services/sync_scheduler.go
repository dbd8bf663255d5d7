package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tesoro/internal/storage"
)

// SchedulerStore is the repository surface the scheduler needs.
type SchedulerStore interface {
	ListPendingSync(ctx context.Context, limit int) ([]storage.PendingSyncEntry, error)
}

// SyncSchedulerConfig holds scheduler configuration.
type SyncSchedulerConfig struct {
	// PollInterval is how often to scan for unsynced rows.
	PollInterval time.Duration

	// BatchSize is the max rows to enqueue per scan.
	BatchSize int
}

func DefaultSyncSchedulerConfig() SyncSchedulerConfig {
	return SyncSchedulerConfig{
		PollInterval: 30 * time.Second,
		BatchSize:    10,
	}
}

// SyncScheduler periodically re-enqueues ledger rows that are still
// pending export. It backstops the inline publish: rows whose message
// was lost (broker down, crash between commit and publish) get another
// chance on every tick.
type SyncScheduler struct {
	store     SchedulerStore
	publisher SyncPublisher
	config    SyncSchedulerConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSyncScheduler(store SchedulerStore, publisher SyncPublisher, config SyncSchedulerConfig) *SyncScheduler {
	if config.PollInterval <= 0 {
		config.PollInterval = 30 * time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 10
	}
	return &SyncScheduler{
		store:     store,
		publisher: publisher,
		config:    config,
	}
}

// Start begins the scan loop. Returns an error if already running.
func (s *SyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("sync scheduler is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.runLoop(ctx)

	slog.InfoContext(ctx, "Sync scheduler started",
		"poll_interval", s.config.PollInterval,
		"batch_size", s.config.BatchSize)
	return nil
}

// Stop waits for the loop to finish or the context to expire.
func (s *SyncScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	close(s.stopCh)

	select {
	case <-s.doneCh:
		slog.InfoContext(ctx, "Sync scheduler stopped")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Sync scheduler stop timed out")
		return ctx.Err()
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return nil
}

func (s *SyncScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *SyncScheduler) runLoop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	// catch up immediately on startup
	s.publishPending(ctx)

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.publishPending(ctx)
		}
	}
}

func (s *SyncScheduler) publishPending(ctx context.Context) {
	pending, err := s.store.ListPendingSync(ctx, s.config.BatchSize)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to list pending sync rows", "error", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	slog.DebugContext(ctx, "Re-enqueueing pending rows", "count", len(pending))
	for _, entry := range pending {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if err := s.publisher.PublishEntrySync(ctx, entry.ID, entry.Version); err != nil {
			slog.WarnContext(ctx, "Failed to enqueue pending row",
				"id", entry.ID, "error", err)
			// the broker is probably down; the next tick retries the lot
			return
		}
	}
}
