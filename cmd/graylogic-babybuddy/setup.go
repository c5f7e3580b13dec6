package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-babybuddy/internal/coordinator"
	"github.com/nerrad567/gray-logic-babybuddy/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-babybuddy/internal/infrastructure/logging"
)

// Entry setup retry delays. ErrNotReady is retried with doubling delays.
const (
	setupInitialDelay = 10 * time.Second
	setupMaxDelay     = 5 * time.Minute

	// setupTimeout bounds one connect + first pass attempt.
	setupTimeout = 60 * time.Second
)

// entryHost is the subset of *integration.Host used to set up entries.
type entryHost interface {
	SetupEntry(ctx context.Context, entry config.BabyBuddyEntry) error
}

// entrySetup sets up every configured entry in the background.
//
// An entry whose server is unreachable (coordinator.ErrNotReady) is retried
// until it succeeds or ctx is cancelled. Authorization failures and other
// errors are logged and the entry is left unloaded.
type entrySetup struct {
	host         entryHost
	log          *logging.Logger
	initialDelay time.Duration
	maxDelay     time.Duration
	wg           sync.WaitGroup
}

func newEntrySetup(host entryHost, log *logging.Logger) *entrySetup {
	return &entrySetup{
		host:         host,
		log:          log,
		initialDelay: setupInitialDelay,
		maxDelay:     setupMaxDelay,
	}
}

// Start launches one setup goroutine per entry.
func (s *entrySetup) Start(ctx context.Context, entries []config.BabyBuddyEntry) {
	for _, entry := range entries {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.setup(ctx, entry)
		}()
	}
}

// Wait blocks until every setup goroutine has returned.
func (s *entrySetup) Wait() {
	s.wg.Wait()
}

func (s *entrySetup) setup(ctx context.Context, entry config.BabyBuddyEntry) {
	delay := s.initialDelay

	for attempt := 1; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, setupTimeout)
		err := s.host.SetupEntry(attemptCtx, entry)
		cancel()

		switch {
		case err == nil:
			return
		case errors.Is(err, coordinator.ErrAuthFailed):
			s.log.Error("Baby Buddy entry rejected the API key", "entry", entry.ID, "error", err)
			return
		case !errors.Is(err, coordinator.ErrNotReady):
			s.log.Error("Baby Buddy entry setup failed", "entry", entry.ID, "error", err)
			return
		}

		s.log.Warn("Baby Buddy server not ready, retrying",
			"entry", entry.ID,
			"attempt", attempt,
			"retry_in", delay.String(),
			"error", err,
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay = min(delay*2, s.maxDelay)
	}
}
