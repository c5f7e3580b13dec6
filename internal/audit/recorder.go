package audit

import (
	"context"
	"sync"
	"time"
)

// recorderChanSize is the buffer size of the write queue.
// Calls beyond this are dropped so recording never blocks a service call.
const recorderChanSize = 256

// writeTimeout bounds one insert.
const writeTimeout = 5 * time.Second

// Logger is the logging interface used by the recorder.
// Compatible with *logging.Logger and *slog.Logger.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Recorder writes calls to a Repository from a single goroutine.
//
// Thread Safety: Record and List are safe for concurrent use.
type Recorder struct {
	repo   Repository
	logger Logger
	ch     chan *Call

	wg       sync.WaitGroup
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// NewRecorder creates a recorder. Call Start before Record.
func NewRecorder(repo Repository, logger Logger) *Recorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{
		repo:   repo,
		logger: logger,
		ch:     make(chan *Call, recorderChanSize),
	}
}

// Start launches the writer. It runs until ctx is cancelled or Stop is called,
// then writes whatever is still queued.
func (r *Recorder) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.drain(ctx)
	}()
}

// Stop flushes the queue and waits for the writer. Safe to call multiple times.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() {
		if r.cancel != nil {
			r.cancel()
		}
		r.wg.Wait()
	})
}

// Record enqueues a call for writing (best-effort).
// If the queue is full the call is dropped and a warning is logged.
func (r *Recorder) Record(call *Call) {
	if r == nil || call == nil {
		return
	}
	select {
	case r.ch <- call:
	default:
		r.logger.Warn("service call log queue full, dropping entry",
			"service", call.Service,
			"source", call.Source,
		)
	}
}

// List returns recorded calls matching filter.
func (r *Recorder) List(ctx context.Context, filter Filter) (*ListResult, error) {
	return r.repo.List(ctx, filter)
}

func (r *Recorder) drain(ctx context.Context) {
	for {
		select {
		case call := <-r.ch:
			r.write(call)
		case <-ctx.Done():
			for {
				select {
				case call := <-r.ch:
					r.write(call)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(call *Call) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.repo.Create(ctx, call); err != nil {
		r.logger.Error("service call log write failed",
			"service", call.Service,
			"error", err,
		)
	}
}
