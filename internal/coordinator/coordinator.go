package coordinator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-babybuddy/internal/babybuddy"
	"github.com/nerrad567/gray-logic-babybuddy/internal/device"
)

// DefaultInterval is the polling interval when none is configured.
const DefaultInterval = 60 * time.Second

// API is the subset of *babybuddy.Client used for polling.
type API interface {
	Connect(ctx context.Context) error
	Children(ctx context.Context) (*babybuddy.ChildList, error)
	Latest(ctx context.Context, endpoint string, childID int) (babybuddy.Record, error)
}

// DeviceRegistry is the subset of *device.Registry used to mirror children
// as devices.
type DeviceRegistry interface {
	EnsureDevice(ctx context.Context, entryID, identifier, name string) (*device.Device, bool, error)
	ListEntryDevices(ctx context.Context, entryID string) ([]device.Device, error)
	DeleteDevice(ctx context.Context, id string) error
}

// Logger is the logging interface used by the coordinator.
// Compatible with *logging.Logger and *slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Listener receives every snapshot installed by a successful pass.
// Listeners run on the refresh goroutine and must not mutate the snapshot.
type Listener func(*Snapshot)

// State is the coordinator lifecycle state.
type State int32

const (
	// StateUninitialized is the state before Setup has succeeded.
	StateUninitialized State = iota
	// StatePolling is the steady state.
	StatePolling
	// StateUnauthenticated is entered when the server rejects the API key.
	// Polling is suspended until Setup succeeds again.
	StateUnauthenticated
)

// String returns the state name used in logs and the API.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StatePolling:
		return "polling"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// Options configures a coordinator.
type Options struct {
	// EntryID names the configured server; devices are registered under it.
	EntryID string

	// Interval between passes. Default: DefaultInterval.
	Interval time.Duration

	// PruneRemovedChildren recomputes the known child ids from every
	// children list. When false the set only grows, so a child deleted on
	// the server keeps its device until restart.
	PruneRemovedChildren bool

	// Endpoints overrides the tracked record types. Default: babybuddy.Endpoints().
	Endpoints []babybuddy.Endpoint

	// Now overrides time.Now for snapshot timestamps.
	Now func() time.Time
}

// Coordinator polls one Baby Buddy server and holds its latest snapshot.
//
// At most one refresh pass is in flight at a time. Within a pass, children
// and endpoints are fetched sequentially, each request bounded by the
// client's own timeout.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Coordinator struct {
	entryID   string
	api       API
	devices   DeviceRegistry
	endpoints []babybuddy.Endpoint
	prune     bool
	now       func() time.Time

	// refreshMu serialises passes.
	refreshMu sync.Mutex

	snapshot atomic.Pointer[Snapshot]
	state    atomic.Int32
	interval atomic.Int64

	mu          sync.RWMutex
	known       map[int]struct{}
	listeners   []Listener
	lastErr     error
	lastSuccess time.Time

	requests        chan struct{}
	intervalChanged chan struct{}

	// Shutdown coordination (stopOnce prevents double-close panics)
	cancel   context.CancelFunc
	done     chan struct{}
	wg       sync.WaitGroup
	started  atomic.Bool
	stopOnce sync.Once

	logger Logger
}

// New creates a coordinator. Call Setup before Refresh or Start.
//
// Parameters:
//   - api: Baby Buddy client for this entry
//   - devices: registry mirroring children as devices (may be nil)
//   - opts: entry id, interval and pruning behaviour
//
// Returns:
//   - *Coordinator: in StateUninitialized
func New(api API, devices DeviceRegistry, opts Options) *Coordinator {
	endpoints := opts.Endpoints
	if endpoints == nil {
		endpoints = babybuddy.Endpoints()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	c := &Coordinator{
		entryID:         opts.EntryID,
		api:             api,
		devices:         devices,
		endpoints:       slices.Clone(endpoints),
		prune:           opts.PruneRemovedChildren,
		now:             now,
		known:           make(map[int]struct{}),
		requests:        make(chan struct{}, 1),
		intervalChanged: make(chan struct{}, 1),
		done:            make(chan struct{}),
		logger:          noopLogger{},
	}
	c.interval.Store(int64(interval))
	return c
}

// SetLogger sets the logger. Passing nil restores the no-op logger.
func (c *Coordinator) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.logger = logger
}

// EntryID returns the configured entry id.
func (c *Coordinator) EntryID() string {
	return c.entryID
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Setup connects to the server and moves the coordinator to StatePolling.
// It may be called again to re-authenticate after ErrAuthFailed.
//
// Returns:
//   - error: ErrAuthFailed when the key is rejected, ErrNotReady otherwise
func (c *Coordinator) Setup(ctx context.Context) error {
	if err := c.api.Connect(ctx); err != nil {
		if errors.Is(err, babybuddy.ErrAuthorization) {
			c.state.Store(int32(StateUnauthenticated))
			return fmt.Errorf("%w: %w", ErrAuthFailed, err)
		}
		return fmt.Errorf("%w: %w", ErrNotReady, err)
	}
	c.state.Store(int32(StatePolling))
	c.logger.Info("coordinator ready", "entry", c.entryID)
	return nil
}

// Refresh runs one pass and returns a copy of the installed snapshot.
//
// A call made while another pass is running waits for it and then runs its
// own pass, unless that pass lost authorization.
//
// Returns:
//   - *Snapshot: copy of the new snapshot
//   - error: ErrNotSetUp, ErrAuthFailed, ErrNoChildren or ErrUpdateFailed.
//     On error the previous snapshot stays installed.
func (c *Coordinator) Refresh(ctx context.Context) (*Snapshot, error) {
	// The state is read under refreshMu so a call queued behind a pass that
	// got a 401/403 sees the unauthenticated state.
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	switch c.State() {
	case StateUninitialized:
		return nil, ErrNotSetUp
	case StateUnauthenticated:
		return nil, fmt.Errorf("%w: re-run setup with a valid API key", ErrAuthFailed)
	}

	snap, err := c.refresh(ctx)

	c.mu.Lock()
	c.lastErr = err
	if err == nil {
		c.lastSuccess = snap.FetchedAt
	}
	listeners := slices.Clone(c.listeners)
	c.mu.Unlock()

	if err != nil {
		return nil, err
	}

	for _, l := range listeners {
		l(snap)
	}
	return snap.Clone(), nil
}

func (c *Coordinator) refresh(ctx context.Context) (*Snapshot, error) {
	list, err := c.api.Children(ctx)
	if err != nil {
		if babybuddy.IsAuthFailure(err) {
			c.state.Store(int32(StateUnauthenticated))
			c.logger.Error("authentication rejected, polling suspended", "entry", c.entryID)
			return nil, fmt.Errorf("%w: %w", ErrAuthFailed, err)
		}
		return nil, fmt.Errorf("%w: fetching children: %w", ErrUpdateFailed, err)
	}
	if list.Count == 0 {
		return nil, ErrNoChildren
	}

	c.mu.Lock()
	if c.prune {
		c.known = make(map[int]struct{}, len(list.Results))
	}
	c.mu.Unlock()

	snap := &Snapshot{
		EntryID:  c.entryID,
		Children: slices.Clone(list.Results),
		Records:  make(map[int]map[string]babybuddy.Record, len(list.Results)),
	}

	for _, child := range list.Results {
		c.mu.Lock()
		c.known[child.ID] = struct{}{}
		c.mu.Unlock()

		records := make(map[string]babybuddy.Record, len(c.endpoints))
		snap.Records[child.ID] = records

		for _, ep := range c.endpoints {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrUpdateFailed, err)
			}

			rec, err := c.api.Latest(ctx, ep.Key, child.ID)
			if err != nil {
				var se *babybuddy.StatusError
				if errors.As(err, &se) {
					c.logger.Debug(fmt.Sprintf("No %s found for %s %s. Skipping", ep.Key, child.FirstName, child.LastName),
						"entry", c.entryID, "status", se.StatusCode)
				} else {
					c.logger.Error("fetching latest record failed",
						"entry", c.entryID, "endpoint", ep.Key, "child", child.ID, "error", err)
				}
				continue
			}
			records[ep.Key] = rec
		}
	}

	snap.FetchedAt = c.now()
	c.snapshot.Store(snap)

	c.syncDevices(ctx, snap)
	return snap, nil
}

// syncDevices registers a device per child, then removes this entry's
// devices whose child id is not known. Failures are logged; the pass
// itself has already succeeded.
func (c *Coordinator) syncDevices(ctx context.Context, snap *Snapshot) {
	if c.devices == nil {
		return
	}

	for _, child := range snap.Children {
		if _, created, err := c.devices.EnsureDevice(ctx, c.entryID, strconv.Itoa(child.ID), child.Name()); err != nil {
			c.logger.Warn("registering child device failed", "entry", c.entryID, "child", child.ID, "error", err)
		} else if created {
			c.logger.Info("child device registered", "entry", c.entryID, "child", child.ID)
		}
	}

	removed, err := c.RemoveDeletedChildren(ctx)
	if err != nil {
		c.logger.Warn("reconciling child devices failed", "entry", c.entryID, "error", err)
	}
	if removed > 0 {
		c.logger.Info("removed devices of unknown children", "entry", c.entryID, "count", removed)
	}
}

// RemoveDeletedChildren deletes every device of this entry whose identifier
// is not in the known child ids. A device whose child is known is kept even
// when that child has no records.
//
// Returns:
//   - int: number of devices removed
//   - error: the first listing or deletion failure
func (c *Coordinator) RemoveDeletedChildren(ctx context.Context) (int, error) {
	if c.devices == nil {
		return 0, nil
	}

	devices, err := c.devices.ListEntryDevices(ctx, c.entryID)
	if err != nil {
		return 0, fmt.Errorf("listing devices: %w", err)
	}

	c.mu.RLock()
	var stale []device.Device
	for _, d := range devices {
		id, convErr := strconv.Atoi(d.Identifier)
		if _, ok := c.known[id]; convErr != nil || !ok {
			stale = append(stale, d)
		}
	}
	c.mu.RUnlock()

	removed := 0
	var firstErr error
	for _, d := range stale {
		if err := c.devices.DeleteDevice(ctx, d.ID); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("deleting device %s: %w", d.ID, err)
			}
			continue
		}
		removed++
	}
	return removed, firstErr
}

// Snapshot returns a copy of the installed snapshot, or nil before the
// first successful pass.
func (c *Coordinator) Snapshot() *Snapshot {
	return c.snapshot.Load().Clone()
}

// KnownChildIDs returns the known child ids in ascending order.
func (c *Coordinator) KnownChildIDs() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]int, 0, len(c.known))
	for id := range c.known {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// LastError returns the error of the most recent pass, nil after a success.
func (c *Coordinator) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// AddListener registers fn to receive every new snapshot.
func (c *Coordinator) AddListener(fn Listener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// UpdateInterval returns the current polling interval.
func (c *Coordinator) UpdateInterval() time.Duration {
	return time.Duration(c.interval.Load())
}

// SetUpdateInterval changes the polling interval. The running loop rearms
// its timer with the new value. Non-positive values are ignored.
func (c *Coordinator) SetUpdateInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	c.interval.Store(int64(d))
	select {
	case c.intervalChanged <- struct{}{}:
	default:
	}
}

// RequestRefresh asks the loop for a pass as soon as possible. Requests
// made while one is pending are coalesced.
func (c *Coordinator) RequestRefresh() {
	select {
	case c.requests <- struct{}{}:
	default:
	}
}

// Status is a point-in-time summary for health reporting and the API.
type Status struct {
	EntryID     string    `json:"entry_id"`
	State       string    `json:"state"`
	Interval    string    `json:"interval"`
	Children    int       `json:"children"`
	LastError   string    `json:"last_error,omitempty"`
	LastSuccess time.Time `json:"last_success,omitzero"`
}

// Status returns the coordinator's current status.
func (c *Coordinator) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := Status{
		EntryID:     c.entryID,
		State:       c.State().String(),
		Interval:    c.UpdateInterval().String(),
		LastSuccess: c.lastSuccess,
	}
	if snap := c.snapshot.Load(); snap != nil {
		st.Children = len(snap.Children)
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}

// Start runs the polling loop until ctx is cancelled or Stop is called.
// The first pass runs after one interval; callers normally Refresh once
// themselves right after Setup. Calling Start twice has no effect.
//
// Parameters:
//   - ctx: Context for cancellation (in-flight requests are aborted on Stop)
func (c *Coordinator) Start(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.run(ctx)
}

// Stop ends the polling loop and waits for an in-flight pass to return.
// Safe to call multiple times (uses sync.Once).
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		if c.cancel != nil {
			c.cancel()
		}
		c.wg.Wait()
	})
}

func (c *Coordinator) run(ctx context.Context) {
	defer c.wg.Done()

	timer := time.NewTimer(c.UpdateInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-c.intervalChanged:
			timer.Reset(c.UpdateInterval())
			continue
		case <-timer.C:
		case <-c.requests:
		}

		c.poll(ctx)
		timer.Reset(c.UpdateInterval())
	}
}

// poll runs one scheduled pass and logs its outcome.
func (c *Coordinator) poll(ctx context.Context) {
	if c.State() != StatePolling {
		c.logger.Debug("skipping pass", "entry", c.entryID, "state", c.State().String())
		return
	}

	_, err := c.Refresh(ctx)
	switch {
	case err == nil:
	case ctx.Err() != nil:
	case errors.Is(err, ErrNoChildren):
		c.logger.Warn(NoChildrenMessage, "entry", c.entryID)
	default:
		c.logger.Error("refresh failed", "entry", c.entryID, "error", err)
	}
}
