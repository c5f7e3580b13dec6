package integration

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-babybuddy/internal/babybuddy"
	"github.com/nerrad567/gray-logic-babybuddy/internal/coordinator"
	"github.com/nerrad567/gray-logic-babybuddy/internal/infrastructure/config"
)

// Client is the subset of *babybuddy.Client an entry needs.
type Client interface {
	coordinator.API
	Post(ctx context.Context, endpoint string, data url.Values) (babybuddy.Record, error)
	Patch(ctx context.Context, endpoint string, id int, data url.Values) (babybuddy.Record, error)
	Delete(ctx context.Context, endpoint string, id int) error
}

// Logger is the logging interface used by the host.
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

// Entry is one set-up Baby Buddy server.
type Entry struct {
	ID          string
	Client      Client
	Coordinator *coordinator.Coordinator
}

// HostConfig configures a Host.
type HostConfig struct {
	// Devices mirrors children as devices. May be nil.
	Devices coordinator.DeviceRegistry

	// Location is the site timezone for service time fields. Default: UTC.
	Location *time.Location

	// NewClient builds the client for an entry. Default: babybuddy.New.
	NewClient func(config.BabyBuddyEntry) Client

	// Now overrides time.Now.
	Now func() time.Time

	Logger Logger
}

// Host owns the set-up entries and the services they expose.
//
// Services are registered when the first entry is set up and removed when
// the last one is unloaded.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Host struct {
	devices   coordinator.DeviceRegistry
	location  *time.Location
	newClient func(config.BabyBuddyEntry) Client
	now       func() time.Time
	logger    Logger

	services *Services

	mu        sync.RWMutex
	entries   map[string]*Entry
	listeners []coordinator.Listener
}

// NewHost creates a host with no entries.
func NewHost(cfg HostConfig) *Host {
	h := &Host{
		devices:  cfg.Devices,
		location: cfg.Location,
		now:      cfg.Now,
		logger:   cfg.Logger,
		services: NewServices(),
		entries:  make(map[string]*Entry),
	}
	if h.location == nil {
		h.location = time.UTC
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.logger == nil {
		h.logger = noopLogger{}
	}
	h.newClient = cfg.NewClient
	if h.newClient == nil {
		h.newClient = h.defaultClient
	}
	return h
}

func (h *Host) defaultClient(e config.BabyBuddyEntry) Client {
	c := babybuddy.New(babybuddy.Config{
		Host:   e.Host,
		Port:   e.Port,
		APIKey: e.APIKey,
	})
	c.SetLogger(h.logger)
	return c
}

// AddListener attaches fn to every current and future coordinator.
func (h *Host) AddListener(fn coordinator.Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
	for _, e := range h.entries {
		e.Coordinator.AddListener(fn)
	}
}

// SetupEntry connects to a server, runs the first pass and starts polling.
//
// A first pass failing with coordinator.ErrNoChildren does not abort setup;
// the coordinator keeps polling until a child exists.
//
// Parameters:
//   - ctx: bounds the connect and first pass; the polling loop outlives it
//   - entry: server configuration
//
// Returns:
//   - error: ErrEntryExists, coordinator.ErrAuthFailed (terminal) or
//     coordinator.ErrNotReady (retry later)
func (h *Host) SetupEntry(ctx context.Context, entry config.BabyBuddyEntry) error {
	h.mu.RLock()
	_, exists := h.entries[entry.ID]
	h.mu.RUnlock()
	if exists {
		return fmt.Errorf("%w: %s", ErrEntryExists, entry.ID)
	}

	client := h.newClient(entry)
	coord := coordinator.New(client, h.devices, coordinator.Options{
		EntryID:              entry.ID,
		Interval:             entry.GetScanInterval(),
		PruneRemovedChildren: entry.PruneRemovedChildren,
		Now:                  h.now,
	})
	coord.SetLogger(h.logger)

	h.mu.RLock()
	for _, fn := range h.listeners {
		coord.AddListener(fn)
	}
	h.mu.RUnlock()

	if err := coord.Setup(ctx); err != nil {
		return err
	}

	if _, err := coord.Refresh(ctx); err != nil {
		switch {
		case errors.Is(err, coordinator.ErrNoChildren):
			h.logger.Warn(coordinator.NoChildrenMessage, "entry", entry.ID)
		case errors.Is(err, coordinator.ErrAuthFailed):
			return err
		default:
			return fmt.Errorf("%w: first refresh: %w", coordinator.ErrNotReady, err)
		}
	}

	h.mu.Lock()
	if _, exists := h.entries[entry.ID]; exists {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrEntryExists, entry.ID)
	}
	h.entries[entry.ID] = &Entry{ID: entry.ID, Client: client, Coordinator: coord}
	first := len(h.entries) == 1
	h.mu.Unlock()

	if first {
		for _, svc := range DefaultServices() {
			h.services.Register(svc)
		}
		h.logger.Debug("services registered", "services", h.services.Names())
	}

	coord.Start(context.WithoutCancel(ctx))
	h.logger.Info("entry set up", "entry", entry.ID, "interval", entry.GetScanInterval().String())
	return nil
}

// UnloadEntry stops an entry's polling and forgets it. Unloading the last
// entry removes the services.
func (h *Host) UnloadEntry(entryID string) error {
	h.mu.Lock()
	e, ok := h.entries[entryID]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownEntry, entryID)
	}
	delete(h.entries, entryID)
	last := len(h.entries) == 0
	h.mu.Unlock()

	e.Coordinator.Stop()

	if last {
		for _, name := range h.services.Names() {
			h.services.Unregister(name)
		}
		h.logger.Debug("services removed")
	}
	h.logger.Info("entry unloaded", "entry", entryID)
	return nil
}

// OptionsUpdated applies a new scan interval, requests a refresh and returns
// the entry's status after the change.
func (h *Host) OptionsUpdated(entryID string, scanInterval time.Duration) (coordinator.Status, error) {
	e, ok := h.Entry(entryID)
	if !ok {
		return coordinator.Status{}, fmt.Errorf("%w: %s", ErrUnknownEntry, entryID)
	}
	e.Coordinator.SetUpdateInterval(scanInterval)
	e.Coordinator.RequestRefresh()
	h.logger.Info("entry options updated", "entry", entryID, "interval", e.Coordinator.UpdateInterval().String())
	return e.Coordinator.Status(), nil
}

// Entry returns a set-up entry.
func (h *Host) Entry(entryID string) (*Entry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.entries[entryID]
	return e, ok
}

// Coordinator returns the coordinator of a set-up entry.
func (h *Host) Coordinator(entryID string) (*coordinator.Coordinator, bool) {
	e, ok := h.Entry(entryID)
	if !ok {
		return nil, false
	}
	return e.Coordinator, true
}

// Entries returns the set-up entry ids in sorted order.
func (h *Host) Entries() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Sorted(maps.Keys(h.entries))
}

// Statuses returns the status of every entry, ordered by entry id.
func (h *Host) Statuses() []coordinator.Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]coordinator.Status, 0, len(h.entries))
	for _, id := range slices.Sorted(maps.Keys(h.entries)) {
		out = append(out, h.entries[id].Coordinator.Status())
	}
	return out
}

// Services returns the registered service names.
func (h *Host) Services() []string {
	return h.services.Names()
}

// Call validates data against a service schema and invokes it. The optional
// "entry" key selects the target entry; it may be omitted when exactly one
// entry is set up. A successful call requests a refresh of that entry.
//
// Returns:
//   - babybuddy.Record: the record the server created or updated, or nil
//   - error: ErrUnknownService, ErrUnknownEntry, ErrEntryRequired,
//     ErrInvalidCall, ErrNoRecord, or the client error
func (h *Host) Call(ctx context.Context, service string, data map[string]any) (babybuddy.Record, error) {
	svc, ok := h.services.Lookup(service)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, service)
	}

	data = maps.Clone(data)
	entry, err := h.resolveEntry(data)
	if err != nil {
		return nil, err
	}
	delete(data, "entry")

	values, err := svc.Schema.Validate(data, h.now(), h.location)
	if err != nil {
		return nil, err
	}

	rec, err := svc.Handler(ctx, entry, values)
	if err != nil {
		return nil, err
	}

	entry.Coordinator.RequestRefresh()
	h.logger.Debug("service called", "service", service, "entry", entry.ID)
	return rec, nil
}

// EntryFor returns the id of the entry a call with data runs against: the
// named entry, or the only one set up when data names none. It returns ""
// when the entry cannot be resolved.
func (h *Host) EntryFor(data map[string]any) string {
	e, err := h.resolveEntry(data)
	if err != nil {
		return ""
	}
	return e.ID
}

func (h *Host) resolveEntry(data map[string]any) (*Entry, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	raw, named := data["entry"]
	if !named || raw == nil {
		if len(h.entries) != 1 {
			return nil, ErrEntryRequired
		}
		for _, e := range h.entries {
			return e, nil
		}
	}

	id, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("%w: entry must be a string", ErrInvalidCall)
	}
	e, ok := h.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntry, id)
	}
	return e, nil
}

// Close unloads every entry.
func (h *Host) Close() {
	for _, id := range h.Entries() {
		if err := h.UnloadEntry(id); err != nil {
			h.logger.Warn("unloading entry failed", "entry", id, "error", err)
		}
	}
}
