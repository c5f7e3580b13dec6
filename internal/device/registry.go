package device

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry provides child device management with caching and thread safety.
// It wraps a Repository and adds an in-memory cache for fast lookups.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by cache-invalidating operations.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	cache   map[string]*Device // Cached devices by ID
	cacheMu sync.RWMutex       // Protects cache

	// ensureMu serialises EnsureDevice so two callers cannot both create
	// the same (entry, identifier) pair.
	ensureMu sync.Mutex

	logger Logger
}

// NewRegistry creates a new device registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Device),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// RefreshCache reloads all devices from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Device, len(devices))
	for i := range devices {
		r.cache[devices[i].ID] = devices[i].DeepCopy()
	}

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// GetDevice retrieves a device by ID.
// Returns ErrDeviceNotFound if the device does not exist.
// The returned device is a copy; callers can safely modify it.
func (r *Registry) GetDevice(ctx context.Context, id string) (*Device, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()

	if ok {
		return cached.DeepCopy(), nil
	}

	device, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[id] = device.DeepCopy()
	r.cacheMu.Unlock()

	return device, nil
}

// ListDevices retrieves all devices ordered by entry then name.
func (r *Registry) ListDevices(ctx context.Context) ([]Device, error) {
	r.cacheMu.RLock()
	empty := len(r.cache) == 0
	devices := r.collect(func(*Device) bool { return true })
	r.cacheMu.RUnlock()

	if empty {
		return r.repo.List(ctx)
	}
	return devices, nil
}

// ListEntryDevices retrieves the devices of one entry ordered by name.
func (r *Registry) ListEntryDevices(ctx context.Context, entryID string) ([]Device, error) {
	r.cacheMu.RLock()
	empty := len(r.cache) == 0
	devices := r.collect(func(d *Device) bool { return d.EntryID == entryID })
	r.cacheMu.RUnlock()

	if empty {
		return r.repo.ListByEntry(ctx, entryID)
	}
	return devices, nil
}

// collect copies the cached devices matching keep, sorted.
// The caller must hold cacheMu.
func (r *Registry) collect(keep func(*Device) bool) []Device {
	devices := make([]Device, 0, len(r.cache))
	for _, d := range r.cache {
		if keep(d) {
			devices = append(devices, *d.DeepCopy())
		}
	}
	slices.SortFunc(devices, func(a, b Device) int {
		return cmp.Or(
			cmp.Compare(a.EntryID, b.EntryID),
			cmp.Compare(a.Name, b.Name),
			cmp.Compare(a.Identifier, b.Identifier),
		)
	})
	return devices
}

// EnsureDevice registers the device for a child, creating it on first sight
// and renaming it when the child's name has changed.
//
// Parameters:
//   - entryID: the configured server the child belongs to
//   - identifier: the child's id in decimal form
//   - name: the child's display name
//
// Returns:
//   - *Device: a copy of the registered device
//   - bool: true when the device was created by this call
//   - error: ErrInvalidDevice if the inputs fail validation
func (r *Registry) EnsureDevice(ctx context.Context, entryID, identifier, name string) (*Device, bool, error) {
	r.ensureMu.Lock()
	defer r.ensureMu.Unlock()

	existing, err := r.findByIdentifier(ctx, entryID, identifier)
	switch {
	case err == nil:
		if existing.Name == name {
			return existing, false, nil
		}
		existing.Name = name
		if err := ValidateDevice(existing); err != nil {
			return nil, false, err
		}
		if err := r.repo.Update(ctx, existing); err != nil {
			return nil, false, err
		}
		r.store(existing)
		r.logger.Info("device renamed", "id", existing.ID, "entry", entryID, "name", name)
		return existing.DeepCopy(), false, nil

	case errors.Is(err, ErrDeviceNotFound):
		// fall through to create

	default:
		return nil, false, err
	}

	device := &Device{
		ID:           GenerateID(),
		EntryID:      entryID,
		Identifier:   identifier,
		Name:         name,
		Manufacturer: DefaultManufacturer,
		Model:        DefaultModel,
	}
	if err := ValidateDevice(device); err != nil {
		return nil, false, err
	}
	if err := r.repo.Create(ctx, device); err != nil {
		return nil, false, err
	}
	r.store(device)

	r.logger.Info("device created", "id", device.ID, "entry", entryID, "identifier", identifier, "name", name)
	return device.DeepCopy(), true, nil
}

// GetDeviceByIdentifier retrieves the device of a child on one entry.
// Returns ErrDeviceNotFound if the child has no device.
func (r *Registry) GetDeviceByIdentifier(ctx context.Context, entryID, identifier string) (*Device, error) {
	return r.findByIdentifier(ctx, entryID, identifier)
}

func (r *Registry) findByIdentifier(ctx context.Context, entryID, identifier string) (*Device, error) {
	r.cacheMu.RLock()
	for _, d := range r.cache {
		if d.EntryID == entryID && d.Identifier == identifier {
			cp := d.DeepCopy()
			r.cacheMu.RUnlock()
			return cp, nil
		}
	}
	r.cacheMu.RUnlock()

	device, err := r.repo.GetByIdentifier(ctx, entryID, identifier)
	if err != nil {
		return nil, err
	}
	r.store(device)
	return device.DeepCopy(), nil
}

func (r *Registry) store(d *Device) {
	r.cacheMu.Lock()
	r.cache[d.ID] = d.DeepCopy()
	r.cacheMu.Unlock()
}

// DeleteDevice removes a device.
func (r *Registry) DeleteDevice(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Info("device deleted", "id", id)
	return nil
}

// GetDeviceCount returns the number of cached devices.
func (r *Registry) GetDeviceCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

// Stats returns registry statistics for monitoring.
type Stats struct {
	TotalDevices int            `json:"total_devices"`
	ByEntry      map[string]int `json:"by_entry"`
}

// GetStats returns current registry statistics.
func (r *Registry) GetStats() Stats {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	stats := Stats{
		TotalDevices: len(r.cache),
		ByEntry:      make(map[string]int),
	}
	for _, d := range r.cache {
		stats.ByEntry[d.EntryID]++
	}
	return stats
}
