package device

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// MockRepository is a test implementation of Repository.
type MockRepository struct {
	mu      sync.Mutex
	devices map[string]*Device
	// For testing error paths
	listErr   error
	createErr error
	updateErr error
	deleteErr error

	creates int
	updates int
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		devices: make(map[string]*Device),
	}
}

func (m *MockRepository) GetByID(_ context.Context, id string) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d, ok := m.devices[id]; ok {
		return d.DeepCopy(), nil
	}
	return nil, ErrDeviceNotFound
}

func (m *MockRepository) GetByIdentifier(_ context.Context, entryID, identifier string) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, d := range m.devices {
		if d.EntryID == entryID && d.Identifier == identifier {
			return d.DeepCopy(), nil
		}
	}
	return nil, ErrDeviceNotFound
}

func (m *MockRepository) List(_ context.Context) ([]Device, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	devices := make([]Device, 0, len(m.devices))
	for _, d := range m.devices {
		devices = append(devices, *d)
	}
	return devices, nil
}

func (m *MockRepository) ListByEntry(_ context.Context, entryID string) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var devices []Device
	for _, d := range m.devices {
		if d.EntryID == entryID {
			devices = append(devices, *d)
		}
	}
	return devices, nil
}

func (m *MockRepository) Create(_ context.Context, device *Device) error {
	if m.createErr != nil {
		return m.createErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.devices[device.ID]; exists {
		return ErrDeviceExists
	}
	m.devices[device.ID] = device.DeepCopy()
	m.creates++
	return nil
}

func (m *MockRepository) Update(_ context.Context, device *Device) error {
	if m.updateErr != nil {
		return m.updateErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.devices[device.ID]; !exists {
		return ErrDeviceNotFound
	}
	m.devices[device.ID] = device.DeepCopy()
	m.updates++
	return nil
}

func (m *MockRepository) Delete(_ context.Context, id string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.devices[id]; !exists {
		return ErrDeviceNotFound
	}
	delete(m.devices, id)
	return nil
}

// ============================================================================
// EnsureDevice
// ============================================================================

func TestRegistry_EnsureDevice_Creates(t *testing.T) {
	repo := NewMockRepository()
	reg := NewRegistry(repo)
	ctx := context.Background()

	dev, created, err := reg.EnsureDevice(ctx, "home", "1", "Alice Smith")
	if err != nil {
		t.Fatalf("EnsureDevice() error = %v", err)
	}
	if !created {
		t.Error("created = false on first sight")
	}
	if dev.ID == "" || dev.Manufacturer != DefaultManufacturer || dev.Model != DefaultModel {
		t.Errorf("device = %+v", dev)
	}
	if reg.GetDeviceCount() != 1 {
		t.Errorf("GetDeviceCount() = %d, want 1", reg.GetDeviceCount())
	}
}

func TestRegistry_EnsureDevice_Idempotent(t *testing.T) {
	repo := NewMockRepository()
	reg := NewRegistry(repo)
	ctx := context.Background()

	first, _, err := reg.EnsureDevice(ctx, "home", "1", "Alice")
	if err != nil {
		t.Fatalf("EnsureDevice() error = %v", err)
	}
	second, created, err := reg.EnsureDevice(ctx, "home", "1", "Alice")
	if err != nil {
		t.Fatalf("EnsureDevice() error = %v", err)
	}
	if created || second.ID != first.ID {
		t.Errorf("second call created=%v id=%q, want reuse of %q", created, second.ID, first.ID)
	}
	if repo.creates != 1 || repo.updates != 0 {
		t.Errorf("repo creates=%d updates=%d, want 1/0", repo.creates, repo.updates)
	}
}

func TestRegistry_EnsureDevice_Renames(t *testing.T) {
	repo := NewMockRepository()
	reg := NewRegistry(repo)
	ctx := context.Background()

	first, _, _ := reg.EnsureDevice(ctx, "home", "1", "Alice")
	renamed, created, err := reg.EnsureDevice(ctx, "home", "1", "Alice Smith")
	if err != nil {
		t.Fatalf("EnsureDevice() error = %v", err)
	}
	if created || renamed.ID != first.ID || renamed.Name != "Alice Smith" {
		t.Errorf("renamed = %+v created=%v", renamed, created)
	}

	stored, _ := repo.GetByID(ctx, first.ID)
	if stored.Name != "Alice Smith" {
		t.Errorf("repo name = %q, want renamed", stored.Name)
	}
}

func TestRegistry_EnsureDevice_FindsUncached(t *testing.T) {
	repo := NewMockRepository()
	repo.devices["existing"] = testDevice("existing", "home", "4", "Dana")
	reg := NewRegistry(repo)

	dev, created, err := reg.EnsureDevice(context.Background(), "home", "4", "Dana")
	if err != nil {
		t.Fatalf("EnsureDevice() error = %v", err)
	}
	if created || dev.ID != "existing" {
		t.Errorf("EnsureDevice() = %+v created=%v, want existing row", dev, created)
	}
}

func TestRegistry_EnsureDevice_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid name", func(t *testing.T) {
		reg := NewRegistry(NewMockRepository())
		if _, _, err := reg.EnsureDevice(ctx, "home", "1", ""); !errors.Is(err, ErrInvalidDevice) {
			t.Errorf("error = %v, want ErrInvalidDevice", err)
		}
	})

	t.Run("create failure", func(t *testing.T) {
		repo := NewMockRepository()
		repo.createErr = errors.New("disk full")
		reg := NewRegistry(repo)
		if _, _, err := reg.EnsureDevice(ctx, "home", "1", "Alice"); err == nil {
			t.Fatal("expected error")
		}
		if reg.GetDeviceCount() != 0 {
			t.Error("failed create must not be cached")
		}
	})

	t.Run("update failure keeps old name", func(t *testing.T) {
		repo := NewMockRepository()
		reg := NewRegistry(repo)
		dev, _, _ := reg.EnsureDevice(ctx, "home", "1", "Alice")
		repo.updateErr = errors.New("locked")

		if _, _, err := reg.EnsureDevice(ctx, "home", "1", "Alicia"); err == nil {
			t.Fatal("expected error")
		}
		got, _ := reg.GetDevice(ctx, dev.ID)
		if got.Name != "Alice" {
			t.Errorf("cached name = %q, want unchanged", got.Name)
		}
	})
}

func TestRegistry_EnsureDevice_Concurrent(t *testing.T) {
	repo := NewMockRepository()
	reg := NewRegistry(repo)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := reg.EnsureDevice(ctx, "home", "1", "Alice"); err != nil {
				t.Errorf("EnsureDevice() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if repo.creates != 1 {
		t.Errorf("creates = %d, want 1", repo.creates)
	}
}

// ============================================================================
// Queries and cache
// ============================================================================

func TestRegistry_ListEntryDevices(t *testing.T) {
	reg := NewRegistry(NewMockRepository())
	ctx := context.Background()

	reg.EnsureDevice(ctx, "home", "2", "Bob")   //nolint:errcheck // setup
	reg.EnsureDevice(ctx, "home", "1", "Alice") //nolint:errcheck // setup
	reg.EnsureDevice(ctx, "cabin", "1", "Zed")  //nolint:errcheck // setup

	home, err := reg.ListEntryDevices(ctx, "home")
	if err != nil {
		t.Fatalf("ListEntryDevices() error = %v", err)
	}
	if len(home) != 2 || home[0].Name != "Alice" || home[1].Name != "Bob" {
		t.Errorf("ListEntryDevices(home) = %+v", home)
	}

	all, _ := reg.ListDevices(ctx)
	if len(all) != 3 || all[0].EntryID != "cabin" {
		t.Errorf("ListDevices() = %+v", all)
	}

	home[0].Name = "mutated"
	again, _ := reg.ListEntryDevices(ctx, "home")
	if again[0].Name != "Alice" {
		t.Error("ListEntryDevices returned cache references")
	}
}

func TestRegistry_ListFallsBackToRepository(t *testing.T) {
	repo := NewMockRepository()
	repo.devices["x"] = testDevice("x", "home", "1", "Alice")
	reg := NewRegistry(repo)

	devices, err := reg.ListEntryDevices(context.Background(), "home")
	if err != nil || len(devices) != 1 {
		t.Errorf("ListEntryDevices() = (%v, %v), want repository row", devices, err)
	}
}

func TestRegistry_RefreshCache(t *testing.T) {
	repo := NewMockRepository()
	repo.devices["a"] = testDevice("a", "home", "1", "Alice")
	repo.devices["b"] = testDevice("b", "cabin", "1", "Bob")
	reg := NewRegistry(repo)

	if err := reg.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}
	stats := reg.GetStats()
	if stats.TotalDevices != 2 || stats.ByEntry["home"] != 1 || stats.ByEntry["cabin"] != 1 {
		t.Errorf("GetStats() = %+v", stats)
	}

	repo.listErr = errors.New("boom")
	if err := reg.RefreshCache(context.Background()); err == nil {
		t.Error("RefreshCache() should surface list errors")
	}
}

func TestRegistry_DeleteDevice(t *testing.T) {
	repo := NewMockRepository()
	reg := NewRegistry(repo)
	ctx := context.Background()

	dev, _, _ := reg.EnsureDevice(ctx, "home", "1", "Alice")
	if err := reg.DeleteDevice(ctx, dev.ID); err != nil {
		t.Fatalf("DeleteDevice() error = %v", err)
	}
	if _, err := reg.GetDevice(ctx, dev.ID); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetDevice() after delete error = %v, want ErrDeviceNotFound", err)
	}
	if err := reg.DeleteDevice(ctx, dev.ID); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("second DeleteDevice() error = %v, want ErrDeviceNotFound", err)
	}

	// A deleted child seen again gets a fresh device.
	again, created, err := reg.EnsureDevice(ctx, "home", "1", "Alice")
	if err != nil || !created || again.ID == dev.ID {
		t.Errorf("EnsureDevice() after delete = (%+v, %v, %v)", again, created, err)
	}
}

func TestRegistry_SQLiteRoundTrip(t *testing.T) {
	repo := setupTestRepo(t)
	reg := NewRegistry(repo)
	ctx := context.Background()

	dev, created, err := reg.EnsureDevice(ctx, "home", "1", "Alice")
	if err != nil || !created {
		t.Fatalf("EnsureDevice() = (%v, %v)", created, err)
	}

	fresh := NewRegistry(repo)
	if err := fresh.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}
	got, err := fresh.GetDevice(ctx, dev.ID)
	if err != nil || got.Identifier != "1" || got.EntryID != "home" {
		t.Errorf("GetDevice() = (%+v, %v)", got, err)
	}
}

func TestRegistry_GetDeviceByIdentifier(t *testing.T) {
	reg := NewRegistry(NewMockRepository())
	ctx := context.Background()

	dev, _, _ := reg.EnsureDevice(ctx, "home", "3", "Cara")
	got, err := reg.GetDeviceByIdentifier(ctx, "home", "3")
	if err != nil || got.ID != dev.ID {
		t.Errorf("GetDeviceByIdentifier() = (%+v, %v), want %s", got, err, dev.ID)
	}
	if _, err := reg.GetDeviceByIdentifier(ctx, "cabin", "3"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetDeviceByIdentifier(cabin) error = %v, want ErrDeviceNotFound", err)
	}
}
