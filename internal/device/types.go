package device

import "time"

// Defaults recorded on every child device.
const (
	DefaultManufacturer = "Baby Buddy"
	DefaultModel        = "Child"
)

// Device is the persisted record of one child on one configured server.
// This matches the devices table in migrations/20260301_090000_devices.up.sql.
//
// A device is keyed by (EntryID, Identifier); Identifier is the child's
// numeric id in decimal form.
type Device struct {
	ID         string `json:"id"`
	EntryID    string `json:"entry_id"`
	Identifier string `json:"identifier"`
	Name       string `json:"name"`

	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy returns an independent copy of the device.
// Device has no reference fields, so a value copy suffices.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cp := *d
	return &cp
}
