package device

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// MaxNameLength is the longest device name accepted.
const MaxNameLength = 100

// ValidateDevice checks that a device can be persisted.
//
// Returns:
//   - error: wraps ErrInvalidDevice together with the specific cause
func ValidateDevice(d *Device) error {
	if d == nil {
		return fmt.Errorf("%w: nil device", ErrInvalidDevice)
	}
	if err := ValidateName(d.Name); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDevice, err)
	}
	if strings.TrimSpace(d.EntryID) == "" {
		return fmt.Errorf("%w: %w: entry_id is required", ErrInvalidDevice, ErrInvalidIdentifier)
	}
	if strings.TrimSpace(d.Identifier) == "" {
		return fmt.Errorf("%w: %w: identifier is required", ErrInvalidDevice, ErrInvalidIdentifier)
	}
	return nil
}

// ValidateName checks a device name is non-empty and at most MaxNameLength runes.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if n := len([]rune(name)); n > MaxNameLength {
		return fmt.Errorf("%w: name is %d characters, maximum is %d", ErrInvalidName, n, MaxNameLength)
	}
	return nil
}

// GenerateID generates a new unique device ID.
func GenerateID() string {
	return uuid.New().String()
}
