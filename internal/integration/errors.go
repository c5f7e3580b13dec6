package integration

import "errors"

// Domain errors for the integration package.
var (
	// ErrUnknownService is returned when a service is not registered,
	// including when no entry is set up.
	ErrUnknownService = errors.New("integration: unknown service")

	// ErrInvalidCall is returned when service data fails its schema.
	// Future timestamps additionally match babybuddy.ErrValidation.
	ErrInvalidCall = errors.New("integration: invalid service call")

	// ErrUnknownEntry is returned for an entry id that is not set up.
	ErrUnknownEntry = errors.New("integration: unknown entry")

	// ErrEntryRequired is returned when a call omits the entry while several are set up.
	ErrEntryRequired = errors.New("integration: entry is required when several are configured")

	// ErrEntryExists is returned when setting up an entry id twice.
	ErrEntryExists = errors.New("integration: entry already set up")

	// ErrNoRecord is returned by delete_last_entry when the snapshot holds
	// no record for the child and endpoint.
	ErrNoRecord = errors.New("integration: no record to delete")
)
