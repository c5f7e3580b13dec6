package coordinator

import (
	"errors"
	"fmt"
)

// NoChildrenMessage is shown to users whose server has no children yet.
const NoChildrenMessage = "No children found. Please add at least one child."

// Domain errors for the coordinator package.
var (
	// ErrAuthFailed is terminal: the server rejected the API key. Polling
	// stays suspended until Setup succeeds again.
	ErrAuthFailed = errors.New("coordinator: authentication failed")

	// ErrNotReady is returned by Setup when the server could not be reached.
	// The caller should retry setup later.
	ErrNotReady = errors.New("coordinator: server not ready")

	// ErrUpdateFailed is returned when a refresh pass could not produce a snapshot.
	ErrUpdateFailed = errors.New("coordinator: update failed")

	// ErrNoChildren is the update failure for an account with no children.
	// errors.Is(err, ErrUpdateFailed) also holds.
	ErrNoChildren = fmt.Errorf("%w: %s", ErrUpdateFailed, NoChildrenMessage)

	// ErrNotSetUp is returned by Refresh before Setup has succeeded.
	ErrNotSetUp = errors.New("coordinator: not set up")
)
