package presentation

import "errors"

// Errors surfaced through Result.Err or returned by Engine entry points.
var (
	// ErrAlreadyRunning is returned by Start when an attempt is already
	// in flight.
	ErrAlreadyRunning = errors.New("presentation: attempt already in progress")

	// ErrNotRunning is returned by Cancel when no attempt is in flight.
	ErrNotRunning = errors.New("presentation: no attempt in progress")

	// ErrScanTimeout is the terminal error when no matching peripheral is
	// found within Config.ScanTimeout.
	ErrScanTimeout = errors.New("presentation: scan timed out")

	// ErrConnectTimeout is the terminal error when Connect does not
	// complete within Config.ConnectionTimeout.
	ErrConnectTimeout = errors.New("presentation: connect timed out")

	// ErrResponseTimeout is the terminal error when a reader response does
	// not arrive within Config.ResponseTimeout.
	ErrResponseTimeout = errors.New("presentation: response timed out")

	// ErrRetriesExhausted is returned when the retryable failure persists
	// through Config.RetryMax attempts.
	ErrRetriesExhausted = errors.New("presentation: retries exhausted")

	// ErrCanceled is the terminal error when Cancel is called mid-attempt.
	ErrCanceled = errors.New("presentation: attempt canceled")

	// ErrPoweredOff is the terminal error when the adapter is not powered
	// on at attempt start.
	ErrPoweredOff = errors.New("presentation: adapter not powered on")

	errInvalidDeviceID  = errors.New("presentation: config: device id must be 16 bytes")
	errInvalidDeviceKey = errors.New("presentation: config: device key must be 16 bytes")
	errEmptyCredential  = errors.New("presentation: config: credential must not be empty")
	errNoTransport      = errors.New("presentation: config: transport is required")
)
