package presentation

import (
	"time"

	"github.com/g3-bmx/ble-credential-client/pkg/gatt"
	"github.com/pion/logging"
)

// Default timeout and retry values.
const (
	DefaultScanTimeout       = 30 * time.Second
	DefaultConnectionTimeout = 5 * time.Second
	DefaultResponseTimeout   = 3 * time.Second
	DefaultRetryMax          = 3
	DefaultRetryBackoff      = 1 * time.Second

	postSubscribeDelay = 100 * time.Millisecond
)

// Config configures an Engine. DeviceID, DeviceKey, and Credential are the
// preprovisioned values this client presents to the reader; Transport is
// the BLE abstraction driving the physical (or simulated) link.
type Config struct {
	// DeviceID is the 16-byte identifier sent in AUTH_REQUEST. Required.
	DeviceID []byte

	// DeviceKey is the 16-byte preshared symmetric key. Required.
	DeviceKey []byte

	// Credential is the access credential presented after authentication.
	// Required.
	Credential string

	// Transport drives scanning, connection, and GATT operations.
	// Required.
	Transport gatt.Transport

	// ServiceUUID is the GATT service filtered on during scanning and
	// validated during service discovery. Default: gatt.ReaderService.
	ServiceUUID gatt.ServiceUUID

	// CharacteristicUUID is the GATT characteristic subscribed to and
	// written for the AUTH_REQUEST/CREDENTIAL exchange. Default:
	// gatt.CredentialCharacteristic.
	CharacteristicUUID gatt.CharacteristicUUID

	// RestoreIdentifier optionally names a previously-bonded peripheral
	// identity to prefer on reconnect. The CORE engine accepts and stores
	// it but does not yet act on it; bonding/identity-restore is a host
	// platform concern layered above this package.
	RestoreIdentifier string

	// ScanTimeout bounds how long Scanning waits for a matching
	// peripheral. Default: DefaultScanTimeout.
	ScanTimeout time.Duration

	// ConnectionTimeout bounds Connecting. Default: DefaultConnectionTimeout.
	ConnectionTimeout time.Duration

	// ResponseTimeout bounds each awaited reader response in
	// Authenticating and SendingCredential. Default: DefaultResponseTimeout.
	ResponseTimeout time.Duration

	// RetryMax bounds retryable-failure attempts. Default: DefaultRetryMax.
	RetryMax int

	// RetryBackoff is the delay before a retried attempt restarts
	// scanning. Default: DefaultRetryBackoff.
	RetryBackoff time.Duration

	// LoggerFactory scopes diagnostic logging. Optional; when nil, no
	// logging occurs.
	LoggerFactory logging.LoggerFactory

	// OnStateChange is invoked, outside any internal lock, whenever the
	// engine's observable state changes.
	OnStateChange func(ObservableState)

	// OnResult is invoked once per attempt when it reaches a terminal
	// state (Complete or Failed).
	OnResult func(Result)
}

func (c *Config) applyDefaults() {
	if c.ServiceUUID == "" {
		c.ServiceUUID = gatt.ReaderService
	}
	if c.CharacteristicUUID == "" {
		c.CharacteristicUUID = gatt.CredentialCharacteristic
	}
	if c.ScanTimeout == 0 {
		c.ScanTimeout = DefaultScanTimeout
	}
	if c.ConnectionTimeout == 0 {
		c.ConnectionTimeout = DefaultConnectionTimeout
	}
	if c.ResponseTimeout == 0 {
		c.ResponseTimeout = DefaultResponseTimeout
	}
	if c.RetryMax == 0 {
		c.RetryMax = DefaultRetryMax
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
}

func (c *Config) validate() error {
	if len(c.DeviceID) != 16 {
		return errInvalidDeviceID
	}
	if len(c.DeviceKey) != 16 {
		return errInvalidDeviceKey
	}
	if c.Credential == "" {
		return errEmptyCredential
	}
	if c.Transport == nil {
		return errNoTransport
	}
	return nil
}
