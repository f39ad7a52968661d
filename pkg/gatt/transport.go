package gatt

import "context"

// Transport is the BLE central-role abstraction the region and
// presentation engines drive. Implementations own the
// adapter's power state, scanning, and a single peripheral connection at
// a time; the presentation engine owns retry and timeout policy above it.
type Transport interface {
	// PowerState returns the adapter's current power state.
	PowerState() PowerState

	// PowerStateChanges returns a channel of power state transitions. The
	// channel is closed when the transport is torn down.
	PowerStateChanges() <-chan PowerState

	// Scan starts scanning for advertisements matching serviceUUID and
	// returns a channel of results. Scanning stops when ctx is done or
	// StopScan is called.
	Scan(ctx context.Context, serviceUUID ServiceUUID) (<-chan Advertisement, error)

	// StopScan stops any in-progress scan. It is a no-op if not scanning.
	StopScan()

	// Connect establishes a connection to peripheral, blocking until
	// connected or ctx is done.
	Connect(ctx context.Context, peripheral PeripheralID) error

	// DiscoverServices returns the service UUIDs exposed by peripheral.
	DiscoverServices(ctx context.Context, peripheral PeripheralID) ([]ServiceUUID, error)

	// DiscoverCharacteristics returns the characteristic UUIDs exposed by
	// service on peripheral.
	DiscoverCharacteristics(ctx context.Context, peripheral PeripheralID, service ServiceUUID) ([]CharacteristicUUID, error)

	// Subscribe enables notifications on characteristic and returns a
	// channel of subsequent notification values.
	Subscribe(ctx context.Context, peripheral PeripheralID, characteristic CharacteristicUUID) (<-chan Notification, error)

	// WriteWithoutResponse writes data to characteristic without waiting
	// for a peripheral acknowledgment.
	WriteWithoutResponse(ctx context.Context, peripheral PeripheralID, characteristic CharacteristicUUID, data []byte) error

	// Disconnect tears down the connection to peripheral. It is safe to
	// call on an already-disconnected peripheral.
	Disconnect(peripheral PeripheralID) error

	// Disconnections reports unsolicited disconnects for any peripheral
	// this transport has connected to.
	Disconnections() <-chan DisconnectEvent
}
