package gatt

import "errors"

// Errors returned by Transport implementations.
var (
	ErrPoweredOff        = errors.New("gatt: adapter not powered on")
	ErrAlreadyScanning   = errors.New("gatt: scan already in progress")
	ErrNotConnected      = errors.New("gatt: peripheral not connected")
	ErrAlreadyConnected  = errors.New("gatt: peripheral already connected")
	ErrServiceNotFound   = errors.New("gatt: service not found")
	ErrCharNotFound      = errors.New("gatt: characteristic not found")
	ErrNotSubscribed     = errors.New("gatt: characteristic not subscribed")
	ErrWriteFailed       = errors.New("gatt: write failed")
	ErrConnectFailed     = errors.New("gatt: connect failed")
	ErrUnknownPeripheral = errors.New("gatt: unknown peripheral")
)
