package presentation

import (
	"context"
	"fmt"
	"time"

	"github.com/g3-bmx/ble-credential-client/pkg/gatt"
	"github.com/g3-bmx/ble-credential-client/pkg/wire"
)

// runAttempt drives one full pass through the state machine: Scanning
// through SendingCredential. It always disconnects before returning,
// whether the attempt succeeded, failed terminally, or failed in a way
// the caller will retry.
func (e *Engine) runAttempt(ctx context.Context, attempt int) Result {
	peripheral, err := e.doScan(ctx)
	if err != nil {
		return Result{Err: err}
	}

	if err := e.doConnect(ctx, peripheral); err != nil {
		return Result{Err: err}
	}
	defer e.config.Transport.Disconnect(peripheral)

	notifications, err := e.doDiscoverAndSubscribe(ctx, peripheral)
	if err != nil {
		return Result{Err: err}
	}

	select {
	case <-time.After(postSubscribeDelay):
	case <-ctx.Done():
		return Result{Err: ErrCanceled}
	}

	nonceR, err := e.doAuthenticate(ctx, peripheral, notifications)
	if err != nil {
		return Result{Err: err}
	}
	_ = nonceR // reserved: no session key is derived from Nonce_R in this flow.

	return e.doSendCredential(ctx, peripheral, notifications)
}

func (e *Engine) doScan(ctx context.Context) (gatt.PeripheralID, error) {
	e.setState(StateScanning)

	scanCtx, cancel := context.WithTimeout(ctx, e.config.ScanTimeout)
	defer cancel()

	advertisements, err := e.config.Transport.Scan(scanCtx, e.config.ServiceUUID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrScanTimeout, err)
	}
	defer e.config.Transport.StopScan()

	select {
	case adv, ok := <-advertisements:
		if !ok {
			return "", ErrScanTimeout
		}
		return adv.Peripheral, nil
	case <-scanCtx.Done():
		return "", ErrScanTimeout
	}
}

func (e *Engine) doConnect(ctx context.Context, peripheral gatt.PeripheralID) error {
	e.setState(StateConnecting)

	connectCtx, cancel := context.WithTimeout(ctx, e.config.ConnectionTimeout)
	defer cancel()

	if err := e.config.Transport.Connect(connectCtx, peripheral); err != nil {
		if connectCtx.Err() != nil {
			return ErrConnectTimeout
		}
		return fmt.Errorf("%w: %w", ErrConnectTimeout, err)
	}
	return nil
}

func (e *Engine) doDiscoverAndSubscribe(ctx context.Context, peripheral gatt.PeripheralID) (<-chan gatt.Notification, error) {
	e.setState(StateDiscoveringServices)
	services, err := e.config.Transport.DiscoverServices(ctx, peripheral)
	if err != nil {
		return nil, err
	}
	if !containsService(services, e.config.ServiceUUID) {
		return nil, gatt.ErrServiceNotFound
	}

	e.setState(StateDiscoveringCharacteristics)
	chars, err := e.config.Transport.DiscoverCharacteristics(ctx, peripheral, e.config.ServiceUUID)
	if err != nil {
		return nil, err
	}
	if !containsCharacteristic(chars, e.config.CharacteristicUUID) {
		return nil, gatt.ErrCharNotFound
	}

	e.setState(StateSubscribing)
	notifications, err := e.config.Transport.Subscribe(ctx, peripheral, e.config.CharacteristicUUID)
	if err != nil {
		return nil, err
	}

	return notifications, nil
}

func (e *Engine) doAuthenticate(ctx context.Context, peripheral gatt.PeripheralID, notifications <-chan gatt.Notification) ([]byte, error) {
	e.setState(StateAuthenticating)

	frame, nonceM, err := wire.BuildAuthRequest(e.config.DeviceID, e.config.DeviceKey)
	if err != nil {
		return nil, err
	}
	if err := e.config.Transport.WriteWithoutResponse(ctx, peripheral, e.config.CharacteristicUUID, frame); err != nil {
		return nil, err
	}

	response, err := e.awaitResponse(ctx, notifications)
	if err != nil {
		return nil, err
	}

	nonceR, err := wire.ParseAuthResponse(response, e.config.DeviceKey, nonceM)
	if err != nil {
		return nil, err
	}

	return nonceR, nil
}

func (e *Engine) doSendCredential(ctx context.Context, peripheral gatt.PeripheralID, notifications <-chan gatt.Notification) Result {
	e.setState(StateSendingCredential)

	frame, err := wire.BuildCredential(e.config.DeviceKey, e.config.Credential)
	if err != nil {
		return Result{Err: err}
	}
	if err := e.config.Transport.WriteWithoutResponse(ctx, peripheral, e.config.CharacteristicUUID, frame); err != nil {
		return Result{Err: err}
	}

	response, err := e.awaitResponse(ctx, notifications)
	if err != nil {
		return Result{Err: err}
	}

	result, err := wire.ParseCredentialResponse(response)
	if err != nil {
		return Result{Err: err}
	}

	return Result{Success: result.Success, Message: result.Message}
}

// awaitResponse blocks for exactly one notification on the single
// per-attempt subscription channel, or times out. It is single-slot and
// exactly-once: a notification arriving after the timeout has already
// fired is left unread and discarded with the channel at attempt
// teardown, never retroactively satisfying a later wait.
func (e *Engine) awaitResponse(ctx context.Context, notifications <-chan gatt.Notification) ([]byte, error) {
	responseCtx, cancel := context.WithTimeout(ctx, e.config.ResponseTimeout)
	defer cancel()

	select {
	case n, ok := <-notifications:
		if !ok {
			return nil, ErrResponseTimeout
		}
		return n.Value, nil
	case <-responseCtx.Done():
		return nil, ErrResponseTimeout
	}
}

func containsService(services []gatt.ServiceUUID, target gatt.ServiceUUID) bool {
	for _, s := range services {
		if s == target {
			return true
		}
	}
	return false
}

func containsCharacteristic(chars []gatt.CharacteristicUUID, target gatt.CharacteristicUUID) bool {
	for _, c := range chars {
		if c == target {
			return true
		}
	}
	return false
}
