package presentation

import (
	"context"
	"testing"
	"time"

	"github.com/g3-bmx/ble-credential-client/pkg/bcrypto"
	"github.com/g3-bmx/ble-credential-client/pkg/gatt"
	"github.com/g3-bmx/ble-credential-client/pkg/wire"
)

var (
	testDeviceID  = []byte("a1b2c3d4e5f6a1b2") // 16 bytes, opaque test fixture
	testDeviceKey = []byte("13f75379273f324d") // 16 bytes, opaque test fixture
)

// fakeReader emulates the reader's half of the protocol against raw
// frame bytes, for driving gatt.Sim's AutoResponder in tests.
type fakeReader struct {
	deviceKey []byte
	status    wire.Status
	// authError, when set, makes the reader answer AUTH_REQUEST with an
	// ERROR frame of this code instead of a valid AUTH_RESPONSE.
	authError *wire.ErrorCode
	// corruptNonce flips a bit in the echoed Nonce_M, to trigger the
	// client's NonceMismatch path.
	corruptNonce bool
}

func (f *fakeReader) respond(written []byte) ([]byte, bool) {
	if len(written) == 0 {
		return nil, false
	}

	switch wire.MessageType(written[0]) {
	case wire.TypeAuthRequest:
		if f.authError != nil {
			return []byte{byte(wire.TypeError), byte(*f.authError)}, true
		}

		iv := written[17:33]
		ciphertext := written[33:65]
		nonceM, err := bcrypto.Decrypt(f.deviceKey, iv, ciphertext)
		if err != nil {
			return nil, false
		}
		if f.corruptNonce {
			nonceM = append([]byte{}, nonceM...)
			nonceM[0] ^= 0xFF
		}

		nonceR, err := bcrypto.Random(16)
		if err != nil {
			return nil, false
		}
		enc, err := bcrypto.Encrypt(f.deviceKey, append(append([]byte{}, nonceM...), nonceR...), nil)
		if err != nil {
			return nil, false
		}

		frame := []byte{byte(wire.TypeAuthResponse)}
		frame = append(frame, enc.IV...)
		frame = append(frame, enc.Ciphertext...)
		return frame, true

	case wire.TypeCredential:
		return []byte{byte(wire.TypeCredentialResponse), byte(f.status)}, true

	default:
		return nil, false
	}
}

func newSimWithReader(reader *fakeReader) *gatt.Sim {
	return gatt.NewSim(gatt.SimConfig{Responder: reader.respond})
}

func TestEngineHappyPath(t *testing.T) {
	reader := &fakeReader{deviceKey: testDeviceKey, status: wire.StatusSuccess}
	sim := newSimWithReader(reader)
	defer sim.Close()

	results := make(chan Result, 1)
	var states []State

	e, err := NewEngine(Config{
		DeviceID:        testDeviceID,
		DeviceKey:       testDeviceKey,
		Credential:      "prod-pin_access_tool-7603489",
		Transport:       sim,
		ResponseTimeout: 2 * time.Second,
		OnResult:        func(r Result) { results <- r },
		OnStateChange:   func(obs ObservableState) { states = append(states, obs.State) },
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case r := <-results:
		if !r.Success {
			t.Fatalf("result = %+v, want success", r)
		}
		if r.Message != "Access granted" {
			t.Fatalf("message = %q, want %q", r.Message, "Access granted")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for result")
	}

	if e.Snapshot().State != StateComplete {
		t.Fatalf("final state = %v, want StateComplete", e.Snapshot().State)
	}

	wantOrder := []State{
		StateScanning, StateConnecting, StateDiscoveringServices,
		StateDiscoveringCharacteristics, StateSubscribing, StateAuthenticating,
		StateSendingCredential, StateComplete,
	}
	if len(states) != len(wantOrder) {
		t.Fatalf("state sequence = %v, want %v", states, wantOrder)
	}
	for i, s := range wantOrder {
		if states[i] != s {
			t.Fatalf("state[%d] = %v, want %v", i, states[i], s)
		}
	}
}

func TestEngineRejectedCredential(t *testing.T) {
	reader := &fakeReader{deviceKey: testDeviceKey, status: wire.StatusRejected}
	sim := newSimWithReader(reader)
	defer sim.Close()

	results := make(chan Result, 1)
	e, err := NewEngine(Config{
		DeviceID:   testDeviceID,
		DeviceKey:  testDeviceKey,
		Credential: "bad-credential",
		Transport:  sim,
		OnResult:   func(r Result) { results <- r },
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case r := <-results:
		if r.Success {
			t.Fatalf("result = %+v, want rejection", r)
		}
		if r.Message != "Access denied" {
			t.Fatalf("message = %q, want %q", r.Message, "Access denied")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for result")
	}
}

func TestEngineReaderErrorRetriesThenExhausts(t *testing.T) {
	decryptionFailed := wire.ErrorDecryptionFailed
	reader := &fakeReader{deviceKey: testDeviceKey, authError: &decryptionFailed}
	sim := newSimWithReader(reader)
	defer sim.Close()

	results := make(chan Result, 1)
	e, err := NewEngine(Config{
		DeviceID:     testDeviceID,
		DeviceKey:    testDeviceKey,
		Credential:   "prod-pin_access_tool-7603489",
		Transport:    sim,
		RetryMax:     3,
		RetryBackoff: 5 * time.Millisecond,
		OnResult:     func(r Result) { results <- r },
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case r := <-results:
		if r.Success {
			t.Fatalf("result = %+v, want failure", r)
		}
		if e.Snapshot().Attempt != 3 {
			t.Fatalf("attempt count = %d, want 3", e.Snapshot().Attempt)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for result")
	}
}

func TestEngineScanTimeoutRetries(t *testing.T) {
	sim := gatt.NewSim(gatt.SimConfig{NeverAdvertise: true})
	defer sim.Close()

	results := make(chan Result, 1)
	e, err := NewEngine(Config{
		DeviceID:     testDeviceID,
		DeviceKey:    testDeviceKey,
		Credential:   "prod-pin_access_tool-7603489",
		Transport:    sim,
		ScanTimeout:  20 * time.Millisecond,
		RetryMax:     2,
		RetryBackoff: 5 * time.Millisecond,
		OnResult:     func(r Result) { results <- r },
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case r := <-results:
		if r.Success {
			t.Fatalf("result = %+v, want failure", r)
		}
		if e.Snapshot().Attempt != 2 {
			t.Fatalf("attempt count = %d, want 2", e.Snapshot().Attempt)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for result")
	}
}

func TestEngineNonceMismatchIsTerminalNoRetry(t *testing.T) {
	reader := &fakeReader{deviceKey: testDeviceKey, status: wire.StatusSuccess, corruptNonce: true}
	sim := newSimWithReader(reader)
	defer sim.Close()

	results := make(chan Result, 1)
	e, err := NewEngine(Config{
		DeviceID:     testDeviceID,
		DeviceKey:    testDeviceKey,
		Credential:   "prod-pin_access_tool-7603489",
		Transport:    sim,
		RetryMax:     3,
		RetryBackoff: 5 * time.Millisecond,
		OnResult:     func(r Result) { results <- r },
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case r := <-results:
		if r.Success {
			t.Fatalf("result = %+v, want failure", r)
		}
		if e.Snapshot().Attempt != 1 {
			t.Fatalf("attempt count = %d, want 1 (no retry on nonce mismatch)", e.Snapshot().Attempt)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for result")
	}
}

// TestEngineCharacteristicNotFoundRetriesThenExhausts exercises a
// gatt-layer protocol mismatch (the discovered characteristic never
// matches the configured one) through the full retry loop: transport
// errors are retried up to RetryMax, not failed immediately.
func TestEngineCharacteristicNotFoundRetriesThenExhausts(t *testing.T) {
	sim := gatt.NewSim(gatt.SimConfig{})
	defer sim.Close()

	results := make(chan Result, 1)
	e, err := NewEngine(Config{
		DeviceID:           testDeviceID,
		DeviceKey:          testDeviceKey,
		Credential:         "prod-pin_access_tool-7603489",
		Transport:          sim,
		CharacteristicUUID: "0000dead-0000-1000-8000-00805f9b34fb",
		RetryMax:           3,
		RetryBackoff:       5 * time.Millisecond,
		OnResult:           func(r Result) { results <- r },
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case r := <-results:
		if r.Success {
			t.Fatalf("result = %+v, want failure", r)
		}
		if e.Snapshot().Attempt != 3 {
			t.Fatalf("attempt count = %d, want 3 (gatt.ErrCharNotFound must be retried)", e.Snapshot().Attempt)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for result")
	}
}

// TestEngineMalformedAuthResponseRetries exercises a bare wire-layer
// protocol error (an AUTH_RESPONSE with the wrong message type byte)
// through the full retry loop.
func TestEngineMalformedAuthResponseRetries(t *testing.T) {
	reader := &fakeReader{deviceKey: testDeviceKey, status: wire.StatusSuccess}
	wrapped := func(written []byte) ([]byte, bool) {
		reply, ok := reader.respond(written)
		if !ok || wire.MessageType(written[0]) != wire.TypeAuthRequest {
			return reply, ok
		}
		reply[0] = byte(wire.TypeCredentialResponse) // corrupt the type byte
		return reply, ok
	}
	sim := gatt.NewSim(gatt.SimConfig{Responder: wrapped})
	defer sim.Close()

	results := make(chan Result, 1)
	e, err := NewEngine(Config{
		DeviceID:     testDeviceID,
		DeviceKey:    testDeviceKey,
		Credential:   "prod-pin_access_tool-7603489",
		Transport:    sim,
		RetryMax:     2,
		RetryBackoff: 5 * time.Millisecond,
		OnResult:     func(r Result) { results <- r },
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case r := <-results:
		if r.Success {
			t.Fatalf("result = %+v, want failure", r)
		}
		if e.Snapshot().Attempt != 2 {
			t.Fatalf("attempt count = %d, want 2 (wire.ErrUnexpectedType must be retried)", e.Snapshot().Attempt)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for result")
	}
}

// TestEngineCorruptedCiphertextRetries exercises a bare bcrypto-layer
// error (undecryptable padding in the AUTH_RESPONSE ciphertext) through
// the full retry loop.
func TestEngineCorruptedCiphertextRetries(t *testing.T) {
	reader := &fakeReader{deviceKey: testDeviceKey, status: wire.StatusSuccess}
	wrapped := func(written []byte) ([]byte, bool) {
		reply, ok := reader.respond(written)
		if !ok || wire.MessageType(written[0]) != wire.TypeAuthRequest {
			return reply, ok
		}
		// Flip a byte in the ciphertext so PKCS#7 unpadding fails.
		reply[len(reply)-1] ^= 0xFF
		return reply, ok
	}
	sim := gatt.NewSim(gatt.SimConfig{Responder: wrapped})
	defer sim.Close()

	results := make(chan Result, 1)
	e, err := NewEngine(Config{
		DeviceID:     testDeviceID,
		DeviceKey:    testDeviceKey,
		Credential:   "prod-pin_access_tool-7603489",
		Transport:    sim,
		RetryMax:     2,
		RetryBackoff: 5 * time.Millisecond,
		OnResult:     func(r Result) { results <- r },
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case r := <-results:
		if r.Success {
			t.Fatalf("result = %+v, want failure", r)
		}
		if e.Snapshot().Attempt != 2 {
			t.Fatalf("attempt count = %d, want 2 (bcrypto padding errors must be retried)", e.Snapshot().Attempt)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for result")
	}
}

func TestEngineAlreadyRunning(t *testing.T) {
	reader := &fakeReader{deviceKey: testDeviceKey, status: wire.StatusSuccess}
	sim := newSimWithReader(reader)
	defer sim.Close()

	e, err := NewEngine(Config{
		DeviceID:   testDeviceID,
		DeviceKey:  testDeviceKey,
		Credential: "prod-pin_access_tool-7603489",
		Transport:  sim,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := e.Start(context.Background()); err != ErrAlreadyRunning {
		t.Fatalf("second Start err = %v, want ErrAlreadyRunning", err)
	}
}

func TestEngineDeferredStartOnPowerOn(t *testing.T) {
	reader := &fakeReader{deviceKey: testDeviceKey, status: wire.StatusSuccess}
	sim := gatt.NewSim(gatt.SimConfig{InitialPowerState: gatt.PowerStateOff, Responder: reader.respond})
	defer sim.Close()

	results := make(chan Result, 1)
	e, err := NewEngine(Config{
		DeviceID:   testDeviceID,
		DeviceKey:  testDeviceKey,
		Credential: "prod-pin_access_tool-7603489",
		Transport:  sim,
		OnResult:   func(r Result) { results <- r },
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-results:
		t.Fatal("attempt ran while adapter was off")
	case <-time.After(50 * time.Millisecond):
	}

	sim.SetPowerState(gatt.PowerStateOn)
	e.NotifyPowerState(gatt.PowerStateOn)

	select {
	case r := <-results:
		if !r.Success {
			t.Fatalf("result = %+v, want success", r)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for deferred attempt")
	}
}
