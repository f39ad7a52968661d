package gatt

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pion/logging"
	"github.com/pion/transport/v3/test"
)

// readerPeripheral is the single simulated peripheral Sim advertises and
// connects to. Real deployments see many peripherals; the credential flow
// this package tests drives exactly one at a time.
const readerPeripheral PeripheralID = "sim-reader"

// AutoResponder computes the peripheral's notification in reply to a
// central write, or returns ok=false to stay silent (simulating a dropped
// or ignored write).
type AutoResponder func(written []byte) (notify []byte, ok bool)

// SimConfig configures a Sim instance.
type SimConfig struct {
	// AdvertiseDelay delays the first advertisement after Scan starts.
	// Default: 0 (advertise immediately).
	AdvertiseDelay time.Duration

	// NeverAdvertise suppresses advertisements entirely, for exercising
	// scan-timeout behavior.
	NeverAdvertise bool

	// FailConnect makes Connect always return ErrConnectFailed.
	FailConnect bool

	// DisconnectAfterSubscribe fires a DisconnectEvent shortly after a
	// successful Subscribe, for exercising mid-session disconnect handling.
	DisconnectAfterSubscribe bool

	// DropNotifications suppresses delivery of pushed notifications,
	// simulating a peripheral that goes silent after a write.
	DropNotifications bool

	// InitialPowerState is the adapter power state at construction.
	// Default: PowerStateOn.
	InitialPowerState PowerState

	// ServiceUUID is the GATT service the simulated peripheral advertises
	// and exposes. Default: ReaderService.
	ServiceUUID ServiceUUID

	// CharacteristicUUID is the GATT characteristic the simulated
	// peripheral exposes for subscribe/write. Default:
	// CredentialCharacteristic.
	CharacteristicUUID CharacteristicUUID

	// Responder computes the peripheral's reply to each central write. If
	// nil, writes are recorded but never answered.
	Responder AutoResponder

	// LoggerFactory scopes diagnostic logging, following the same
	// nil-safe convention as the rest of this module's packages.
	LoggerFactory logging.LoggerFactory
}

func (c *SimConfig) applyDefaults() {
	if c.InitialPowerState == PowerStateUnknown {
		c.InitialPowerState = PowerStateOn
	}
	if c.ServiceUUID == "" {
		c.ServiceUUID = ReaderService
	}
	if c.CharacteristicUUID == "" {
		c.CharacteristicUUID = CredentialCharacteristic
	}
}

// Sim is an in-memory Transport double for a single simulated reader
// peripheral, built on a paired pion/transport/v3/test.Bridge connection
// so that writes and notifications flow as real framed byte traffic
// rather than bare channel sends.
type Sim struct {
	cfg    SimConfig
	log    logging.LeveledLogger
	bridge *test.Bridge

	mu             sync.Mutex
	connected      bool
	subscribed     bool
	notifyCh       chan Notification
	powerCh        chan PowerState
	disconnectCh   chan DisconnectEvent
	scanCancel     context.CancelFunc
	closed         bool
	writesRecorded [][]byte
}

// NewSim constructs a Sim with the given configuration.
func NewSim(cfg SimConfig) *Sim {
	cfg.applyDefaults()

	var log logging.LeveledLogger
	if cfg.LoggerFactory != nil {
		log = cfg.LoggerFactory.NewLogger("gatt")
	}

	s := &Sim{
		cfg:          cfg,
		log:          log,
		bridge:       test.NewBridge(),
		powerCh:      make(chan PowerState, 4),
		disconnectCh: make(chan DisconnectEvent, 4),
	}

	go s.pumpPeripheralSide()
	go s.pumpCentralSide()

	return s
}

// pumpCentralSide reads notification frames the peripheral side wrote and
// delivers them to whatever subscriber channel is current, so every
// notification genuinely crosses the bridge rather than being shortcut
// straight into the channel.
func (s *Sim) pumpCentralSide() {
	conn0 := s.bridge.GetConn0()
	for {
		data, err := readFrame(conn0)
		if err != nil {
			return
		}

		s.mu.Lock()
		ch := s.notifyCh
		s.mu.Unlock()
		if ch == nil {
			continue
		}

		select {
		case ch <- Notification{Characteristic: s.cfg.CharacteristicUUID, Value: data}:
		default:
		}
	}
}

// pumpPeripheralSide reads length-prefixed frames written by the central
// side (WriteWithoutResponse) off the bridge's conn1 and, if a Responder
// is configured, pushes the computed reply back as a notification frame.
func (s *Sim) pumpPeripheralSide() {
	conn1 := s.bridge.GetConn1()
	for {
		frame, err := readFrame(conn1)
		if err != nil {
			return
		}

		s.mu.Lock()
		s.writesRecorded = append(s.writesRecorded, frame)
		responder := s.cfg.Responder
		s.mu.Unlock()

		if responder == nil {
			continue
		}
		reply, ok := responder(frame)
		if !ok {
			continue
		}
		s.PushNotification(reply)
	}
}

// PushNotification delivers data to the current subscriber, as if the
// simulated peripheral had sent a GATT notification. It is a no-op if
// nothing is subscribed or DropNotifications is set.
func (s *Sim) PushNotification(data []byte) {
	s.mu.Lock()
	drop := s.cfg.DropNotifications
	subscribed := s.subscribed
	s.mu.Unlock()

	if drop || !subscribed {
		return
	}

	if err := writeFrame(s.bridge.GetConn1(), data); err != nil {
		return
	}
	s.bridge.Tick()
}

// RecordedWrites returns every frame the central side has written, in
// order, for test assertions.
func (s *Sim) RecordedWrites() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.writesRecorded))
	copy(out, s.writesRecorded)
	return out
}

func (s *Sim) PowerState() PowerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.InitialPowerState
}

func (s *Sim) PowerStateChanges() <-chan PowerState {
	return s.powerCh
}

// SetPowerState changes the simulated adapter power state and publishes
// the transition, as NotifyPowerState consumers expect.
func (s *Sim) SetPowerState(state PowerState) {
	s.mu.Lock()
	s.cfg.InitialPowerState = state
	s.mu.Unlock()

	select {
	case s.powerCh <- state:
	default:
	}
}

func (s *Sim) Scan(ctx context.Context, serviceUUID ServiceUUID) (<-chan Advertisement, error) {
	s.mu.Lock()
	if s.cfg.InitialPowerState != PowerStateOn {
		s.mu.Unlock()
		return nil, ErrPoweredOff
	}
	scanCtx, cancel := context.WithCancel(ctx)
	s.scanCancel = cancel
	s.mu.Unlock()

	out := make(chan Advertisement, 1)
	if s.cfg.NeverAdvertise || serviceUUID != s.cfg.ServiceUUID {
		go func() {
			<-scanCtx.Done()
			close(out)
		}()
		return out, nil
	}

	go func() {
		defer close(out)
		timer := time.NewTimer(s.cfg.AdvertiseDelay)
		defer timer.Stop()

		select {
		case <-scanCtx.Done():
			return
		case <-timer.C:
		}

		select {
		case out <- Advertisement{Peripheral: readerPeripheral, SeenAt: time.Now()}:
		case <-scanCtx.Done():
		}
	}()

	return out, nil
}

func (s *Sim) StopScan() {
	s.mu.Lock()
	cancel := s.scanCancel
	s.scanCancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (s *Sim) Connect(ctx context.Context, peripheral PeripheralID) error {
	if peripheral != readerPeripheral {
		return ErrUnknownPeripheral
	}
	if s.cfg.FailConnect {
		return ErrConnectFailed
	}

	s.mu.Lock()
	if s.connected {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.connected = true
	s.mu.Unlock()

	if s.log != nil {
		s.log.Debugf("connected to %s", peripheral)
	}
	return nil
}

func (s *Sim) DiscoverServices(ctx context.Context, peripheral PeripheralID) ([]ServiceUUID, error) {
	if err := s.requireConnected(peripheral); err != nil {
		return nil, err
	}
	return []ServiceUUID{s.cfg.ServiceUUID}, nil
}

func (s *Sim) DiscoverCharacteristics(ctx context.Context, peripheral PeripheralID, service ServiceUUID) ([]CharacteristicUUID, error) {
	if err := s.requireConnected(peripheral); err != nil {
		return nil, err
	}
	if service != s.cfg.ServiceUUID {
		return nil, ErrServiceNotFound
	}
	return []CharacteristicUUID{s.cfg.CharacteristicUUID}, nil
}

func (s *Sim) Subscribe(ctx context.Context, peripheral PeripheralID, characteristic CharacteristicUUID) (<-chan Notification, error) {
	if err := s.requireConnected(peripheral); err != nil {
		return nil, err
	}
	if characteristic != s.cfg.CharacteristicUUID {
		return nil, ErrCharNotFound
	}

	s.mu.Lock()
	s.subscribed = true
	// Single-slot mailbox: at most one outstanding response is ever
	// awaited at a time, so a residual notification after resolution is
	// dropped (pumpCentralSide's send is non-blocking) rather than
	// silently answering the next awaitResponse call.
	s.notifyCh = make(chan Notification, 1)
	ch := s.notifyCh
	s.mu.Unlock()

	if s.cfg.DisconnectAfterSubscribe {
		go func() {
			time.Sleep(10 * time.Millisecond)
			s.Disconnect(peripheral)
		}()
	}

	return ch, nil
}

func (s *Sim) WriteWithoutResponse(ctx context.Context, peripheral PeripheralID, characteristic CharacteristicUUID, data []byte) error {
	if err := s.requireConnected(peripheral); err != nil {
		return err
	}
	if characteristic != s.cfg.CharacteristicUUID {
		return ErrCharNotFound
	}

	s.mu.Lock()
	subscribed := s.subscribed
	ch := s.notifyCh
	s.mu.Unlock()
	if !subscribed {
		return ErrNotSubscribed
	}

	// Drain any residual, already-resolved notification left in the
	// single-slot mailbox before issuing the next write, so it is never
	// mistaken for the reply to this write.
	select {
	case <-ch:
	default:
	}

	if err := writeFrame(s.bridge.GetConn0(), data); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	s.bridge.Tick()
	return nil
}

func (s *Sim) Disconnect(peripheral PeripheralID) error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return nil
	}
	s.connected = false
	s.subscribed = false
	s.notifyCh = nil
	s.mu.Unlock()

	if s.log != nil {
		s.log.Debugf("disconnected from %s", peripheral)
	}

	select {
	case s.disconnectCh <- DisconnectEvent{Peripheral: peripheral}:
	default:
	}
	return nil
}

func (s *Sim) Disconnections() <-chan DisconnectEvent {
	return s.disconnectCh
}

func (s *Sim) requireConnected(peripheral PeripheralID) error {
	if peripheral != readerPeripheral {
		return ErrUnknownPeripheral
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrNotConnected
	}
	return nil
}

// Close tears down the underlying bridge. Safe to call once per Sim.
func (s *Sim) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	if err := s.bridge.GetConn0().Close(); err != nil {
		return err
	}
	return s.bridge.GetConn1().Close()
}

// writeFrame writes a 4-byte big-endian length prefix followed by data.
func writeFrame(w io.Writer, data []byte) error {
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(data)))
	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// readFrame reads one length-prefixed frame written by writeFrame.
func readFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header)
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}
