package presentation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/g3-bmx/ble-credential-client/pkg/bcrypto"
	"github.com/g3-bmx/ble-credential-client/pkg/gatt"
	"github.com/g3-bmx/ble-credential-client/pkg/wire"
	"github.com/pion/logging"
)

// Engine drives one credential presentation attempt at a time against a
// gatt.Transport: Scanning, Connecting, service/characteristic discovery,
// Subscribing, the AUTH_REQUEST/AUTH_RESPONSE challenge, and the
// CREDENTIAL/CREDENTIAL_RESPONSE exchange, with bounded retries on
// transient failures.
type Engine struct {
	config Config
	log    logging.LeveledLogger

	mu               sync.Mutex
	state            State
	attempt          int
	lastResult       *Result
	running          bool
	pendingStart     bool
	poweredOffMidRun bool
	cancelRun        context.CancelFunc
}

// NewEngine validates cfg, applies its defaults, and returns a ready
// Engine in StateIdle.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	var log logging.LeveledLogger
	if cfg.LoggerFactory != nil {
		log = cfg.LoggerFactory.NewLogger("presentation")
	}

	return &Engine{
		config: cfg,
		log:    log,
		state:  StateIdle,
	}, nil
}

// Start begins a presentation attempt. It returns ErrAlreadyRunning if an
// attempt is already in flight. The attempt runs in a background
// goroutine; completion is reported via Config.OnResult and
// Config.OnStateChange.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}

	if e.config.Transport.PowerState() != gatt.PowerStateOn {
		e.pendingStart = true
		e.mu.Unlock()
		if e.log != nil {
			e.log.Info("start requested while adapter is off, deferring until powered on")
		}
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.running = true
	e.pendingStart = false
	e.poweredOffMidRun = false
	e.cancelRun = cancel
	e.attempt = 0
	e.mu.Unlock()

	go e.watchPowerLoss(runCtx, cancel)
	go e.run(runCtx)
	return nil
}

// watchPowerLoss cancels the in-flight attempt if the radio powers off
// mid-session, which is terminal to the current attempt rather than
// retryable.
func (e *Engine) watchPowerLoss(runCtx context.Context, cancel context.CancelFunc) {
	changes := e.config.Transport.PowerStateChanges()
	for {
		select {
		case <-runCtx.Done():
			return
		case s, ok := <-changes:
			if !ok {
				return
			}
			if s != gatt.PowerStateOn {
				e.mu.Lock()
				e.poweredOffMidRun = true
				e.mu.Unlock()
				cancel()
				return
			}
		}
	}
}

// Cancel aborts an in-flight attempt. The attempt terminates in
// StateFailed with Result.Err set to ErrCanceled. It is a no-op if no
// attempt is running.
func (e *Engine) Cancel() error {
	e.mu.Lock()
	cancel := e.cancelRun
	running := e.running
	e.mu.Unlock()

	if !running {
		return ErrNotRunning
	}
	if cancel != nil {
		cancel()
	}
	return nil
}

// NotifyPowerState informs the engine of an adapter power transition. If a
// Start call is pending because the adapter was off, and state reports
// powered-on, the deferred attempt begins now.
func (e *Engine) NotifyPowerState(state gatt.PowerState) {
	e.mu.Lock()
	shouldStart := e.pendingStart && state == gatt.PowerStateOn && !e.running
	if shouldStart {
		e.pendingStart = false
	}
	e.mu.Unlock()

	if shouldStart {
		if e.log != nil {
			e.log.Info("adapter powered on, starting deferred attempt")
		}
		_ = e.Start(context.Background())
	}
}

// Snapshot returns the engine's current observable state.
func (e *Engine) Snapshot() ObservableState {
	e.mu.Lock()
	defer e.mu.Unlock()

	obs := ObservableState{State: e.state, Attempt: e.attempt}
	if e.lastResult != nil {
		r := *e.lastResult
		obs.LastResult = &r
		if r.Err != nil {
			obs.LastError = r.Err.Error()
		}
	}
	return obs
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	obs := ObservableState{State: s, Attempt: e.attempt}
	e.mu.Unlock()

	if e.config.OnStateChange != nil {
		e.config.OnStateChange(obs)
	}
}

func (e *Engine) finish(result Result) {
	e.mu.Lock()
	e.lastResult = &result
	e.running = false
	e.cancelRun = nil
	terminal := StateFailed
	if result.Success {
		terminal = StateComplete
	}
	e.state = terminal
	attempt := e.attempt
	e.mu.Unlock()

	if e.log != nil {
		fp := bcrypto.Fingerprint(e.config.DeviceID)
		if result.Success {
			e.log.Infof("attempt for device %s completed: %s", fp, result.Message)
		} else {
			e.log.Warnf("attempt for device %s failed after %d attempt(s): %v", fp, attempt, result.Err)
		}
	}

	if e.config.OnStateChange != nil {
		e.config.OnStateChange(ObservableState{State: terminal, Attempt: attempt, LastResult: &result})
	}
	if e.config.OnResult != nil {
		e.config.OnResult(result)
	}
}

// run executes attempts up to RetryMax, backing off between retryable
// failures, until a terminal outcome or cancellation.
func (e *Engine) run(ctx context.Context) {
	for {
		e.mu.Lock()
		e.attempt++
		attempt := e.attempt
		e.mu.Unlock()

		result := e.runAttempt(ctx, attempt)
		if result.Err == nil {
			e.finish(result)
			return
		}

		if errors.Is(ctx.Err(), context.Canceled) {
			e.mu.Lock()
			poweredOff := e.poweredOffMidRun
			e.mu.Unlock()
			if poweredOff {
				e.finish(Result{Success: false, Message: "adapter powered off", Err: ErrPoweredOff})
			} else {
				e.finish(Result{Success: false, Message: "canceled", Err: ErrCanceled})
			}
			return
		}

		if !retryable(result.Err) {
			e.finish(result)
			return
		}

		if attempt >= e.config.RetryMax {
			e.finish(Result{Success: false, Message: "retries exhausted", Err: ErrRetriesExhausted})
			return
		}

		if e.log != nil {
			e.log.Warnf("attempt %d failed (%v), retrying in %s", attempt, result.Err, e.config.RetryBackoff)
		}

		select {
		case <-ctx.Done():
			e.finish(Result{Success: false, Message: "canceled", Err: ErrCanceled})
			return
		case <-time.After(e.config.RetryBackoff):
		}
	}
}

// retryable reports whether err represents a transient failure worth
// retrying. Transport, protocol, and crypto errors are all retried up to
// RetryMax; only a handful of errors are terminal: a nonce mismatch means
// the link is not trustworthy, a power loss or cancellation aborts the
// whole run rather than the attempt, and an invalid key size is a
// configuration defect no retry can fix.
func retryable(err error) bool {
	switch {
	case errors.Is(err, wire.ErrNonceMismatch):
		return false
	case errors.Is(err, ErrPoweredOff), errors.Is(err, ErrCanceled):
		return false
	case errors.Is(err, bcrypto.ErrInvalidKeySize):
		return false
	}

	return true
}
