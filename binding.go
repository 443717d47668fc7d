package ambient

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// DefaultDebounce is the default debounce duration for change processing.
const DefaultDebounce = 100 * time.Millisecond

// Validator can be implemented by a key's value type to reject decoded
// values before they are written.
type Validator interface {
	Validate() error
}

// validate checks struct tags on decoded struct values.
var validate = validator.New()

// Binding feeds a key from a Watcher. Each emission is decoded, validated and
// written with Set, so the key's observers see source changes like any other
// write. A rejected emission leaves the key untouched.
type Binding[T any] struct {
	target         *Context
	key            *Key[T]
	watcher        Watcher
	debounce       time.Duration
	startupTimeout time.Duration
	syncMode       bool
	clock          clockz.Clock
	codec          Codec
	onStop         func(State)

	state        atomic.Int32
	applied      atomic.Bool
	lastError    atomic.Pointer[error]
	errorHistory *ring[error]

	mu      sync.Mutex
	started bool

	// For sync mode: channel to receive changes
	changes <-chan []byte

	// stop cancels the watcher started by Start.
	stop context.CancelFunc
}

// Bind creates a Binding that writes values from w to k in c.
//
// Example:
//
//	limits := ambient.NewKey("limits", Limits{Rate: 100})
//	b := ambient.Bind(ambient.Default(), limits, ambient.NewFileWatcher("limits.yaml")).
//	    Codec(ambient.YAMLCodec{})
//	if err := b.Start(ctx); err != nil {
//	    log.Printf("initial limits rejected: %v", err)
//	}
func Bind[T any](c *Context, k *Key[T], w Watcher) *Binding[T] {
	b := &Binding[T]{
		target:   c,
		key:      k,
		watcher:  w,
		debounce: DefaultDebounce,
		clock:    clockz.RealClock,
		codec:    JSONCodec{},
	}
	b.state.Store(int32(StateLoading))
	return b
}

// BindFile binds k to the file at path, choosing the codec from the file
// extension.
func BindFile[T any](c *Context, k *Key[T], path string) *Binding[T] {
	return Bind(c, k, NewFileWatcher(path)).Codec(CodecFor(path))
}

// Debounce sets the debounce duration for change processing.
// Changes arriving within this duration are coalesced into a single write.
// Default: 100ms. Must be called before Start().
func (b *Binding[T]) Debounce(d time.Duration) *Binding[T] {
	b.debounce = d
	return b
}

// SyncMode enables synchronous processing for testing.
// In sync mode, changes are processed only when Process is called, without
// debouncing or goroutines. Must be called before Start().
func (b *Binding[T]) SyncMode() *Binding[T] {
	b.syncMode = true
	return b
}

// Clock sets a custom clock for time operations.
// Use this with clockz.FakeClock for deterministic debounce testing.
// Must be called before Start().
func (b *Binding[T]) Clock(clock clockz.Clock) *Binding[T] {
	b.clock = clock
	return b
}

// Codec sets the codec used to decode emissions. Default: JSONCodec.
// Must be called before Start().
func (b *Binding[T]) Codec(codec Codec) *Binding[T] {
	b.codec = codec
	return b
}

// StartupTimeout bounds how long Start waits for the watcher's first
// emission. Default: no timeout. Must be called before Start().
func (b *Binding[T]) StartupTimeout(d time.Duration) *Binding[T] {
	b.startupTimeout = d
	return b
}

// OnStop sets a callback invoked with the final state when the binding stops
// watching. Must be called before Start().
func (b *Binding[T]) OnStop(fn func(State)) *Binding[T] {
	b.onStop = fn
	return b
}

// ErrorHistorySize sets the number of recent errors to retain.
// Use 0 (default) to only retain the most recent error via LastError().
// Must be called before Start().
func (b *Binding[T]) ErrorHistorySize(n int) *Binding[T] {
	b.errorHistory = newRing[error](n)
	return b
}

// State returns the current state of the Binding.
func (b *Binding[T]) State() State {
	return State(b.state.Load())
}

// LastError returns the last error encountered, or nil after a successful
// write.
func (b *Binding[T]) LastError() error {
	ptr := b.lastError.Load()
	if ptr == nil {
		return nil
	}
	return *ptr
}

// ErrorHistory returns the errors since the last successful write, oldest
// first. Returns nil if error history is not enabled.
func (b *Binding[T]) ErrorHistory() []error {
	return b.errorHistory.all()
}

// Start begins watching. It blocks until the first emission is processed,
// then keeps watching in the background until ctx ends. The error of the
// first emission, if any, is returned while watching continues.
//
// In sync mode, Start only processes the first emission; call Process for
// each subsequent one.
//
// Start can only be called once. Subsequent calls return an error.
func (b *Binding[T]) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return fmt.Errorf("binding for %q already started", b.key.name)
	}
	b.started = true
	b.mu.Unlock()

	capitan.Emit(ctx, BindingStarted,
		KeyName.Field(b.key.name),
		KeyDebounce.Field(b.debounce),
		KeyContentType.Field(b.codec.ContentType()),
	)

	watchCtx, stop := context.WithCancel(ctx)
	b.stop = stop

	changes, err := b.watcher.Watch(watchCtx)
	if err != nil {
		stop()
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	startupCtx := ctx
	if b.startupTimeout > 0 {
		var cancel context.CancelFunc
		startupCtx, cancel = b.clock.WithTimeout(ctx, b.startupTimeout)
		defer cancel()
	}

	var initialErr error
	select {
	case <-startupCtx.Done():
		stop()
		if b.startupTimeout > 0 && startupCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("startup timeout: watcher did not emit initial value within %v", b.startupTimeout)
		}
		return startupCtx.Err()
	case raw, ok := <-changes:
		if !ok {
			stop()
			return fmt.Errorf("watcher closed before emitting initial value")
		}
		capitan.Emit(ctx, BindingChangeReceived, KeyName.Field(b.key.name))
		initialErr = b.process(ctx, raw)
	}

	if b.syncMode {
		b.changes = changes
		return initialErr
	}

	go b.watch(watchCtx, changes)

	return initialErr
}

// Process reads and processes the next pending emission.
// This is only available in sync mode and is used for deterministic testing.
// Returns false if no value is available or the channel is closed.
func (b *Binding[T]) Process(ctx context.Context) bool {
	if !b.syncMode {
		return false
	}

	select {
	case raw, ok := <-b.changes:
		if !ok {
			return false
		}
		capitan.Emit(ctx, BindingChangeReceived, KeyName.Field(b.key.name))
		_ = b.process(ctx, raw) //nolint:errcheck // Errors stored via setError
		return true
	default:
		return false
	}
}

// process decodes, validates and writes a single emission.
func (b *Binding[T]) process(ctx context.Context, raw []byte) error {
	oldState := b.State()

	var value T
	if err := b.codec.Unmarshal(raw, &value); err != nil {
		b.fail(ctx, oldState, err)
		capitan.Emit(ctx, BindingDecodeFailed,
			KeyName.Field(b.key.name),
			KeyError.Field(err.Error()),
		)
		return fmt.Errorf("decode failed: %w", err)
	}

	if err := validateValue(value); err != nil {
		b.fail(ctx, oldState, err)
		capitan.Emit(ctx, BindingValidationFailed,
			KeyName.Field(b.key.name),
			KeyError.Field(err.Error()),
		)
		return fmt.Errorf("validation failed: %w", err)
	}

	Set(ctx, b.target, b.key, value)

	b.applied.Store(true)
	b.lastError.Store(nil)
	b.errorHistory.reset()
	b.transitionState(ctx, oldState, StateHealthy)
	capitan.Emit(ctx, BindingApplied, KeyName.Field(b.key.name))

	return nil
}

// validateValue checks struct tags when v is a struct or a pointer to one,
// then runs Validate when v implements Validator.
func validateValue(v any) error {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Struct {
		if err := validate.Struct(rv.Interface()); err != nil {
			return err
		}
	}

	if val, ok := v.(Validator); ok {
		return val.Validate()
	}
	return nil
}

// fail records err and moves to the appropriate failure state.
func (b *Binding[T]) fail(ctx context.Context, oldState State, err error) {
	e := err
	b.lastError.Store(&e)
	b.errorHistory.push(err)

	next := StateDegraded
	if !b.applied.Load() {
		next = StateEmpty
	}
	b.transitionState(ctx, oldState, next)
}

// transitionState updates the state and emits a state change event if changed.
func (b *Binding[T]) transitionState(ctx context.Context, oldState, newState State) {
	if oldState == newState {
		return
	}
	b.state.Store(int32(newState))
	capitan.Emit(ctx, BindingStateChanged,
		KeyName.Field(b.key.name),
		KeyOldState.Field(oldState.String()),
		KeyNewState.Field(newState.String()),
	)
}

// watch processes changes from the watcher channel with debouncing.
func (b *Binding[T]) watch(ctx context.Context, changes <-chan []byte) {
	defer func() {
		b.stop()
		final := b.State()
		capitan.Emit(ctx, BindingStopped,
			KeyName.Field(b.key.name),
			KeyState.Field(final.String()),
		)
		if b.onStop != nil {
			b.onStop(final)
		}
	}()

	var (
		timer      clockz.Timer
		pending    []byte
		hasPending bool
	)

	for {
		var timerC <-chan time.Time
		if timer != nil {
			timerC = timer.C()
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case raw, ok := <-changes:
			if !ok {
				if hasPending {
					_ = b.process(ctx, pending) //nolint:errcheck // Errors stored via fail
				}
				return
			}

			capitan.Emit(ctx, BindingChangeReceived, KeyName.Field(b.key.name))
			pending = raw
			hasPending = true

			if timer == nil {
				timer = b.clock.NewTimer(b.debounce)
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C():
				default:
				}
			}
			timer.Reset(b.debounce)

		case <-timerC:
			if hasPending {
				_ = b.process(ctx, pending) //nolint:errcheck // Errors stored via fail
				hasPending = false
			}
		}
	}
}
