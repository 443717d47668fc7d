package ambient

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// Reducer merges the decoded value of every source of a Composite into the
// value written to the key. Layers are in source order.
type Reducer[T any] func(ctx context.Context, layers []T) (T, error)

// SourceError records a failure decoding one source of a Composite.
type SourceError struct {
	Index int
	Err   error
}

func (e SourceError) Error() string {
	return fmt.Sprintf("source %d: %v", e.Index, e.Err)
}

func (e SourceError) Unwrap() error {
	return e.Err
}

// Composite feeds a key from several watchers. Each emission is decoded on
// its own, the layers are merged by a Reducer, and the merged value is
// validated and written with Set.
type Composite[T any] struct {
	target         *Context
	key            *Key[T]
	sources        []Watcher
	reducer        Reducer[T]
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
	latest  [][]byte

	// For sync mode
	sourceChans []<-chan []byte

	// stop cancels every source watcher started by Start.
	stop context.CancelFunc
}

// Compose creates a Composite writing the merge of sources to k in c.
//
// Example:
//
//	c := ambient.Compose(ambient.Default(), server,
//	    func(_ context.Context, layers []Server) (Server, error) {
//	        merged := layers[0]
//	        if layers[1].Port != 0 {
//	            merged.Port = layers[1].Port
//	        }
//	        return merged, nil
//	    },
//	    defaultsWatcher, ambient.NewFileWatcher("server.json"),
//	)
func Compose[T any](c *Context, k *Key[T], reducer Reducer[T], sources ...Watcher) *Composite[T] {
	cp := &Composite[T]{
		target:   c,
		key:      k,
		sources:  sources,
		reducer:  reducer,
		debounce: DefaultDebounce,
		clock:    clockz.RealClock,
		codec:    JSONCodec{},
		latest:   make([][]byte, len(sources)),
	}
	cp.state.Store(int32(StateLoading))
	return cp
}

// Debounce sets the debounce duration for change processing.
// Default: 100ms. Must be called before Start().
func (cp *Composite[T]) Debounce(d time.Duration) *Composite[T] {
	cp.debounce = d
	return cp
}

// SyncMode enables synchronous processing for testing. Must be called
// before Start().
func (cp *Composite[T]) SyncMode() *Composite[T] {
	cp.syncMode = true
	return cp
}

// Clock sets a custom clock for debounce and startup timeout.
func (cp *Composite[T]) Clock(clock clockz.Clock) *Composite[T] {
	cp.clock = clock
	return cp
}

// Codec sets the codec used for every source. Default: JSONCodec.
func (cp *Composite[T]) Codec(codec Codec) *Composite[T] {
	cp.codec = codec
	return cp
}

// StartupTimeout bounds the wait for the initial value of every source.
func (cp *Composite[T]) StartupTimeout(d time.Duration) *Composite[T] {
	cp.startupTimeout = d
	return cp
}

// OnStop sets a callback invoked with the final state when watching stops.
func (cp *Composite[T]) OnStop(fn func(State)) *Composite[T] {
	cp.onStop = fn
	return cp
}

// ErrorHistorySize sets the number of recent errors to retain.
func (cp *Composite[T]) ErrorHistorySize(n int) *Composite[T] {
	cp.errorHistory = newRing[error](n)
	return cp
}

// State returns the current state of the Composite.
func (cp *Composite[T]) State() State {
	return State(cp.state.Load())
}

// LastError returns the error from the most recent failed merge, or nil.
func (cp *Composite[T]) LastError() error {
	ptr := cp.lastError.Load()
	if ptr == nil {
		return nil
	}
	return *ptr
}

// ErrorHistory returns recent errors, oldest first.
func (cp *Composite[T]) ErrorHistory() []error {
	return cp.errorHistory.all()
}

// Start begins watching all sources. It waits for an initial value from
// each source and writes the first merge before returning. If any source
// fails to start or to emit its initial value, the sources already started
// are stopped before Start returns.
func (cp *Composite[T]) Start(ctx context.Context) error {
	cp.mu.Lock()
	if cp.started {
		cp.mu.Unlock()
		return fmt.Errorf("composite for %q already started", cp.key.name)
	}
	cp.started = true
	cp.mu.Unlock()

	if len(cp.sources) == 0 {
		return fmt.Errorf("compose requires at least one source")
	}

	capitan.Emit(ctx, BindingStarted,
		KeyName.Field(cp.key.name),
		KeyDebounce.Field(cp.debounce),
		KeyContentType.Field(cp.codec.ContentType()),
	)

	watchCtx, stop := context.WithCancel(ctx)
	cp.stop = stop

	cp.sourceChans = make([]<-chan []byte, len(cp.sources))
	for i, src := range cp.sources {
		ch, err := src.Watch(watchCtx)
		if err != nil {
			stop()
			return fmt.Errorf("failed to start source %d: %w", i, err)
		}
		cp.sourceChans[i] = ch
	}

	startupCtx := ctx
	if cp.startupTimeout > 0 {
		var cancel context.CancelFunc
		startupCtx, cancel = cp.clock.WithTimeout(ctx, cp.startupTimeout)
		defer cancel()
	}

	for i, ch := range cp.sourceChans {
		select {
		case <-startupCtx.Done():
			stop()
			if cp.startupTimeout > 0 && startupCtx.Err() == context.DeadlineExceeded {
				return fmt.Errorf("startup timeout: source %d did not emit initial value within %v", i, cp.startupTimeout)
			}
			return startupCtx.Err()
		case raw, ok := <-ch:
			if !ok {
				stop()
				return fmt.Errorf("source %d closed before emitting initial value", i)
			}
			cp.store(i, raw)
		}
	}

	capitan.Emit(ctx, BindingChangeReceived, KeyName.Field(cp.key.name))
	initialErr := cp.process(ctx)

	if cp.syncMode {
		return initialErr
	}

	go cp.watch(watchCtx)

	return initialErr
}

// Process reads every source without blocking and merges if any changed.
// This is only available in sync mode.
func (cp *Composite[T]) Process(ctx context.Context) bool {
	if !cp.syncMode {
		return false
	}

	changed := false
	for i, ch := range cp.sourceChans {
		select {
		case raw, ok := <-ch:
			if !ok {
				continue
			}
			cp.store(i, raw)
			changed = true
		default:
		}
	}
	if !changed {
		return false
	}

	capitan.Emit(ctx, BindingChangeReceived, KeyName.Field(cp.key.name))
	_ = cp.process(ctx) //nolint:errcheck // Errors stored via fail
	return true
}

func (cp *Composite[T]) store(i int, raw []byte) {
	cp.mu.Lock()
	cp.latest[i] = raw
	cp.mu.Unlock()
}

// process decodes each source, reduces, validates and writes.
func (cp *Composite[T]) process(ctx context.Context) error {
	oldState := cp.State()

	cp.mu.Lock()
	raws := make([][]byte, len(cp.latest))
	copy(raws, cp.latest)
	cp.mu.Unlock()

	layers := make([]T, len(raws))
	for i, raw := range raws {
		if err := cp.codec.Unmarshal(raw, &layers[i]); err != nil {
			serr := SourceError{Index: i, Err: err}
			cp.fail(ctx, oldState, serr)
			capitan.Emit(ctx, BindingDecodeFailed,
				KeyName.Field(cp.key.name),
				KeySource.Field(i),
				KeyError.Field(err.Error()),
			)
			return fmt.Errorf("decode failed: %w", serr)
		}
	}

	merged, err := cp.reducer(ctx, layers)
	if err != nil {
		cp.fail(ctx, oldState, err)
		capitan.Emit(ctx, BindingValidationFailed,
			KeyName.Field(cp.key.name),
			KeyError.Field(err.Error()),
		)
		return fmt.Errorf("reducer failed: %w", err)
	}

	if err := validateValue(merged); err != nil {
		cp.fail(ctx, oldState, err)
		capitan.Emit(ctx, BindingValidationFailed,
			KeyName.Field(cp.key.name),
			KeyError.Field(err.Error()),
		)
		return fmt.Errorf("validation failed: %w", err)
	}

	Set(ctx, cp.target, cp.key, merged)

	cp.applied.Store(true)
	cp.lastError.Store(nil)
	cp.errorHistory.reset()
	cp.transitionState(ctx, oldState, StateHealthy)
	capitan.Emit(ctx, BindingApplied, KeyName.Field(cp.key.name))

	return nil
}

func (cp *Composite[T]) fail(ctx context.Context, oldState State, err error) {
	e := err
	cp.lastError.Store(&e)
	cp.errorHistory.push(err)

	next := StateDegraded
	if !cp.applied.Load() {
		next = StateEmpty
	}
	cp.transitionState(ctx, oldState, next)
}

func (cp *Composite[T]) transitionState(ctx context.Context, oldState, newState State) {
	if oldState == newState {
		return
	}
	cp.state.Store(int32(newState))
	capitan.Emit(ctx, BindingStateChanged,
		KeyName.Field(cp.key.name),
		KeyOldState.Field(oldState.String()),
		KeyNewState.Field(newState.String()),
	)
}

// watch fans in every source and merges after the debounce window.
func (cp *Composite[T]) watch(ctx context.Context) {
	changed := make(chan struct{}, len(cp.sourceChans))

	var wg sync.WaitGroup
	wg.Add(len(cp.sourceChans))
	for i, ch := range cp.sourceChans {
		go func(idx int, ch <-chan []byte) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case raw, ok := <-ch:
					if !ok {
						return
					}
					cp.store(idx, raw)
					select {
					case changed <- struct{}{}:
					case <-ctx.Done():
						return
					}
				}
			}
		}(i, ch)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	defer func() {
		cp.stop()
		final := cp.State()
		capitan.Emit(ctx, BindingStopped,
			KeyName.Field(cp.key.name),
			KeyState.Field(final.String()),
		)
		if cp.onStop != nil {
			cp.onStop(final)
		}
	}()

	var (
		timer      clockz.Timer
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

		case <-done:
			if hasPending || len(changed) > 0 {
				_ = cp.process(ctx) //nolint:errcheck // Errors stored via fail
			}
			return

		case <-changed:
			capitan.Emit(ctx, BindingChangeReceived, KeyName.Field(cp.key.name))
			hasPending = true

			if timer == nil {
				timer = cp.clock.NewTimer(cp.debounce)
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C():
				default:
				}
			}
			timer.Reset(cp.debounce)

		case <-timerC:
			if hasPending {
				_ = cp.process(ctx) //nolint:errcheck // Errors stored via fail
				hasPending = false
			}
		}
	}
}
