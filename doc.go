// Package ambient provides a process-wide table of typed global values with
// change notification.
//
// Independent parts of an application publish and consume named values
// through a shared Context without passing a mediator around, and react to
// changes without polling.
//
// # Keys
//
// A Key names one slot. It fixes the slot's type and the default returned
// while the slot is unset:
//
//	var Theme = ambient.NewKey("theme", "light")
//
// Keys are compared by identity, so declare each one once.
//
// # Reading and writing
//
//	ambient.Get(ambient.Default(), Theme)              // "light"
//	ambient.Set(ctx, ambient.Default(), Theme, "dark") // returns "light"
//
// Reads never fail: an unset slot, or one holding a value of the wrong type,
// reads as the key's default. Every write notifies, even when the new value
// equals the old one.
//
// # Observing
//
// Observers receive the previous and the new value, synchronously, on the
// goroutine that wrote, in registration order:
//
//	ambient.Observe(ctx, ambient.Default(), Theme, view,
//	    func(ctx context.Context, v *View, prev, curr string) {
//	        v.Repaint(curr)
//	    })
//
// The owner (view above) is held weakly. Once the rest of the program drops
// it, its callbacks stop, and dead entries are pruned in batches once
// DefaultPruneThreshold of them have accumulated on a key. ObserveFunc
// registers a callback without an owner; cancel it through the returned
// Subscription.
//
// Callbacks run outside the Context's lock and may call Get and Set. Nested
// writes are bounded by WithMaxDepth. A panicking callback is recovered,
// recorded (see Context.LastFailure) and does not stop delivery to the
// others.
//
// # Bindings
//
// A Binding feeds a key from an external source. A Watcher emits raw bytes,
// the Binding decodes them with a Codec, validates them, and writes them with
// Set:
//
//	ambient.BindFile(ambient.Default(), Limits, "/etc/app/limits.yaml").Start(ctx)
//
// Compose layers several watchers onto one key through a Reducer, for
// example built-in defaults overridden by a file.
//
// Watchers are provided for channels and files (fsnotify). The source
// packages add Redis keys, Kubernetes ConfigMaps and Secrets, and PostgreSQL
// rows.
//
// # Observability
//
// Registry and binding events are emitted as capitan signals (see
// signals.go). Counters and timings can be exported through a
// MetricsProvider; the otelmetrics package provides an OpenTelemetry one.
package ambient
