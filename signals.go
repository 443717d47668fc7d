package ambient

import "github.com/zoobzio/capitan"

// Registry signals.
var (
	// SlotUpdated is emitted after every write to a key.
	SlotUpdated = capitan.NewSignal(
		"ambient.slot.updated",
		"Key value written",
	)

	// SubscriberAdded is emitted when an observer is registered.
	SubscriberAdded = capitan.NewSignal(
		"ambient.subscriber.added",
		"Observer registered",
	)

	// SubscribersPruned is emitted when dead observers are dropped from a key.
	SubscribersPruned = capitan.NewSignal(
		"ambient.subscribers.pruned",
		"Dead observers pruned",
	)

	// CallbackPanicked is emitted when an observer callback panics.
	CallbackPanicked = capitan.NewSignal(
		"ambient.callback.panicked",
		"Observer callback panicked",
	)

	// NotifyDepthExceeded is emitted when a nested write is stored without
	// notifying observers.
	NotifyDepthExceeded = capitan.NewSignal(
		"ambient.notify.depth_exceeded",
		"Nested notification suppressed",
	)
)

// Binding signals.
var (
	// BindingStarted is emitted when a Binding begins watching.
	BindingStarted = capitan.NewSignal(
		"ambient.binding.started",
		"Binding watching started",
	)

	// BindingStopped is emitted when a Binding stops watching.
	BindingStopped = capitan.NewSignal(
		"ambient.binding.stopped",
		"Binding watching stopped",
	)

	// BindingStateChanged is emitted when a Binding transitions between states.
	BindingStateChanged = capitan.NewSignal(
		"ambient.binding.state.changed",
		"Binding state transition",
	)

	// BindingChangeReceived is emitted when raw data arrives from the watcher.
	BindingChangeReceived = capitan.NewSignal(
		"ambient.binding.change.received",
		"Raw change received from watcher",
	)

	// BindingDecodeFailed is emitted when raw data cannot be decoded.
	BindingDecodeFailed = capitan.NewSignal(
		"ambient.binding.decode.failed",
		"Decode failed",
	)

	// BindingValidationFailed is emitted when a decoded value is rejected.
	BindingValidationFailed = capitan.NewSignal(
		"ambient.binding.validation.failed",
		"Validation failed",
	)

	// BindingApplied is emitted when a decoded value is written to its key.
	BindingApplied = capitan.NewSignal(
		"ambient.binding.applied",
		"Value applied to key",
	)
)
