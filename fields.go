package ambient

import "github.com/zoobzio/capitan"

// Field keys for registry and binding events.
var (
	// KeyName is the name of the key involved.
	KeyName = capitan.NewStringKey("key")

	// KeySubscription is the id of the subscription involved.
	KeySubscription = capitan.NewStringKey("subscription")

	// KeyDepth is the delivery depth of a write.
	KeyDepth = capitan.NewIntKey("depth")

	// KeyPruned is the number of dead observers removed.
	KeyPruned = capitan.NewIntKey("pruned")

	// KeyRemaining is the number of observers left after pruning.
	KeyRemaining = capitan.NewIntKey("remaining")

	// KeyError is the error message when an operation fails.
	KeyError = capitan.NewStringKey("error")

	// KeyState is the current state of a Binding.
	KeyState = capitan.NewStringKey("state")

	// KeyOldState is the previous state before a transition.
	KeyOldState = capitan.NewStringKey("old_state")

	// KeyNewState is the new state after a transition.
	KeyNewState = capitan.NewStringKey("new_state")

	// KeyDebounce is the configured debounce duration.
	KeyDebounce = capitan.NewDurationKey("debounce")

	// KeySource is the index of a Composite source.
	KeySource = capitan.NewIntKey("source")

	// KeyContentType is the MIME type of the binding's codec.
	KeyContentType = capitan.NewStringKey("content_type")
)
