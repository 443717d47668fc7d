package ambient

import "fmt"

// CallbackError records a panic recovered from an observer callback.
type CallbackError struct {
	// Key is the name of the key being delivered.
	Key string

	// Subscription is the id of the subscription whose callback panicked.
	Subscription string

	// Panic is the recovered value.
	Panic any
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("observer %s of %q panicked: %v", e.Subscription, e.Key, e.Panic)
}

// Unwrap returns the panic value when it is an error.
func (e *CallbackError) Unwrap() error {
	err, _ := e.Panic.(error)
	return err
}
