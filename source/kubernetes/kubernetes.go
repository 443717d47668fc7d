// Package kubernetes provides an ambient.Watcher for a key inside a
// Kubernetes ConfigMap or Secret using the Watch API.
package kubernetes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zoobzio/clockz"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"

	"github.com/zoobzio/ambient"
)

// DefaultRetryDelay is the pause before re-establishing a failed watch.
const DefaultRetryDelay = time.Second

// ResourceType specifies the type of Kubernetes resource to watch.
type ResourceType int

const (
	// ConfigMap watches a ConfigMap resource.
	ConfigMap ResourceType = iota
	// Secret watches a Secret resource.
	Secret
)

func (rt ResourceType) String() string {
	if rt == Secret {
		return "secret"
	}
	return "configmap"
}

var errWatchClosed = errors.New("watch channel closed")

// Watcher watches one data key of a ConfigMap or Secret.
type Watcher struct {
	client       kubernetes.Interface
	namespace    string
	name         string
	key          string
	resourceType ResourceType
	retryDelay   time.Duration
	clock        clockz.Clock
}

var _ ambient.Watcher = (*Watcher)(nil)

// Option configures a Watcher.
type Option func(*Watcher)

// WithResourceType sets the resource type to watch.
// Defaults to ConfigMap.
func WithResourceType(rt ResourceType) Option {
	return func(w *Watcher) {
		w.resourceType = rt
	}
}

// WithRetryDelay sets the pause between watch reconnect attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(w *Watcher) {
		w.retryDelay = d
	}
}

// WithClock sets the clock used for reconnect delays.
func WithClock(clock clockz.Clock) Option {
	return func(w *Watcher) {
		w.clock = clock
	}
}

// New creates a Watcher for data key key of the named resource.
func New(client kubernetes.Interface, namespace, name, key string, opts ...Option) *Watcher {
	w := &Watcher{
		client:       client,
		namespace:    namespace,
		name:         name,
		key:          key,
		resourceType: ConfigMap,
		retryDelay:   DefaultRetryDelay,
		clock:        clockz.RealClock,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Watch returns a channel that emits the data key's value whenever the
// resource changes. The current value is emitted first. Failed watches are
// re-established after the retry delay until ctx is canceled.
func (w *Watcher) Watch(ctx context.Context) (<-chan []byte, error) {
	out := make(chan []byte)

	go func() {
		defer close(out)

		for {
			err := w.watchLoop(ctx, out)
			if ctx.Err() != nil {
				return
			}
			if err == nil {
				return
			}
			timer := w.clock.NewTimer(w.retryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C():
			}
		}
	}()

	return out, nil
}

// watchLoop emits the current value, then follows watch events until the
// watch fails or ctx ends.
func (w *Watcher) watchLoop(ctx context.Context, out chan<- []byte) error {
	value, version, err := w.getValue(ctx)
	if err != nil {
		return err
	}
	if value != nil && !send(ctx, out, value) {
		return ctx.Err()
	}

	events, err := w.startWatch(ctx, version)
	if err != nil {
		return fmt.Errorf("failed to watch %s %s/%s: %w", w.resourceType, w.namespace, w.name, err)
	}
	defer events.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events.ResultChan():
			if !ok {
				return errWatchClosed
			}
			switch event.Type {
			case watch.Error:
				return fmt.Errorf("watch error: %v", event.Object)
			case watch.Added, watch.Modified:
				if value := w.extractValue(event.Object); value != nil && !send(ctx, out, value) {
					return ctx.Err()
				}
			}
		}
	}
}

func (w *Watcher) startWatch(ctx context.Context, version string) (watch.Interface, error) {
	opts := metav1.ListOptions{
		FieldSelector:   fields.OneTermEqualSelector("metadata.name", w.name).String(),
		ResourceVersion: version,
	}
	if w.resourceType == Secret {
		return w.client.CoreV1().Secrets(w.namespace).Watch(ctx, opts)
	}
	return w.client.CoreV1().ConfigMaps(w.namespace).Watch(ctx, opts)
}

// getValue reads the resource and returns the data key's value with the
// resource version to resume watching from.
func (w *Watcher) getValue(ctx context.Context) ([]byte, string, error) {
	var obj metav1.Object
	var err error
	if w.resourceType == Secret {
		obj, err = w.client.CoreV1().Secrets(w.namespace).Get(ctx, w.name, metav1.GetOptions{})
	} else {
		obj, err = w.client.CoreV1().ConfigMaps(w.namespace).Get(ctx, w.name, metav1.GetOptions{})
	}
	if err != nil {
		return nil, "", err
	}
	return w.extractValue(obj), obj.GetResourceVersion(), nil
}

// extractValue returns the watched data key from a resource, or nil when the
// object is of the wrong type or lacks the key.
func (w *Watcher) extractValue(obj any) []byte {
	switch o := obj.(type) {
	case *corev1.ConfigMap:
		if w.resourceType != ConfigMap {
			return nil
		}
		if v, ok := o.Data[w.key]; ok {
			return []byte(v)
		}
		return o.BinaryData[w.key]
	case *corev1.Secret:
		if w.resourceType != Secret {
			return nil
		}
		return o.Data[w.key]
	}
	return nil
}

func send(ctx context.Context, out chan<- []byte, value []byte) bool {
	select {
	case out <- value:
		return true
	case <-ctx.Done():
		return false
	}
}
