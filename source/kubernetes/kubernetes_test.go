package kubernetes

import (
	"context"
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/zoobzio/ambient"
)

func newConfigMap(data string) *corev1.ConfigMap {
	return &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "myconfig",
			Namespace: "default",
		},
		Data: map[string]string{
			"theme.json": data,
		},
	}
}

func receive(t *testing.T, ch <-chan []byte) string {
	t.Helper()
	select {
	case data, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return string(data)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for value")
	}
	return ""
}

func TestWatcher_EmitsInitialValue_ConfigMap(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := fake.NewSimpleClientset(newConfigMap(`"dark"`))

	ch, err := New(client, "default", "myconfig", "theme.json").Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	if got := receive(t, ch); got != `"dark"` {
		t.Errorf("expected dark, got %q", got)
	}
}

func TestWatcher_EmitsInitialValue_Secret(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := fake.NewSimpleClientset(&corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "mysecret",
			Namespace: "default",
		},
		Data: map[string][]byte{
			"token": []byte(`"secret123"`),
		},
	})

	ch, err := New(client, "default", "mysecret", "token", WithResourceType(Secret)).Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	if got := receive(t, ch); got != `"secret123"` {
		t.Errorf("expected secret, got %q", got)
	}
}

func TestWatcher_EmitsOnUpdate(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := fake.NewSimpleClientset(newConfigMap(`"light"`))

	ch, err := New(client, "default", "myconfig", "theme.json").Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	receive(t, ch)

	// The watch is established after the initial read, so keep updating
	// until an event arrives.
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case data := <-ch:
			if string(data) != `"dark"` {
				t.Errorf("expected dark, got %q", data)
			}
			return
		case <-ticker.C:
			_, err := client.CoreV1().ConfigMaps("default").Update(ctx, newConfigMap(`"dark"`), metav1.UpdateOptions{})
			if err != nil {
				t.Fatalf("update failed: %v", err)
			}
		case <-deadline:
			t.Fatal("timeout waiting for update")
		}
	}
}

func TestWatcher_ClosesOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)

	client := fake.NewSimpleClientset(newConfigMap(`"light"`))

	ch, err := New(client, "default", "myconfig", "theme.json").Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	receive(t, ch)

	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel to close")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for channel close")
	}
}

func TestWatcher_RetriesMissingResource(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := fake.NewSimpleClientset()

	ch, err := New(client, "default", "myconfig", "theme.json", WithRetryDelay(10*time.Millisecond)).Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	if _, err := client.CoreV1().ConfigMaps("default").Create(ctx, newConfigMap(`"late"`), metav1.CreateOptions{}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if got := receive(t, ch); got != `"late"` {
		t.Errorf("expected late, got %q", got)
	}
}

func TestOptions(t *testing.T) {
	client := fake.NewSimpleClientset()

	w := New(client, "default", "myconfig", "theme.json")
	if w.resourceType != ConfigMap {
		t.Errorf("expected default ConfigMap, got %v", w.resourceType)
	}
	if w.retryDelay != DefaultRetryDelay {
		t.Errorf("expected default retry delay, got %v", w.retryDelay)
	}

	w = New(client, "default", "mysecret", "token", WithResourceType(Secret), WithRetryDelay(time.Minute))
	if w.resourceType != Secret || w.retryDelay != time.Minute {
		t.Errorf("options not applied: %+v", w)
	}
}

func TestResourceType_String(t *testing.T) {
	if ConfigMap.String() != "configmap" || Secret.String() != "secret" {
		t.Errorf("unexpected names %q %q", ConfigMap, Secret)
	}
}

func TestExtractValue(t *testing.T) {
	client := fake.NewSimpleClientset()
	cmWatcher := New(client, "default", "myconfig", "theme.json")
	secretWatcher := New(client, "default", "mysecret", "theme.json", WithResourceType(Secret))

	cm := newConfigMap(`"dark"`)
	binary := &corev1.ConfigMap{BinaryData: map[string][]byte{"theme.json": []byte(`"bin"`)}}
	secret := &corev1.Secret{Data: map[string][]byte{"theme.json": []byte(`"s"`)}}

	tests := []struct {
		name string
		w    *Watcher
		obj  any
		want string
	}{
		{"configmap data", cmWatcher, cm, `"dark"`},
		{"configmap binary data", cmWatcher, binary, `"bin"`},
		{"secret", secretWatcher, secret, `"s"`},
		{"configmap watcher ignores secret", cmWatcher, secret, ""},
		{"secret watcher ignores configmap", secretWatcher, cm, ""},
		{"unknown object", cmWatcher, "nope", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(tt.w.extractValue(tt.obj)); got != tt.want {
				t.Errorf("extractValue() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWatcher_DrivesBinding(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := fake.NewSimpleClientset(newConfigMap(`"dark"`))

	c := ambient.New()
	theme := ambient.NewKey("theme", "light")
	b := ambient.Bind(c, theme, New(client, "default", "myconfig", "theme.json"))
	if err := b.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if got := ambient.Get(c, theme); got != "dark" {
		t.Errorf("expected dark, got %q", got)
	}
}
