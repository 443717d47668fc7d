package ambient

import (
	"testing"
	"time"
)

func TestFieldKeyNames(t *testing.T) {
	tests := []struct {
		want string
		got  string
	}{
		{"key", KeyName.Field("theme").Key().Name()},
		{"subscription", KeySubscription.Field("id").Key().Name()},
		{"depth", KeyDepth.Field(1).Key().Name()},
		{"pruned", KeyPruned.Field(10).Key().Name()},
		{"remaining", KeyRemaining.Field(2).Key().Name()},
		{"error", KeyError.Field("boom").Key().Name()},
		{"state", KeyState.Field("healthy").Key().Name()},
		{"old_state", KeyOldState.Field("loading").Key().Name()},
		{"new_state", KeyNewState.Field("healthy").Key().Name()},
		{"debounce", KeyDebounce.Field(100 * time.Millisecond).Key().Name()},
		{"source", KeySource.Field(1).Key().Name()},
		{"content_type", KeyContentType.Field("application/json").Key().Name()},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("expected key %q, got %q", tt.want, tt.got)
		}
	}
}
