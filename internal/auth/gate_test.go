package auth

import (
	"sync"
	"testing"

	"github.com/nextlevelbuilder/membridge/internal/config"
)

// TestIsAuthorized covers global/channel union semantics and the deny default.
func TestIsAuthorized(t *testing.T) {
	gate := NewGate(config.AuthConfig{
		AllowedUsers: []string{"1000"},
		Channels: map[string]config.FlexibleStringSlice{
			"telegram": {"2000"},
			"discord":  {},
		},
	})

	tests := []struct {
		name    string
		channel string
		userID  interface{}
		want    bool
	}{
		{"global user on any channel", "discord", "1000", true},
		{"global user on unknown channel", "slack", "1000", true},
		{"channel user on its channel", "telegram", "2000", true},
		{"channel user on another channel", "discord", "2000", false},
		{"unknown user", "telegram", "3000", false},
		{"unknown channel, unknown user", "slack", "3000", false},
		{"empty id", "telegram", "", false},
		{"nil id", "telegram", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := gate.IsAuthorized(tt.channel, tt.userID); got != tt.want {
				t.Errorf("IsAuthorized(%q, %v) = %v, want %v", tt.channel, tt.userID, got, tt.want)
			}
		})
	}
}

// TestIsAuthorizedNumericEquivalence verifies int, int64, float64 and string
// forms of the same ID all match a string allowlist entry.
func TestIsAuthorizedNumericEquivalence(t *testing.T) {
	gate := NewGate(config.AuthConfig{
		Channels: map[string]config.FlexibleStringSlice{
			"telegram": {"386246614"},
		},
	})

	ids := []interface{}{"386246614", int(386246614), int64(386246614), float64(386246614)}
	for _, id := range ids {
		if !gate.IsAuthorized("telegram", id) {
			t.Errorf("IsAuthorized(telegram, %T %v) = false, want true", id, id)
		}
	}
}

// TestEmptyAllowlistsDenyAll verifies there is no open-access fallback.
func TestEmptyAllowlistsDenyAll(t *testing.T) {
	gate := NewGate(config.AuthConfig{})
	if gate.IsAuthorized("telegram", "123") {
		t.Error("empty allowlists must deny")
	}
}

// TestHandleMismatchDoesNotAuthorize verifies the format diagnostic never
// changes the decision: a numeric sender stays denied when the allowlist
// holds handles.
func TestHandleMismatchDoesNotAuthorize(t *testing.T) {
	gate := NewGate(config.AuthConfig{
		Channels: map[string]config.FlexibleStringSlice{
			"discord": {"@alice", "bob"},
		},
	})

	// repeated lookups exercise the warn-once path
	for i := 0; i < 3; i++ {
		if gate.IsAuthorized("discord", int64(555)) {
			t.Fatal("numeric sender must not match handle entries")
		}
	}
	if !gate.IsAuthorized("discord", "@alice") {
		t.Error("exact handle entry should still match a handle sender")
	}
}

// TestReplaceConcurrentWithLookups verifies hot reload is safe while
// lookups are in flight. The denied lookups walk the warn-once path,
// which Replace resets; run with -race.
func TestReplaceConcurrentWithLookups(t *testing.T) {
	gate := NewGate(config.AuthConfig{
		Channels: map[string]config.FlexibleStringSlice{
			"discord": {"@alice", "bob"},
		},
	})

	var wg sync.WaitGroup
	done := make(chan struct{})

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					if gate.IsAuthorized("discord", int64(555)) {
						t.Error("numeric sender must stay denied")
						return
					}
				}
			}
		}()
	}

	for i := 0; i < 50; i++ {
		gate.Replace(config.AuthConfig{
			Channels: map[string]config.FlexibleStringSlice{
				"discord": {"@alice", "bob"},
			},
		})
	}
	close(done)
	wg.Wait()
}

// TestFormatMismatchWarnsOncePerChannel pins the warn-once bookkeeping:
// first numeric miss against a handle list records the channel, later
// misses do not, and a global handle list counts the same as a channel one.
func TestFormatMismatchWarnsOncePerChannel(t *testing.T) {
	t.Run("channel handle list", func(t *testing.T) {
		gate := NewGate(config.AuthConfig{
			Channels: map[string]config.FlexibleStringSlice{
				"discord": {"@alice"},
			},
		})
		if !gate.markFormatMismatch("discord") {
			t.Error("first mismatch should be recorded")
		}
		if gate.markFormatMismatch("discord") {
			t.Error("second mismatch on the same channel should be suppressed")
		}
	})

	t.Run("global handle list", func(t *testing.T) {
		gate := NewGate(config.AuthConfig{
			AllowedUsers: []string{"@alice"},
		})
		if !gate.markFormatMismatch("telegram") {
			t.Error("handles in the global list should trigger the diagnostic")
		}
		if gate.markFormatMismatch("telegram") {
			t.Error("warn-once must hold for the global case too")
		}
	})

	t.Run("numeric lists stay quiet", func(t *testing.T) {
		gate := NewGate(config.AuthConfig{
			AllowedUsers: []string{"1000"},
			Channels: map[string]config.FlexibleStringSlice{
				"discord": {"2000"},
			},
		})
		if gate.markFormatMismatch("discord") {
			t.Error("numeric-only lists are not a format mismatch")
		}
	})

	t.Run("replace resets warn-once", func(t *testing.T) {
		gate := NewGate(config.AuthConfig{
			AllowedUsers: []string{"@alice"},
		})
		gate.markFormatMismatch("telegram")
		gate.Replace(config.AuthConfig{AllowedUsers: []string{"@alice"}})
		if !gate.markFormatMismatch("telegram") {
			t.Error("Replace should clear recorded channels")
		}
	})
}

// TestReplaceSwapsAllowlists verifies hot reload takes effect.
func TestReplaceSwapsAllowlists(t *testing.T) {
	gate := NewGate(config.AuthConfig{AllowedUsers: []string{"1"}})
	if !gate.IsAuthorized("telegram", "1") {
		t.Fatal("initial allowlist should authorize")
	}

	gate.Replace(config.AuthConfig{AllowedUsers: []string{"2"}})
	if gate.IsAuthorized("telegram", "1") {
		t.Error("old entry should be gone after Replace")
	}
	if !gate.IsAuthorized("telegram", "2") {
		t.Error("new entry should authorize after Replace")
	}
}

// TestNormalizeID pins the canonical forms.
func TestNormalizeID(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{"  42 ", "42"},
		{int(42), "42"},
		{int64(9007199254740993), "9007199254740993"},
		{float64(386246614), "386246614"},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := NormalizeID(tt.in); got != tt.want {
			t.Errorf("NormalizeID(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
