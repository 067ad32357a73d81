package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestFlexibleStringSlice verifies numeric JSON array entries parse as strings.
func TestFlexibleStringSlice(t *testing.T) {
	tests := []struct {
		name string
		json string
		want []string
	}{
		{"strings", `["alice","bob"]`, []string{"alice", "bob"}},
		{"numbers", `[386246614, 99]`, []string{"386246614", "99"}},
		{"mixed", `["@alice", 386246614]`, []string{"@alice", "386246614"}},
		{"empty", `[]`, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f FlexibleStringSlice
			if err := f.UnmarshalJSON([]byte(tt.json)); err != nil {
				t.Fatalf("UnmarshalJSON(%s): %v", tt.json, err)
			}
			if len(f) != len(tt.want) {
				t.Fatalf("got %v, want %v", f, tt.want)
			}
			for i := range f {
				if f[i] != tt.want[i] {
					t.Errorf("entry %d: got %q, want %q", i, f[i], tt.want[i])
				}
			}
		})
	}
}

// TestLoadMissingFile verifies defaults apply when no config file exists.
func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Providers.Active != "anthropic" {
		t.Errorf("default provider: got %q, want anthropic", cfg.Providers.Active)
	}
	if cfg.Bridge.MaxToolRounds != 5 {
		t.Errorf("default max_tool_rounds: got %d, want 5", cfg.Bridge.MaxToolRounds)
	}
	if cfg.Sessions.MaxTurns != 20 {
		t.Errorf("default max_turns: got %d, want 20", cfg.Sessions.MaxTurns)
	}
}

// TestLoadJSON5 verifies JSON5 syntax (comments, trailing commas) is accepted
// and numeric allowlist entries normalize to strings.
func TestLoadJSON5(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		// global allowlist
		auth: {
			allowed_users: [386246614, "@bob"],
			channels: {
				telegram: ["99001122"],
			},
		},
		providers: { active: "ollama" },
		bridge: { max_tool_rounds: 3 },
	}`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Auth.AllowedUsers; len(got) != 2 || got[0] != "386246614" || got[1] != "@bob" {
		t.Errorf("allowed_users: got %v", got)
	}
	if got := cfg.Auth.Channels["telegram"]; len(got) != 1 || got[0] != "99001122" {
		t.Errorf("channels.telegram: got %v", got)
	}
	if cfg.Providers.Active != "ollama" {
		t.Errorf("active provider: got %q", cfg.Providers.Active)
	}
	if cfg.Bridge.MaxToolRounds != 3 {
		t.Errorf("max_tool_rounds: got %d", cfg.Bridge.MaxToolRounds)
	}
}

// TestEnvOverrides verifies env vars overlay file values and auto-enable channels.
func TestEnvOverrides(t *testing.T) {
	t.Setenv("MEMBRIDGE_TELEGRAM_TOKEN", "tok-123")
	t.Setenv("MEMBRIDGE_PROVIDER", "ollama")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Channels.Telegram.Token != "tok-123" {
		t.Errorf("telegram token: got %q", cfg.Channels.Telegram.Token)
	}
	if !cfg.Channels.Telegram.Enabled {
		t.Error("telegram should auto-enable when token is set via env")
	}
	if cfg.Providers.Active != "ollama" {
		t.Errorf("active provider: got %q", cfg.Providers.Active)
	}
}
