package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			TurnTimeoutSec:      120,
			ProactiveRatePerMin: 20,
		},
		Providers: ProvidersConfig{
			Active: "anthropic",
			Anthropic: AnthropicConfig{
				Model: "claude-sonnet-4-5-20250929",
			},
			Ollama: OllamaConfig{
				Host:  "http://localhost:11434",
				Model: "llama3.1",
			},
		},
		Bridge: BridgeConfig{
			MaxToolRounds: 5,
			MaxTokens:     4096,
			Temperature:   0.7,
		},
		Memory: MemoryConfig{
			Transport:  "stdio",
			TimeoutSec: 30,
		},
		Sessions: SessionsConfig{
			MaxTurns: 20,
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error — defaults plus env apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("MEMBRIDGE_ANTHROPIC_API_KEY", &c.Providers.Anthropic.APIKey)
	envStr("MEMBRIDGE_ANTHROPIC_BASE_URL", &c.Providers.Anthropic.BaseURL)
	envStr("MEMBRIDGE_OLLAMA_HOST", &c.Providers.Ollama.Host)
	envStr("MEMBRIDGE_TELEGRAM_TOKEN", &c.Channels.Telegram.Token)
	envStr("MEMBRIDGE_DISCORD_TOKEN", &c.Channels.Discord.Token)

	// Auto-enable channels if credentials are provided via env
	if c.Channels.Telegram.Token != "" {
		c.Channels.Telegram.Enabled = true
	}
	if c.Channels.Discord.Token != "" {
		c.Channels.Discord.Enabled = true
	}

	// Allow overriding active provider/model
	envStr("MEMBRIDGE_PROVIDER", &c.Providers.Active)
	envStr("MEMBRIDGE_ANTHROPIC_MODEL", &c.Providers.Anthropic.Model)
	envStr("MEMBRIDGE_OLLAMA_MODEL", &c.Providers.Ollama.Model)

	envStr("MEMBRIDGE_PERSONA_PATH", &c.Gateway.PersonaPath)
	if v := os.Getenv("MEMBRIDGE_TURN_TIMEOUT_SEC"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
			c.Gateway.TurnTimeoutSec = sec
		}
	}

	// Memory MCP server
	envStr("MEMBRIDGE_MEMORY_COMMAND", &c.Memory.Command)
	envStr("MEMBRIDGE_MEMORY_URL", &c.Memory.URL)
	envStr("MEMBRIDGE_MEMORY_TRANSPORT", &c.Memory.Transport)

	// Telemetry
	envStr("MEMBRIDGE_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("MEMBRIDGE_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("MEMBRIDGE_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("MEMBRIDGE_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("MEMBRIDGE_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}
}

// ApplyEnvOverrides re-applies environment variable overrides onto the config.
// Call after a hot reload so runtime secrets from env survive the re-parse.
func (c *Config) ApplyEnvOverrides() {
	c.applyEnvOverrides()
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
