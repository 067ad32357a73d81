package config

import (
	"encoding/json"
	"fmt"
	"sync"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON.
// Allowlists are commonly edited by hand and Telegram IDs are numeric,
// so bare numbers must parse as their decimal string form.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the root configuration for the membridge gateway.
type Config struct {
	Gateway   GatewayConfig   `json:"gateway"`
	Auth      AuthConfig      `json:"auth"`
	Providers ProvidersConfig `json:"providers"`
	Bridge    BridgeConfig    `json:"bridge"`
	Channels  ChannelsConfig  `json:"channels"`
	Memory    MemoryConfig    `json:"memory"`
	Sessions  SessionsConfig  `json:"sessions"`
	Announce  []AnnounceEntry `json:"announce,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	mu        sync.RWMutex
}

// GatewayConfig holds process-level settings.
type GatewayConfig struct {
	PersonaPath         string `json:"persona_path,omitempty"`          // persona file (empty = built-in default)
	TurnTimeoutSec      int    `json:"turn_timeout_sec,omitempty"`      // wall-clock budget per turn (default 120)
	ProactiveRatePerMin int    `json:"proactive_rate_per_min,omitempty"` // proactive send rate limit (default 20)
}

// AuthConfig holds the sender allowlists.
// AllowedUsers grants access on every channel; Channels grants per-channel.
type AuthConfig struct {
	AllowedUsers FlexibleStringSlice            `json:"allowed_users,omitempty"`
	Channels     map[string]FlexibleStringSlice `json:"channels,omitempty"`
}

// ProvidersConfig selects and configures the active LLM provider.
type ProvidersConfig struct {
	Active    string          `json:"active"` // "anthropic" or "ollama"
	Anthropic AnthropicConfig `json:"anthropic,omitempty"`
	Ollama    OllamaConfig    `json:"ollama,omitempty"`
}

// AnthropicConfig configures the Anthropic Messages API provider.
// APIKey is never persisted — env MEMBRIDGE_ANTHROPIC_API_KEY only.
type AnthropicConfig struct {
	APIKey        string            `json:"-"`
	BaseURL       string            `json:"base_url,omitempty"`
	Model         string            `json:"model,omitempty"`
	ChannelModels map[string]string `json:"channel_models,omitempty"` // per-channel model override
}

// OllamaConfig configures the Ollama /api/chat provider.
type OllamaConfig struct {
	Host          string            `json:"host,omitempty"` // e.g. "http://localhost:11434"
	Model         string            `json:"model,omitempty"`
	ChannelModels map[string]string `json:"channel_models,omitempty"`
}

// BridgeConfig tunes the conversation bridge.
type BridgeConfig struct {
	ToolUse        *bool            `json:"tool_use,omitempty"`         // nil = provider default
	ChannelToolUse map[string]*bool `json:"channel_tool_use,omitempty"` // per-channel override
	MaxToolRounds  int              `json:"max_tool_rounds,omitempty"`  // tool-bearing rounds per turn (default 5)
	MaxTokens      int              `json:"max_tokens,omitempty"`
	Temperature    float64          `json:"temperature,omitempty"`
	MemoryContext  *bool            `json:"memory_context,omitempty"` // prefetch memory context into the system prompt (default true)
}

// ChannelsConfig holds channel adapter settings.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram,omitempty"`
	Discord  DiscordConfig  `json:"discord,omitempty"`
}

// TelegramConfig configures the Telegram adapter.
type TelegramConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Token   string `json:"-"` // env MEMBRIDGE_TELEGRAM_TOKEN only
}

// DiscordConfig configures the Discord adapter.
type DiscordConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Token   string `json:"-"` // env MEMBRIDGE_DISCORD_TOKEN only
}

// MemoryConfig configures the connection to the memory MCP server.
type MemoryConfig struct {
	Transport  string            `json:"transport,omitempty"` // "stdio" (default), "sse", "streamable-http"
	Command    string            `json:"command,omitempty"`   // stdio: executable
	Args       []string          `json:"args,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
	URL        string            `json:"url,omitempty"` // sse / streamable-http endpoint
	Headers    map[string]string `json:"headers,omitempty"`
	TimeoutSec int               `json:"timeout_sec,omitempty"` // per-call timeout (default 30)
}

// SessionsConfig bounds the in-memory conversation history.
type SessionsConfig struct {
	MaxTurns int `json:"max_turns,omitempty"` // turns kept per session (default 20)
}

// AnnounceEntry schedules a proactive message on a cron expression.
type AnnounceEntry struct {
	Cron    string `json:"cron"`
	Channel string `json:"channel"`
	To      string `json:"to"` // chat/user ID on the target channel
	Text    string `json:"text"`
}

// TelemetryConfig configures OpenTelemetry trace export.
// When enabled, bridge spans are exported to an OTLP-compatible backend.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`     // OTLP endpoint (e.g. "localhost:4317")
	Protocol    string            `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`     // skip TLS (local dev)
	ServiceName string            `json:"service_name,omitempty"` // default "membridge"
	Headers     map[string]string `json:"headers,omitempty"`
}

// ReplaceFrom copies all data fields from src into c, preserving c's mutex.
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Gateway = src.Gateway
	c.Auth = src.Auth
	c.Providers = src.Providers
	c.Bridge = src.Bridge
	c.Channels = src.Channels
	c.Memory = src.Memory
	c.Sessions = src.Sessions
	c.Announce = src.Announce
	c.Telemetry = src.Telemetry
}
