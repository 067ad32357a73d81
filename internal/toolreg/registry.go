// Package toolreg caches the tool capabilities of the memory backend and
// renders them into provider-specific schema dialects.
package toolreg

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nextlevelbuilder/membridge/internal/providers"
)

// Descriptor describes one backend tool in canonical (dot-form) shape.
type Descriptor struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// ToolClient is the transport to the memory backend.
type ToolClient interface {
	// ListTools returns the backend's advertised tools.
	ListTools(ctx context.Context) ([]Descriptor, error)

	// CallTool invokes a tool by canonical name and returns its text result.
	CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error)
}

// Registry holds the discovered, allowlist-filtered tool descriptors.
// Discovery runs once at startup; projections never re-fetch.
type Registry struct {
	mu          sync.RWMutex
	descriptors []Descriptor
	ready       bool
}

// NewRegistry creates an empty registry. It is valid before Initialize:
// projections return nothing and IsExposed still answers from the allowlist.
func NewRegistry() *Registry {
	return &Registry{}
}

// Initialize discovers the backend's tools. A nil client or a transport
// failure leaves the registry empty and not ready — the gateway runs
// without tool use rather than failing startup.
func (r *Registry) Initialize(ctx context.Context, client ToolClient) {
	if client == nil {
		slog.Warn("toolreg.no_backend", "hint", "memory server not configured; tool use disabled")
		return
	}

	tools, err := client.ListTools(ctx)
	if err != nil {
		slog.Warn("toolreg.discovery_failed", "error", err)
		return
	}

	filtered := make([]Descriptor, 0, len(exposedTools))
	for _, tool := range tools {
		name := ToDotName(tool.Name)
		if blockedTools[name] || !exposedSet[name] {
			continue
		}
		filtered = append(filtered, Descriptor{
			Name:        name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		})
	}

	r.mu.Lock()
	r.descriptors = filtered
	r.ready = len(filtered) > 0
	r.mu.Unlock()

	slog.Info("toolreg.initialized", "advertised", len(tools), "exposed", len(filtered))
}

// Refresh re-runs discovery against the given client.
func (r *Registry) Refresh(ctx context.Context, client ToolClient) {
	r.Initialize(ctx, client)
}

// Ready reports whether at least one exposed tool was discovered.
func (r *Registry) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ready
}

// ToolCount returns the number of exposed tools discovered.
func (r *Registry) ToolCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.descriptors)
}

// IsExposed reports whether a tool may be called. Accepts dot or underscore
// spelling. Blocked administrative tools are never exposed.
func (r *Registry) IsExposed(name string) bool {
	dot := ToDotName(name)
	if blockedTools[dot] {
		return false
	}
	return exposedSet[dot]
}

// AnthropicTools renders the cached descriptors in Anthropic dialect:
// underscore names, input_schema key, union types folded. Pure projection.
func (r *Registry) AnthropicTools() []providers.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]providers.ToolSchema, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		name := ToUnderscoreName(d.Name)
		if !IsValidAnthropicName(name) {
			slog.Warn("toolreg.invalid_anthropic_name", "tool", d.Name)
			continue
		}
		out = append(out, providers.ToolSchema{
			"name":         name,
			"description":  d.Description,
			"input_schema": NormalizeSchema(d.InputSchema),
		})
	}
	return out
}

// OllamaTools renders the cached descriptors in Ollama's function-envelope
// dialect. Dot names are kept; schemas pass through untouched.
func (r *Registry) OllamaTools() []providers.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]providers.ToolSchema, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		out = append(out, providers.ToolSchema{
			"type": "function",
			"function": map[string]interface{}{
				"name":        d.Name,
				"description": d.Description,
				"parameters":  d.InputSchema,
			},
		})
	}
	return out
}

// ToolsFor returns the dialect projection for a provider by name.
func (r *Registry) ToolsFor(provider string) []providers.ToolSchema {
	switch provider {
	case "anthropic":
		return r.AnthropicTools()
	case "ollama":
		return r.OllamaTools()
	default:
		return nil
	}
}
