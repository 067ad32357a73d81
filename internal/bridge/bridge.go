// Package bridge turns an inbound chat message into an LLM conversation
// with memory tool use and produces the reply.
package bridge

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/membridge/internal/config"
	"github.com/nextlevelbuilder/membridge/internal/persona"
	"github.com/nextlevelbuilder/membridge/internal/providers"
	"github.com/nextlevelbuilder/membridge/internal/sessions"
	"github.com/nextlevelbuilder/membridge/internal/toolreg"
)

const defaultMaxToolRounds = 5

// Config assembles a Bridge.
type Config struct {
	Provider  providers.Provider
	Registry  *toolreg.Registry
	Client    toolreg.ToolClient // nil = no memory backend
	Persona   *persona.Loader
	Providers config.ProvidersConfig
	Bridge    config.BridgeConfig
}

// Bridge owns model resolution, prompt assembly, and the tool loop.
type Bridge struct {
	provider providers.Provider
	registry *toolreg.Registry
	client   toolreg.ToolClient
	persona  *persona.Loader

	providersCfg config.ProvidersConfig
	cfg          config.BridgeConfig
	tracer       trace.Tracer
}

// New creates a Bridge.
func New(cfg Config) *Bridge {
	b := &Bridge{
		provider:     cfg.Provider,
		registry:     cfg.Registry,
		client:       cfg.Client,
		persona:      cfg.Persona,
		providersCfg: cfg.Providers,
		cfg:          cfg.Bridge,
		tracer:       otel.Tracer("membridge/bridge"),
	}
	if b.cfg.MaxToolRounds <= 0 {
		b.cfg.MaxToolRounds = defaultMaxToolRounds
	}
	return b
}

// Request is one inbound user message with its conversation context.
type Request struct {
	Channel  string
	UserID   string
	UserName string
	Text     string
	History  []sessions.Turn
}

// Reply is the bridge's answer for one turn.
type Reply struct {
	Text   string
	Usage  providers.Usage
	Rounds int // provider calls made this turn
}

// ResolveModel picks the model for a channel: the active provider's
// per-channel override when set, else its configured default, else the
// provider's built-in default.
func (b *Bridge) ResolveModel(channel string) string {
	switch b.provider.Name() {
	case "anthropic":
		if m := b.providersCfg.Anthropic.ChannelModels[channel]; m != "" {
			return m
		}
		if b.providersCfg.Anthropic.Model != "" {
			return b.providersCfg.Anthropic.Model
		}
	case "ollama":
		if m := b.providersCfg.Ollama.ChannelModels[channel]; m != "" {
			return m
		}
		if b.providersCfg.Ollama.Model != "" {
			return b.providersCfg.Ollama.Model
		}
	}
	return b.provider.DefaultModel()
}

// ToolUseEnabled resolves whether tool use is on for a channel:
// per-channel override, then the global flag, then the provider default
// (Anthropic on, Ollama off — small local models mishandle tool schemas).
func (b *Bridge) ToolUseEnabled(channel string) bool {
	if override, ok := b.cfg.ChannelToolUse[channel]; ok && override != nil {
		return *override
	}
	if b.cfg.ToolUse != nil {
		return *b.cfg.ToolUse
	}
	return b.provider.Name() == "anthropic"
}

// ProcessMessage runs one full turn: prompt assembly, the tool loop, and
// the final reply. The error path is the provider failing; tool failures
// are converted into model-visible results and never abort the turn.
func (b *Bridge) ProcessMessage(ctx context.Context, req Request) (*Reply, error) {
	ctx, span := b.tracer.Start(ctx, "bridge.process_message")
	defer span.End()

	toolUse := b.ToolUseEnabled(req.Channel) && b.registry.Ready() && b.client != nil

	memoryContext := ""
	if b.memoryContextEnabled() {
		memoryContext = b.fetchMemoryContext(ctx, req.Text)
	}

	system := b.BuildSystemPrompt(memoryContext, req.UserName, req.Channel, toolUse)

	messages := make([]providers.Message, 0, len(req.History)*2+1)
	for _, turn := range req.History {
		messages = append(messages,
			providers.Message{Role: "user", Content: turn.User},
			providers.Message{Role: "assistant", Content: turn.Assistant},
		)
	}
	messages = append(messages, providers.Message{Role: "user", Content: req.Text})

	model := b.ResolveModel(req.Channel)

	if !toolUse {
		resp, err := b.chat(ctx, model, system, messages, nil, 1)
		if err != nil {
			return nil, err
		}
		reply := &Reply{Text: resp.Content, Rounds: 1}
		reply.Usage.Add(resp.Usage)
		return reply, nil
	}

	tools := b.registry.ToolsFor(b.provider.Name())
	return b.callWithTools(ctx, model, system, messages, tools, req.Channel)
}

func (b *Bridge) memoryContextEnabled() bool {
	return b.cfg.MemoryContext == nil || *b.cfg.MemoryContext
}

func (b *Bridge) chat(ctx context.Context, model, system string, messages []providers.Message, tools []providers.ToolSchema, round int) (*providers.ChatResponse, error) {
	ctx, span := b.tracer.Start(ctx, "llm.chat")
	defer span.End()

	resp, err := b.provider.Chat(ctx, providers.ChatRequest{
		System:      system,
		Messages:    messages,
		Tools:       tools,
		Model:       model,
		MaxTokens:   b.cfg.MaxTokens,
		Temperature: b.cfg.Temperature,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("provider %s (round %d): %w", b.provider.Name(), round, err)
	}
	return resp, nil
}
