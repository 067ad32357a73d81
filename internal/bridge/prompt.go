package bridge

import (
	"context"
	"log/slog"
	"strings"
)

const memoryToolInstructions = `## Memory Tools
You have tools for a persistent memory store. Use memory.recall to look up
facts before claiming you do not know something. When the user shares a
lasting fact about themselves, their preferences, or their projects, store
it with memory.remember. Remove facts the user corrects or retracts with
memory.forget. Do not narrate tool calls; just use them.`

// BuildSystemPrompt assembles the system prompt for one turn: persona,
// conversation framing, recalled memory context, and tool instructions
// (only when tool use is on for this turn).
func (b *Bridge) BuildSystemPrompt(memoryContext, userName, channel string, toolUse bool) string {
	var sb strings.Builder

	sb.WriteString(b.persona.Text())
	sb.WriteString("\n\n")

	if userName != "" {
		sb.WriteString("You are talking with " + userName + " on " + channel + ".")
	} else {
		sb.WriteString("You are talking with a user on " + channel + ".")
	}

	if memoryContext != "" {
		sb.WriteString("\n\n## Memory Context\n")
		sb.WriteString(memoryContext)
	}

	if toolUse {
		sb.WriteString("\n\n")
		sb.WriteString(memoryToolInstructions)
	}

	return sb.String()
}

// fetchMemoryContext pre-loads relevant memory for the incoming text so the
// model has it without spending a tool round. Best effort: any failure
// yields an empty context.
func (b *Bridge) fetchMemoryContext(ctx context.Context, text string) string {
	if b.client == nil || !b.registry.Ready() || !b.registry.IsExposed("memory.context") {
		return ""
	}

	result, err := b.client.CallTool(ctx, "memory.context", map[string]interface{}{
		"query": text,
	})
	if err != nil {
		slog.Debug("bridge.memory_context_failed", "error", err)
		return ""
	}
	return strings.TrimSpace(result)
}
