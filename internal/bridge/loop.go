package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nextlevelbuilder/membridge/internal/providers"
	"github.com/nextlevelbuilder/membridge/internal/toolreg"
)

// callWithTools runs the tool loop. Each round is one provider call; a
// response with tool calls has all of them executed and fed back before the
// next round. After MaxToolRounds tool-bearing rounds, one final call is
// made without tools so the turn always ends in text. Usage is summed over
// every call, the forced one included.
func (b *Bridge) callWithTools(ctx context.Context, model, system string, messages []providers.Message, tools []providers.ToolSchema, channel string) (*Reply, error) {
	var usage providers.Usage

	for round := 1; round <= b.cfg.MaxToolRounds; round++ {
		resp, err := b.chat(ctx, model, system, messages, tools, round)
		if err != nil {
			return nil, err
		}
		usage.Add(resp.Usage)

		if len(resp.ToolCalls) == 0 {
			reply := &Reply{Text: resp.Content, Usage: usage, Rounds: round}
			return reply, nil
		}

		slog.Debug("bridge.tool_round", "round", round, "calls", len(resp.ToolCalls))

		messages = append(messages, providers.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		messages = append(messages, b.executeToolCalls(ctx, resp.ToolCalls, channel)...)
	}

	// Budget exhausted while the model still wants tools: force a final
	// text answer by withholding the schemas.
	slog.Debug("bridge.forced_final", "rounds", b.cfg.MaxToolRounds)
	resp, err := b.chat(ctx, model, system, messages, nil, b.cfg.MaxToolRounds+1)
	if err != nil {
		return nil, err
	}
	usage.Add(resp.Usage)

	return &Reply{Text: resp.Content, Usage: usage, Rounds: b.cfg.MaxToolRounds + 1}, nil
}

// executeToolCalls runs every call of one round and returns the tool-result
// messages in the order the model issued the calls. Multiple calls run in
// parallel; results are reassembled by index.
func (b *Bridge) executeToolCalls(ctx context.Context, calls []providers.ToolCall, channel string) []providers.Message {
	if len(calls) == 1 {
		tc := calls[0]
		return []providers.Message{{
			Role:       "tool",
			Content:    b.executeToolCall(ctx, tc.Name, tc.Arguments, channel),
			ToolCallID: tc.ID,
		}}
	}

	type indexedResult struct {
		idx     int
		tc      providers.ToolCall
		content string
	}

	resultCh := make(chan indexedResult, len(calls))
	var wg sync.WaitGroup

	for i, tc := range calls {
		wg.Add(1)
		go func(idx int, tc providers.ToolCall) {
			defer wg.Done()
			resultCh <- indexedResult{
				idx:     idx,
				tc:      tc,
				content: b.executeToolCall(ctx, tc.Name, tc.Arguments, channel),
			}
		}(i, tc)
	}

	go func() { wg.Wait(); close(resultCh) }()

	collected := make([]indexedResult, 0, len(calls))
	for r := range resultCh {
		collected = append(collected, r)
	}

	sort.Slice(collected, func(i, j int) bool {
		return collected[i].idx < collected[j].idx
	})

	out := make([]providers.Message, 0, len(collected))
	for _, r := range collected {
		out = append(out, providers.Message{
			Role:       "tool",
			Content:    r.content,
			ToolCallID: r.tc.ID,
		})
	}
	return out
}

// executeToolCall invokes one backend tool. It never fails: every error
// becomes a JSON error payload the model can read and recover from.
// Mutating operations get the originating channel injected as
// source_channel unless the model supplied one.
func (b *Bridge) executeToolCall(ctx context.Context, name string, args map[string]interface{}, channel string) string {
	ctx, span := b.tracer.Start(ctx, "tool.exec")
	defer span.End()

	dotName := toolreg.ToDotName(name)
	span.SetAttributes(attribute.String("tool.name", dotName))

	if !b.registry.IsExposed(dotName) {
		slog.Warn("bridge.tool_not_exposed", "tool", name)
		return errorPayload("tool " + dotName + " is not available")
	}

	if args == nil {
		args = make(map[string]interface{})
	}
	if toolreg.IsMutating(dotName) {
		if _, present := args["source_channel"]; !present {
			args["source_channel"] = channel
		}
	}

	result, err := b.client.CallTool(ctx, dotName, args)
	if err != nil {
		span.RecordError(err)
		slog.Warn("bridge.tool_error", "tool", dotName, "error", err)
		return errorPayload(err.Error())
	}
	return result
}

// errorPayload renders an error as the JSON object tool results use.
func errorPayload(msg string) string {
	data, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		return `{"error":"tool execution failed"}`
	}
	return string(data)
}
