package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultOllamaHost  = "http://localhost:11434"
	defaultOllamaModel = "llama3.1"
)

// OllamaProvider implements Provider using the Ollama /api/chat endpoint.
type OllamaProvider struct {
	host         string
	defaultModel string
	client       *http.Client
}

// NewOllamaProvider creates a new Ollama provider.
func NewOllamaProvider(opts ...OllamaOption) *OllamaProvider {
	p := &OllamaProvider{
		host:         defaultOllamaHost,
		defaultModel: defaultOllamaModel,
		client:       &http.Client{Timeout: 300 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

type OllamaOption func(*OllamaProvider)

func WithOllamaHost(host string) OllamaOption {
	return func(p *OllamaProvider) {
		if host != "" {
			p.host = strings.TrimRight(host, "/")
		}
	}
}

func WithOllamaModel(model string) OllamaOption {
	return func(p *OllamaProvider) {
		if model != "" {
			p.defaultModel = model
		}
	}
}

func (p *OllamaProvider) Name() string         { return "ollama" }
func (p *OllamaProvider) DefaultModel() string { return p.defaultModel }

func (p *OllamaProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	body := p.buildRequestBody(model, req)

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.host+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("ollama: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama: request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("ollama: status %d: %s", httpResp.StatusCode, string(respBody))
	}

	var resp ollamaResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("ollama: decode response: %w", err)
	}

	return p.parseResponse(&resp), nil
}

func (p *OllamaProvider) buildRequestBody(model string, req ChatRequest) map[string]interface{} {
	var messages []map[string]interface{}

	if req.System != "" {
		messages = append(messages, map[string]interface{}{
			"role":    "system",
			"content": req.System,
		})
	}

	for _, msg := range req.Messages {
		m := map[string]interface{}{
			"role":    msg.Role,
			"content": msg.Content,
		}
		if len(msg.ToolCalls) > 0 {
			var calls []map[string]interface{}
			for _, tc := range msg.ToolCalls {
				calls = append(calls, map[string]interface{}{
					"function": map[string]interface{}{
						"name":      tc.Name,
						"arguments": tc.Arguments,
					},
				})
			}
			m["tool_calls"] = calls
		}
		messages = append(messages, m)
	}

	body := map[string]interface{}{
		"model":    model,
		"messages": messages,
		"stream":   false,
	}

	// Tool schemas arrive pre-rendered in Ollama function-envelope dialect.
	if len(req.Tools) > 0 {
		body["tools"] = req.Tools
	}

	options := map[string]interface{}{}
	if req.Temperature > 0 {
		options["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	if len(options) > 0 {
		body["options"] = options
	}

	return body
}

func (p *OllamaProvider) parseResponse(resp *ollamaResponse) *ChatResponse {
	result := &ChatResponse{
		Content:      resp.Message.Content,
		FinishReason: "stop",
	}

	for _, tc := range resp.Message.ToolCalls {
		args := make(map[string]interface{})
		_ = json.Unmarshal(tc.Function.Arguments, &args)
		result.ToolCalls = append(result.ToolCalls, ToolCall{
			// Ollama does not assign call IDs; synthesize one so the loop can
			// correlate tool results across rounds.
			ID:        "call_" + uuid.NewString(),
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	if len(result.ToolCalls) > 0 {
		result.FinishReason = "tool_calls"
	} else if resp.DoneReason == "length" {
		result.FinishReason = "length"
	}

	result.Usage = &Usage{
		PromptTokens:     resp.PromptEvalCount,
		CompletionTokens: resp.EvalCount,
		TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
	}

	return result
}

// --- Ollama API types (internal) ---

type ollamaResponse struct {
	Message         ollamaMessage `json:"message"`
	DoneReason      string        `json:"done_reason,omitempty"`
	PromptEvalCount int           `json:"prompt_eval_count,omitempty"`
	EvalCount       int           `json:"eval_count,omitempty"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaToolCall struct {
	Function ollamaToolFunction `json:"function"`
}

type ollamaToolFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}
