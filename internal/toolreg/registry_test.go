package toolreg

import (
	"context"
	"errors"
	"testing"
)

type fakeClient struct {
	tools   []Descriptor
	listErr error
}

func (f *fakeClient) ListTools(ctx context.Context) ([]Descriptor, error) {
	return f.tools, f.listErr
}

func (f *fakeClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	return "", nil
}

func allExposedDescriptors() []Descriptor {
	out := make([]Descriptor, 0, len(exposedTools))
	for _, name := range exposedTools {
		out = append(out, Descriptor{
			Name:        name,
			Description: "desc " + name,
			InputSchema: map[string]interface{}{"type": "object"},
		})
	}
	return out
}

// TestAllowlistSize pins the exposed set at exactly 14 operations.
func TestAllowlistSize(t *testing.T) {
	if len(exposedTools) != 14 {
		t.Fatalf("exposed tools: got %d, want 14", len(exposedTools))
	}
	seen := map[string]bool{}
	for _, name := range exposedTools {
		if seen[name] {
			t.Errorf("duplicate allowlist entry %q", name)
		}
		seen[name] = true
		if blockedTools[name] {
			t.Errorf("%q is both exposed and blocked", name)
		}
	}
}

// TestInitializeFiltersAllowlist verifies unlisted and blocked tools are
// dropped at discovery.
func TestInitializeFiltersAllowlist(t *testing.T) {
	client := &fakeClient{tools: append(allExposedDescriptors(),
		Descriptor{Name: "memory.purge"},
		Descriptor{Name: "memory.flush_buffer"},
		Descriptor{Name: "memory.merge_entities"},
		Descriptor{Name: "weather.lookup"},
	)}

	reg := NewRegistry()
	reg.Initialize(context.Background(), client)

	if !reg.Ready() {
		t.Fatal("registry should be ready after successful discovery")
	}
	if reg.ToolCount() != 14 {
		t.Errorf("tool count: got %d, want 14", reg.ToolCount())
	}
}

// TestInitializeFailureLeavesEmptyRegistry verifies a transport failure
// yields a usable, empty, not-ready registry.
func TestInitializeFailureLeavesEmptyRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Initialize(context.Background(), &fakeClient{listErr: errors.New("connection refused")})

	if reg.Ready() {
		t.Error("registry must not be ready after failed discovery")
	}
	if reg.ToolCount() != 0 {
		t.Errorf("tool count: got %d, want 0", reg.ToolCount())
	}
	if got := reg.AnthropicTools(); len(got) != 0 {
		t.Errorf("anthropic projection: got %d entries", len(got))
	}
	if got := reg.OllamaTools(); len(got) != 0 {
		t.Errorf("ollama projection: got %d entries", len(got))
	}
}

// TestInitializeNilClient verifies a nil client is tolerated.
func TestInitializeNilClient(t *testing.T) {
	reg := NewRegistry()
	reg.Initialize(context.Background(), nil)
	if reg.Ready() {
		t.Error("registry must not be ready without a backend")
	}
}

// TestIsExposed covers dot and underscore spellings plus blocked names.
func TestIsExposed(t *testing.T) {
	reg := NewRegistry()

	tests := []struct {
		name string
		want bool
	}{
		{"memory.recall", true},
		{"memory_recall", true},
		{"memory.list_entities", true},
		{"memory_list_entities", true},
		{"memory.purge", false},
		{"memory_purge", false},
		{"memory.flush_buffer", false},
		{"memory.merge_entities", false},
		{"shell.exec", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := reg.IsExposed(tt.name); got != tt.want {
			t.Errorf("IsExposed(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

// TestAnthropicProjection verifies underscore names, the input_schema key,
// and union-type folding.
func TestAnthropicProjection(t *testing.T) {
	client := &fakeClient{tools: []Descriptor{
		{
			Name:        "memory.recall",
			Description: "search memory",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query": map[string]interface{}{
						"type":        []interface{}{"string", "number"},
						"description": "search text",
					},
				},
			},
		},
	}}

	reg := NewRegistry()
	reg.Initialize(context.Background(), client)

	tools := reg.AnthropicTools()
	if len(tools) != 1 {
		t.Fatalf("got %d tools", len(tools))
	}
	tool := tools[0]
	if tool["name"] != "memory_recall" {
		t.Errorf("name: got %v", tool["name"])
	}
	if !IsValidAnthropicName(tool["name"].(string)) {
		t.Errorf("name %v fails Anthropic alphabet", tool["name"])
	}
	if _, ok := tool["input_schema"]; !ok {
		t.Fatal("input_schema key missing")
	}

	schema := tool["input_schema"].(map[string]interface{})
	prop := schema["properties"].(map[string]interface{})["query"].(map[string]interface{})
	if prop["type"] != "string" {
		t.Errorf("folded type: got %v", prop["type"])
	}
	desc := prop["description"].(string)
	if desc == "search text" {
		t.Error("alternate types should be appended to the description")
	}
}

// TestOllamaProjection verifies the function envelope and untouched dot names.
func TestOllamaProjection(t *testing.T) {
	client := &fakeClient{tools: []Descriptor{
		{Name: "memory.list_entities", Description: "list", InputSchema: map[string]interface{}{"type": "object"}},
	}}

	reg := NewRegistry()
	reg.Initialize(context.Background(), client)

	tools := reg.OllamaTools()
	if len(tools) != 1 {
		t.Fatalf("got %d tools", len(tools))
	}
	if tools[0]["type"] != "function" {
		t.Errorf("envelope type: got %v", tools[0]["type"])
	}
	fn := tools[0]["function"].(map[string]interface{})
	if fn["name"] != "memory.list_entities" {
		t.Errorf("name: got %v", fn["name"])
	}
	if _, ok := fn["parameters"]; !ok {
		t.Error("parameters key missing")
	}
}

// TestNameRoundTrip verifies dot→underscore→dot is lossless for every
// exposed tool, including multi-underscore operation names.
func TestNameRoundTrip(t *testing.T) {
	for _, dot := range exposedTools {
		under := ToUnderscoreName(dot)
		if !IsValidAnthropicName(under) {
			t.Errorf("underscore form %q invalid", under)
		}
		if back := ToDotName(under); back != dot {
			t.Errorf("round trip %q -> %q -> %q", dot, under, back)
		}
	}
}

// TestIsMutating pins the write set.
func TestIsMutating(t *testing.T) {
	mutating := []string{
		"memory.remember", "memory.forget", "memory.batch",
		"memory.add_observations", "memory.delete_observations",
		"memory.create_relations", "memory.delete_relations",
	}
	for _, name := range mutating {
		if !IsMutating(name) {
			t.Errorf("%q should be mutating", name)
		}
	}
	readonly := []string{
		"memory.recall", "memory.context", "memory.stats", "memory.recent",
		"memory.list_entities", "memory.get_entity", "memory.search_entities",
	}
	for _, name := range readonly {
		if IsMutating(name) {
			t.Errorf("%q should be read-only", name)
		}
	}
}

// TestNormalizeSchemaNested verifies recursion into items and nested properties.
func TestNormalizeSchemaNested(t *testing.T) {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"entries": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": []interface{}{"string", "object"},
				},
			},
		},
	}

	out := NormalizeSchema(schema)
	items := out["properties"].(map[string]interface{})["entries"].(map[string]interface{})["items"].(map[string]interface{})
	if items["type"] != "string" {
		t.Errorf("nested folded type: got %v", items["type"])
	}

	// input must be untouched
	orig := schema["properties"].(map[string]interface{})["entries"].(map[string]interface{})["items"].(map[string]interface{})
	if _, isSlice := orig["type"].([]interface{}); !isSlice {
		t.Error("NormalizeSchema must not mutate its input")
	}
}
