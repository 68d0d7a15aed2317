package llm

import (
	"testing"
)

func TestNormalizeTools_Shapes(t *testing.T) {
	t.Parallel()

	schema := map[string]any{"type": "object", "properties": map[string]any{"query": map[string]any{"type": "string"}}}

	tests := []struct {
		name string
		raw  map[string]any
	}{
		{
			name: "fully nested",
			raw: map[string]any{
				"type": "function",
				"function": map[string]any{
					"name":        "search_kb",
					"description": "Search the knowledge base",
					"parameters":  schema,
				},
			},
		},
		{
			name: "partially nested",
			raw: map[string]any{
				"function": map[string]any{
					"name":        "search_kb",
					"description": "Search the knowledge base",
					"parameters":  schema,
				},
			},
		},
		{
			name: "flat",
			raw: map[string]any{
				"name":        "search_kb",
				"description": "Search the knowledge base",
				"parameters":  schema,
			},
		},
		{
			name: "flat with parameters_schema",
			raw: map[string]any{
				"name":              "search_kb",
				"description":       "Search the knowledge base",
				"parameters_schema": schema,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tools, err := NormalizeTools([]map[string]any{tt.raw})
			if err != nil {
				t.Fatalf("NormalizeTools: %v", err)
			}
			if len(tools) != 1 {
				t.Fatalf("tools: want 1, got %d", len(tools))
			}
			td := tools[0]
			if td.Name != "search_kb" {
				t.Errorf("name: got %q", td.Name)
			}
			if td.Description != "Search the knowledge base" {
				t.Errorf("description: got %q", td.Description)
			}
			if td.Parameters == nil {
				t.Error("parameters schema missing")
			}
		})
	}
}

func TestNormalizeTools_MissingName(t *testing.T) {
	t.Parallel()

	_, err := NormalizeTools([]map[string]any{
		{"description": "nameless"},
	})
	if err == nil {
		t.Fatal("want error for a tool without a name")
	}
}

func TestNormalizeTools_Empty(t *testing.T) {
	t.Parallel()

	tools, err := NormalizeTools(nil)
	if err != nil {
		t.Fatalf("NormalizeTools(nil): %v", err)
	}
	if tools != nil {
		t.Errorf("want nil, got %v", tools)
	}
}
