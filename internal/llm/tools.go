package llm

import (
	"fmt"

	"github.com/voxbridge-ai/voxbridge/pkg/provider/llm"
)

// NormalizeTools converts raw tool definitions into the canonical
// llm.ToolDefinition shape. Agent configurations arrive with tools in three
// layouts, all of which are accepted:
//
//  1. fully nested: {"type": "function", "function": {"name": ..., "description": ..., "parameters": ...}}
//  2. partially nested: {"function": {"name": ..., ...}} without the type tag
//  3. flat: {"name": ..., "description": ..., "parameters": ...}
//
// The parameters schema may appear under "parameters" or "parameters_schema".
// A definition without a name is rejected.
func NormalizeTools(raw []map[string]any) ([]llm.ToolDefinition, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	tools := make([]llm.ToolDefinition, 0, len(raw))
	for i, entry := range raw {
		spec := entry
		if fn, ok := entry["function"].(map[string]any); ok {
			spec = fn
		}

		name, _ := spec["name"].(string)
		if name == "" {
			return nil, fmt.Errorf("tool %d: missing name", i)
		}
		desc, _ := spec["description"].(string)

		params, _ := spec["parameters"].(map[string]any)
		if params == nil {
			params, _ = spec["parameters_schema"].(map[string]any)
		}

		tools = append(tools, llm.ToolDefinition{
			Name:        name,
			Description: desc,
			Parameters:  params,
		})
	}
	return tools, nil
}
