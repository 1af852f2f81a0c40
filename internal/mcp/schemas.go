package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

var scopeEnum = []string{"global", "personality", "project"}

func memorySaveTool() mcp.Tool {
	return mcp.Tool{
		Name:        "memory_save",
		Description: "Save content into persistent memory, chunking long text and skipping near-duplicates",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"scope": map[string]interface{}{
					"type":        "string",
					"description": "Which store to save into",
					"enum":        scopeEnum,
				},
				"kind": map[string]interface{}{
					"type":        "string",
					"description": "Free-form category, e.g. 'note', 'decision', 'conversation'",
				},
				"title": map[string]interface{}{
					"type":        "string",
					"description": "Optional short title",
				},
				"content": map[string]interface{}{
					"type":        "string",
					"description": "The text to remember",
				},
				"tags": map[string]interface{}{
					"type":        "array",
					"description": "Free-form tags",
					"items":       map[string]interface{}{"type": "string"},
				},
				"session_key": map[string]interface{}{
					"type":        "string",
					"description": "If set, upserts a single row per key instead of chunking (for running conversation logs)",
				},
			},
			Required: []string{"scope", "content"},
		},
	}
}

func memorySearchTool() mcp.Tool {
	return mcp.Tool{
		Name:        "memory_search",
		Description: "Hybrid dense+lexical search across one or more memory scopes",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"scopes": map[string]interface{}{
					"type":        "array",
					"description": "Which stores to search; defaults to the project scope if omitted",
					"items":       map[string]interface{}{"type": "string", "enum": scopeEnum},
				},
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"kind": map[string]interface{}{
					"type":        "string",
					"description": "Filter to a single kind",
				},
				"tags": map[string]interface{}{
					"type":        "array",
					"description": "Filter to memories carrying any of these tags",
					"items":       map[string]interface{}{"type": "string"},
				},
			},
			Required: []string{"query"},
		},
	}
}

func memoryContextTool() mcp.Tool {
	return mcp.Tool{
		Name:        "memory_context",
		Description: "Search all three memory scopes at once, returning each scope's own top results, for assembling a session's opening context",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query; if omitted, each scope returns its most recently updated memories",
				},
				"per_scope_limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results per scope (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
			},
		},
	}
}

func memoryListTool() mcp.Tool {
	return mcp.Tool{
		Name:        "memory_list",
		Description: "List memories in a scope, newest first, with optional filters",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"scope": map[string]interface{}{
					"type": "string",
					"enum": scopeEnum,
				},
				"kind": map[string]interface{}{"type": "string"},
				"tags": map[string]interface{}{
					"type":  "array",
					"items": map[string]interface{}{"type": "string"},
				},
				"since": map[string]interface{}{
					"type":        "string",
					"description": "RFC3339 timestamp; only return memories updated at or after this time",
				},
				"limit": map[string]interface{}{
					"type":    "integer",
					"default": 20,
					"minimum": 1,
					"maximum": 200,
				},
				"offset": map[string]interface{}{
					"type":    "integer",
					"default": 0,
					"minimum": 0,
				},
			},
			Required: []string{"scope"},
		},
	}
}

func memoryStatsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "memory_stats",
		Description: "Report memory counts and store size for a scope",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"scope": map[string]interface{}{
					"type": "string",
					"enum": scopeEnum,
				},
			},
			Required: []string{"scope"},
		},
	}
}

func memoryDeleteTool() mcp.Tool {
	return mcp.Tool{
		Name:        "memory_delete",
		Description: "Delete one memory by id",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"scope": map[string]interface{}{
					"type": "string",
					"enum": scopeEnum,
				},
				"id": map[string]interface{}{"type": "string"},
			},
			Required: []string{"scope", "id"},
		},
	}
}

func memoryReindexTool() mcp.Tool {
	return mcp.Tool{
		Name:        "memory_reindex",
		Description: "Reset memories stuck in a failed embedding state back to pending, so the background worker retries them",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"scope": map[string]interface{}{
					"type": "string",
					"enum": scopeEnum,
				},
			},
			Required: []string{"scope"},
		},
	}
}

func memoryCompactTool() mcp.Tool {
	return mcp.Tool{
		Name:        "memory_compact",
		Description: "Rebuild the full-text index and reclaim disk space for a scope's store",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"scope": map[string]interface{}{
					"type": "string",
					"enum": scopeEnum,
				},
			},
			Required: []string{"scope"},
		},
	}
}
