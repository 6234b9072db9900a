package mcpserver

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// indexTreeTool defines the index_tree tool.
func indexTreeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_tree",
		Description: "Index a source tree into a named index so it becomes searchable",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"index": map[string]interface{}{
					"type":        "string",
					"description": "Index name; created on first use",
				},
				"root": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the tree to index",
				},
				"languages": map[string]interface{}{
					"type":        "array",
					"description": "Restrict indexing to these languages",
					"items": map[string]interface{}{
						"type": "string",
						"enum": []string{"go", "python", "javascript", "typescript", "rust"},
					},
				},
				"force": map[string]interface{}{
					"type":        "boolean",
					"description": "Reindex files even when unchanged",
					"default":     false,
				},
			},
			Required: []string{"index", "root"},
		},
	}
}

// searchCodeTool defines the search_code tool.
func searchCodeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_code",
		Description: "Hybrid search over an indexed tree with natural language or keyword queries",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"index": map[string]interface{}{
					"type":        "string",
					"description": "Index name to search",
				},
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum results (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"mode": map[string]interface{}{
					"type":        "string",
					"description": "hybrid (vector + text), vector, or text",
					"enum":        []string{"hybrid", "vector", "text"},
					"default":     "hybrid",
				},
				"languages": map[string]interface{}{
					"type":        "array",
					"description": "Only return chunks in these languages",
					"items":       map[string]interface{}{"type": "string"},
				},
				"symbol_kinds": map[string]interface{}{
					"type":        "array",
					"description": "Only return chunks of these symbol kinds",
					"items": map[string]interface{}{
						"type": "string",
						"enum": []string{"function", "method", "class", "interface", "enum", "struct", "trait", "module", "variable"},
					},
				},
				"path_glob": map[string]interface{}{
					"type":        "string",
					"description": "Glob over file paths, e.g. internal/**",
				},
				"symbol_glob": map[string]interface{}{
					"type":        "string",
					"description": "Glob over symbol names, e.g. compute*",
				},
				"expand_context": map[string]interface{}{
					"type":        "boolean",
					"description": "Widen hits to their enclosing symbol",
					"default":     false,
				},
			},
			Required: []string{"index", "query"},
		},
	}
}

// indexStatsTool defines the index_stats tool.
func indexStatsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_stats",
		Description: "Report size, language breakdown, and health of a named index",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"index": map[string]interface{}{
					"type":        "string",
					"description": "Index name",
				},
				"include_failures": map[string]interface{}{
					"type":        "boolean",
					"description": "List files with parse or embedding failures",
					"default":     false,
				},
			},
			Required: []string{"index"},
		},
	}
}
