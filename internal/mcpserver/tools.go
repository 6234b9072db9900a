package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/VioletCranberry/coco-search/internal/indexer"
	"github.com/VioletCranberry/coco-search/internal/searcher"
	"github.com/VioletCranberry/coco-search/internal/storage"
)

// MCP error codes.
const (
	ErrorCodeInvalidParams = -32602
	ErrorCodeInternalError = -32603
	ErrorCodeNotIndexed    = -32001
	ErrorCodeInvalidFilter = -32002
)

// MCPError is a protocol error with a code and optional detail.
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{Code: code, Message: message, Data: data}
}

func (s *Server) handleIndexTree(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	indexName := getString(args, "index", "")
	root := getString(args, "root", "")
	if indexName == "" || root == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "index and root are required", nil)
	}
	if err := validateRoot(root); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid root", map[string]interface{}{
			"reason": err.Error(),
		})
	}

	report, err := s.indexer.Submit(ctx, indexer.SubmitOptions{
		IndexName: indexName,
		Root:      root,
		Languages: getStringSlice(args, "languages"),
		Force:     getBool(args, "force", false),
	})
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"index":           indexName,
		"files_seen":      report.FilesSeen,
		"files_indexed":   report.FilesIndexed,
		"files_skipped":   report.FilesSkipped,
		"files_failed":    report.FilesFailed,
		"files_purged":    report.FilesPurged,
		"symbols_found":   report.SymbolsFound,
		"chunks_created":  report.ChunksCreated,
		"chunks_embedded": report.ChunksEmbedded,
		"embed_failures":  report.EmbedFailures,
		"duration_ms":     report.Duration.Milliseconds(),
	}
	if len(report.Errors) > 0 {
		errs := report.Errors
		if len(errs) > 5 {
			response["error_count"] = len(errs)
			errs = errs[:5]
		}
		response["errors"] = errs
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

func (s *Server) handleSearchCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	indexName := getString(args, "index", "")
	query := getString(args, "query", "")
	if indexName == "" || query == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "index and query are required", nil)
	}

	req := searcher.Request{
		IndexName:      indexName,
		Query:          query,
		Limit:          getInt(args, "limit", 0),
		Mode:           searcher.Mode(getString(args, "mode", "")),
		RRFConstant:    s.cfg.Search.RRFConstant,
		WideningFactor: s.cfg.Search.WideningFactor,
		ExpandContext:  getBool(args, "expand_context", false),
		Timeout:        s.cfg.Search.Timeout,
		Filters: &storage.SearchFilters{
			Languages:   getStringSlice(args, "languages"),
			SymbolKinds: getStringSlice(args, "symbol_kinds"),
			PathGlob:    getString(args, "path_glob", ""),
			SymbolGlob:  getString(args, "symbol_glob", ""),
		},
	}

	response, err := s.searcher.Search(ctx, req)
	switch {
	case errors.Is(err, searcher.ErrInvalidFilter), errors.Is(err, searcher.ErrEmptyQuery):
		return nil, newMCPError(ErrorCodeInvalidFilter, err.Error(), nil)
	case errors.Is(err, storage.ErrNotFound):
		return nil, newMCPError(ErrorCodeNotIndexed, "index not found, run index_tree first", nil)
	case err != nil:
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	hits := make([]map[string]interface{}, len(response.Results))
	for i, result := range response.Results {
		hit := map[string]interface{}{
			"file":       result.File,
			"start_line": result.Span.StartLine,
			"end_line":   result.Span.EndLine,
			"score":      result.Score,
			"language":   result.Language,
			"text":       result.Text,
		}
		if result.SymbolName != "" {
			hit["symbol"] = result.SymbolName
			hit["kind"] = string(result.SymbolKind)
			hit["signature"] = result.SymbolSignature
			hit["hierarchy"] = result.HierarchyPath
		}
		if result.VectorRank > 0 {
			hit["vector_rank"] = result.VectorRank
		}
		if result.TextRank > 0 {
			hit["text_rank"] = result.TextRank
		}
		if result.Expanded {
			hit["expanded"] = true
		}
		hits[i] = hit
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"query":       query,
		"mode":        string(response.Mode),
		"total":       response.TotalResults,
		"vector_hits": response.VectorHits,
		"text_hits":   response.TextHits,
		"duration_ms": response.Duration.Milliseconds(),
		"results":     hits,
	})), nil
}

func (s *Server) handleIndexStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	indexName := getString(args, "index", "")
	if indexName == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "index is required", nil)
	}

	report, err := s.indexer.Stats(ctx, indexName, getBool(args, "include_failures", false))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, newMCPError(ErrorCodeNotIndexed, "index not found", nil)
	case err != nil:
		return nil, newMCPError(ErrorCodeInternalError, "stats failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	languages := make([]map[string]interface{}, len(report.Languages))
	for i, ls := range report.Languages {
		languages[i] = map[string]interface{}{
			"language": ls.Language,
			"files":    ls.FileCount,
			"chunks":   ls.ChunkCount,
		}
	}
	response := map[string]interface{}{
		"index":              report.IndexName,
		"root":               report.RootPath,
		"provider":           report.Provider,
		"model":              report.Model,
		"dimension":          report.Dimension,
		"files":              report.FileCount,
		"symbols":            report.SymbolCount,
		"chunks":             report.ChunkCount,
		"embeddings":         report.EmbeddingCount,
		"parse_health_ratio": report.ParseHealthRatio,
		"embed_coverage":     report.EmbedCoverage,
		"staleness_age_s":    int64(report.StalenessAge.Seconds()),
		"languages":          languages,
	}
	if !report.LastIndexedAt.IsZero() {
		response["last_indexed_at"] = report.LastIndexedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	if report.Failures != nil {
		failures := make([]map[string]interface{}, len(report.Failures))
		for i, failure := range report.Failures {
			failures[i] = map[string]interface{}{
				"path":          failure.Path,
				"language":      failure.Language,
				"parse_error":   failure.ParseError,
				"embed_pending": failure.EmbedPending,
			}
		}
		response["failures"] = failures
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// validateRoot checks the index root is an absolute, readable
// directory.
func validateRoot(root string) error {
	if !filepath.IsAbs(root) {
		return errors.New("root must be an absolute path")
	}
	info, err := os.Stat(root)
	if os.IsNotExist(err) {
		return errors.New("root does not exist")
	}
	if err != nil {
		return errors.New("root is not readable")
	}
	if !info.IsDir() {
		return errors.New("root is not a directory")
	}
	return nil
}

func formatJSON(data map[string]interface{}) string {
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(encoded)
}

func getString(args map[string]interface{}, key, fallback string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return fallback
}

func getBool(args map[string]interface{}, key string, fallback bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return fallback
}

func getInt(args map[string]interface{}, key string, fallback int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return fallback
}

func getStringSlice(args map[string]interface{}, key string) []string {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
