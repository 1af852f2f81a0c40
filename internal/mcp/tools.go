package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/mcp-memoria/internal/memerr"
	"github.com/dshills/mcp-memoria/internal/memory"
	"github.com/dshills/mcp-memoria/internal/search"
	"github.com/dshills/mcp-memoria/internal/writepipeline"
)

// MCP error codes
const (
	ErrorCodeInvalidParams  = -32602 // Invalid method parameters
	ErrorCodeInternalError = -32603 // Internal JSON-RPC error
	ErrorCodeNotFound      = -32010 // Memory not found
	ErrorCodeEmbedDegraded = -32011 // Embedding unavailable; results are lexical-only
)

var allScopes = []memory.Scope{memory.ScopeGlobal, memory.ScopePersonality, memory.ScopeProject}

func (s *Server) handleMemorySave(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	scope, err := parseScope(args, "scope")
	if err != nil {
		return nil, err
	}

	content := getStringDefault(args, "content", "")
	if content == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "content is required", map[string]interface{}{"param": "content"})
	}

	req := writepipeline.SaveRequest{
		Scope:      scope,
		Kind:       getStringDefault(args, "kind", "note"),
		Title:      getStringDefault(args, "title", ""),
		Content:    content,
		Tags:       getStringSlice(args, "tags"),
		SessionKey: getStringDefault(args, "session_key", ""),
		Cwd:        s.cwd,
	}

	result, err := s.pipeline.Save(ctx, req)
	if err != nil {
		return nil, wrapDomainErr(err)
	}

	chunksSaved := 0
	duplicates := make([]map[string]interface{}, 0)
	for _, o := range result.Outcomes {
		if o.Saved {
			chunksSaved++
			continue
		}
		duplicates = append(duplicates, map[string]interface{}{
			"chunk_index":  o.ChunkIndex,
			"duplicate_of": o.DuplicateOf,
		})
	}

	response := map[string]interface{}{
		"id":           result.ParentID,
		"chunks_saved": chunksSaved,
		"duplicates":   duplicates,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

func (s *Server) handleMemorySearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	scopes, err := parseScopes(args, "scopes")
	if err != nil {
		return nil, err
	}

	query := getStringDefault(args, "query", "")
	if query == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "query is required", map[string]interface{}{"param": "query"})
	}

	limit := getIntDefault(args, "limit", 10)
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{"param": "limit", "value": limit})
	}

	results, err := s.search.Search(ctx, search.Request{
		Query:    query,
		Scopes:   scopes,
		Cwd:      s.cwd,
		Limit:    limit,
		UseCache: true,
		Filters: memory.Filters{
			Kind: getStringDefault(args, "kind", ""),
			Tags: getStringSlice(args, "tags"),
		},
	})
	if err != nil {
		return nil, wrapDomainErr(err)
	}

	return mcp.NewToolResultText(formatJSON(searchResponse(results))), nil
}

func (s *Server) handleMemoryContext(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	// query is optional: an empty query falls back to each scope's most
	// recently updated memories (search.Engine handles this directly).
	query := getStringDefault(args, "query", "")

	limit := getIntDefault(args, "per_scope_limit", 10)
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "per_scope_limit must be between 1 and 100", map[string]interface{}{"param": "per_scope_limit", "value": limit})
	}

	perScope, err := s.search.SearchPerScope(ctx, search.Request{
		Query:    query,
		Scopes:   allScopes,
		Cwd:      s.cwd,
		Limit:    limit,
		UseCache: true,
	})
	if err != nil {
		return nil, wrapDomainErr(err)
	}

	response := make(map[string]interface{}, len(allScopes))
	for _, scope := range allScopes {
		response[string(scope)] = searchItems(perScope[scope])
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

func (s *Server) handleMemoryList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	scope, err := parseScope(args, "scope")
	if err != nil {
		return nil, err
	}

	st, err := s.router.Resolve(scope, s.cwd)
	if err != nil {
		return nil, wrapDomainErr(err)
	}

	filters := memory.Filters{
		Kind: getStringDefault(args, "kind", ""),
		Tags: getStringSlice(args, "tags"),
	}
	if since := getStringDefault(args, "since", ""); since != "" {
		t, perr := time.Parse(time.RFC3339, since)
		if perr != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "since must be RFC3339", map[string]interface{}{"param": "since", "value": since})
		}
		filters.Since = t
	}

	limit := getIntDefault(args, "limit", 20)
	offset := getIntDefault(args, "offset", 0)

	memories, err := st.List(ctx, filters, limit, offset)
	if err != nil {
		return nil, wrapDomainErr(err)
	}

	items := make([]map[string]interface{}, 0, len(memories))
	for _, m := range memories {
		items = append(items, memorySummary(m))
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{"memories": items, "count": len(items)})), nil
}

func (s *Server) handleMemoryStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	scope, err := parseScope(args, "scope")
	if err != nil {
		return nil, err
	}

	st, err := s.router.Resolve(scope, s.cwd)
	if err != nil {
		return nil, wrapDomainErr(err)
	}

	stats, err := st.Stats(ctx)
	if err != nil {
		return nil, wrapDomainErr(err)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"scope":       stats.Scope,
		"total":       stats.Total,
		"pending":     stats.Pending,
		"ready":       stats.Ready,
		"failed":      stats.Failed,
		"by_kind":     stats.ByKind,
		"store_bytes": stats.StoreBytes,
	})), nil
}

func (s *Server) handleMemoryDelete(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	scope, err := parseScope(args, "scope")
	if err != nil {
		return nil, err
	}

	id := getStringDefault(args, "id", "")
	if id == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "id is required", map[string]interface{}{"param": "id"})
	}

	st, err := s.router.Resolve(scope, s.cwd)
	if err != nil {
		return nil, wrapDomainErr(err)
	}

	if err := st.Delete(ctx, id); err != nil {
		return nil, wrapDomainErr(err)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{"deleted": true})), nil
}

func (s *Server) handleMemoryReindex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	scope, err := parseScope(args, "scope")
	if err != nil {
		return nil, err
	}

	st, err := s.router.Resolve(scope, s.cwd)
	if err != nil {
		return nil, wrapDomainErr(err)
	}

	reset, err := st.ResetFailed(ctx)
	if err != nil {
		return nil, wrapDomainErr(err)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{"reset": reset})), nil
}

func (s *Server) handleMemoryCompact(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	scope, err := parseScope(args, "scope")
	if err != nil {
		return nil, err
	}

	st, err := s.router.Resolve(scope, s.cwd)
	if err != nil {
		return nil, wrapDomainErr(err)
	}

	reclaimed, err := st.Compact(ctx)
	if err != nil {
		return nil, wrapDomainErr(err)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{"reclaimed_bytes": reclaimed})), nil
}

// Helper functions

func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{Code: code, Message: message, Data: data}
}

// MCPError represents an MCP protocol error.
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// wrapDomainErr maps an internal sentinel error to its MCP error code.
func wrapDomainErr(err error) error {
	switch {
	case errors.Is(err, memerr.ErrNotFound):
		return newMCPError(ErrorCodeNotFound, "memory not found", map[string]interface{}{"error": err.Error()})
	case errors.Is(err, memerr.ErrInvalidInput):
		return newMCPError(ErrorCodeInvalidParams, err.Error(), nil)
	case errors.Is(err, memerr.ErrEmbed):
		return newMCPError(ErrorCodeEmbedDegraded, "embedding unavailable, results are lexical-only", map[string]interface{}{"error": err.Error()})
	default:
		return newMCPError(ErrorCodeInternalError, "internal error", map[string]interface{}{"error": err.Error()})
	}
}

func parseScope(args map[string]interface{}, key string) (memory.Scope, error) {
	raw := getStringDefault(args, key, "")
	scope := memory.Scope(raw)
	if !scope.Valid() {
		return "", newMCPError(ErrorCodeInvalidParams, "scope must be one of global, personality, project", map[string]interface{}{"param": key, "value": raw})
	}
	return scope, nil
}

// parseScopes reads an optional array-of-scope argument. A missing or
// empty array returns nil, letting the search engine apply its own
// default; an invalid entry is rejected.
func parseScopes(args map[string]interface{}, key string) ([]memory.Scope, error) {
	raw, ok := args[key].([]interface{})
	if !ok || len(raw) == 0 {
		return nil, nil
	}
	out := make([]memory.Scope, 0, len(raw))
	for _, v := range raw {
		str, ok := v.(string)
		if !ok {
			return nil, newMCPError(ErrorCodeInvalidParams, "scopes must be strings", map[string]interface{}{"param": key})
		}
		scope := memory.Scope(str)
		if !scope.Valid() {
			return nil, newMCPError(ErrorCodeInvalidParams, "scope must be one of global, personality, project", map[string]interface{}{"param": key, "value": str})
		}
		out = append(out, scope)
	}
	return out, nil
}

func memorySummary(m memory.Memory) map[string]interface{} {
	return map[string]interface{}{
		"id":                m.ID,
		"scope":             string(m.Scope),
		"kind":              m.Kind,
		"title":             m.Title,
		"content":           m.Content,
		"tags":              m.Tags,
		"parent_id":         m.ParentID,
		"chunk_index":       m.ChunkIndex,
		"chunk_total":       m.ChunkTotal,
		"created_at":        m.CreatedAt.Format(time.RFC3339),
		"updated_at":        m.UpdatedAt.Format(time.RFC3339),
		"embedding_status":  string(m.EmbeddingStatus),
	}
}

func searchItems(results []memory.SearchResult) []map[string]interface{} {
	items := make([]map[string]interface{}, 0, len(results))
	for _, r := range results {
		item := memorySummary(r.Memory)
		item["score"] = r.Score
		item["dense"] = r.Dense
		item["lexical"] = r.Lexical
		item["decay"] = r.Decay
		items = append(items, item)
	}
	return items
}

func searchResponse(results []memory.SearchResult) map[string]interface{} {
	items := searchItems(results)
	return map[string]interface{}{"results": items, "count": len(items)}
}

func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

func getStringSlice(args map[string]interface{}, key string) []string {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
