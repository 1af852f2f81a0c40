// Package mcp implements the Model Context Protocol (MCP) server that
// exposes the memory engine to AI coding assistants over stdio.
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// # Tools
//
//   - memory_save: persist content into a scope, chunking and
//     deduplicating as needed
//   - memory_search: hybrid dense+lexical search across one or more
//     scopes (the project scope when none is named)
//   - memory_context: search across all scopes, for assembling a
//     session's opening context
//   - memory_list: paginated listing with kind/tag/since filters
//   - memory_stats: per-scope counts and store size
//   - memory_delete: remove a memory by id
//   - memory_reindex: reset failed embeddings back to pending
//   - memory_compact: rebuild the FTS index and VACUUM the database
//
// # Error Handling
//
// Errors are returned as JSON-RPC error responses carrying one of:
//
//	-32602  invalid params
//	-32603  internal error
//	-32010  memory not found
//	-32011  embedding unavailable (degraded to lexical-only results)
//
// # Logging
//
// The server logs to stderr; stdout is reserved for MCP protocol
// frames.
package mcp
