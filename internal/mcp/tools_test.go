package mcp

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dshills/mcp-memoria/internal/memerr"
	"github.com/dshills/mcp-memoria/internal/memory"
)

func TestParseScope_AcceptsKnownScopes(t *testing.T) {
	for _, raw := range []string{"global", "personality", "project"} {
		scope, err := parseScope(map[string]interface{}{"scope": raw}, "scope")
		assert.NoError(t, err)
		assert.Equal(t, memory.Scope(raw), scope)
	}
}

func TestParseScope_RejectsUnknown(t *testing.T) {
	_, err := parseScope(map[string]interface{}{"scope": "nonsense"}, "scope")
	assert.Error(t, err)
	var mcpErr *MCPError
	assert.True(t, errors.As(err, &mcpErr))
	assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
}

func TestWrapDomainErr_MapsNotFound(t *testing.T) {
	err := wrapDomainErr(memerr.ErrNotFound)
	var mcpErr *MCPError
	require := assert.New(t)
	require.True(errors.As(err, &mcpErr))
	require.Equal(ErrorCodeNotFound, mcpErr.Code)
}

func TestWrapDomainErr_MapsEmbedDegraded(t *testing.T) {
	err := wrapDomainErr(memerr.ErrEmbed)
	var mcpErr *MCPError
	assert.True(t, errors.As(err, &mcpErr))
	assert.Equal(t, ErrorCodeEmbedDegraded, mcpErr.Code)
}

func TestGetStringSlice_ParsesJSONArray(t *testing.T) {
	args := map[string]interface{}{"tags": []interface{}{"a", "b"}}
	assert.Equal(t, []string{"a", "b"}, getStringSlice(args, "tags"))
}

func TestGetStringSlice_MissingKeyIsNil(t *testing.T) {
	assert.Nil(t, getStringSlice(map[string]interface{}{}, "tags"))
}

func TestParseScopes_MissingKeyIsNilDefault(t *testing.T) {
	scopes, err := parseScopes(map[string]interface{}{}, "scopes")
	assert.NoError(t, err)
	assert.Nil(t, scopes)
}

func TestParseScopes_ParsesValidArray(t *testing.T) {
	args := map[string]interface{}{"scopes": []interface{}{"global", "project"}}
	scopes, err := parseScopes(args, "scopes")
	assert.NoError(t, err)
	assert.Equal(t, []memory.Scope{memory.ScopeGlobal, memory.ScopeProject}, scopes)
}

func TestParseScopes_RejectsUnknownScope(t *testing.T) {
	args := map[string]interface{}{"scopes": []interface{}{"bogus"}}
	_, err := parseScopes(args, "scopes")
	assert.Error(t, err)
}

func TestMemorySummary_FormatsTimestamps(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	m := memory.Memory{ID: "x", Kind: "note", CreatedAt: ts, UpdatedAt: ts}
	summary := memorySummary(m)
	assert.Equal(t, "x", summary["id"])
	assert.Equal(t, "note", summary["kind"])
	assert.Equal(t, "2024-01-02T03:04:05Z", summary["created_at"])
	assert.Equal(t, "2024-01-02T03:04:05Z", summary["updated_at"])
}
