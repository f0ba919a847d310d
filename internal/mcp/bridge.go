package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/opencoder/agentruntime/internal/tools"
)

// BridgeTool adapts a single remote MCP tool to the local Tool interface so
// it can sit in the same Registry as builtin tools, gated by the same
// safety policy.
type BridgeTool struct {
	server     string
	name       string // registry name: "mcp_{server}_{tool}" (or prefixed)
	origName   string
	desc       string
	schema     map[string]interface{}
	client     *mcpclient.Client
	timeoutSec int
	connected  *atomic.Bool
}

// NewBridgeTool wraps def for registration under the bridged tool's
// server-qualified name.
func NewBridgeTool(server string, def mcpgo.Tool, client *mcpclient.Client, toolPrefix string, timeoutSec int, connected *atomic.Bool) *BridgeTool {
	prefix := toolPrefix
	if prefix == "" {
		prefix = server
	}
	return &BridgeTool{
		server:     server,
		name:       fmt.Sprintf("mcp_%s_%s", prefix, def.Name),
		origName:   def.Name,
		desc:       fmt.Sprintf("[MCP:%s] %s", server, def.Description),
		schema:     toolInputSchema(def),
		client:     client,
		timeoutSec: timeoutSec,
		connected:  connected,
	}
}

func toolInputSchema(def mcpgo.Tool) map[string]interface{} {
	raw, err := json.Marshal(def.InputSchema)
	if err != nil {
		return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	var schema map[string]interface{}
	if err := json.Unmarshal(raw, &schema); err != nil || schema == nil {
		return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	return schema
}

func (t *BridgeTool) Name() string                       { return t.name }
func (t *BridgeTool) Description() string                { return t.desc }
func (t *BridgeTool) Parameters() map[string]interface{} { return t.schema }

// OriginalName returns the tool's name as the MCP server exposes it,
// unprefixed, used for tool allow/deny filtering against grant data.
func (t *BridgeTool) OriginalName() string { return t.origName }

func (t *BridgeTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	if t.connected != nil && !t.connected.Load() {
		return tools.ErrorResult(fmt.Sprintf("mcp server %q is disconnected", t.server))
	}

	req := mcpgo.CallToolRequest{}
	req.Params.Name = t.origName
	req.Params.Arguments = args

	callCtx := ctx
	if t.timeoutSec > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, time.Duration(t.timeoutSec)*time.Second)
		defer cancel()
	}

	res, err := t.client.CallTool(callCtx, req)
	if err != nil {
		return tools.ErrorResult(fmt.Sprintf("mcp tool %s: %v", t.name, err)).WithError(err)
	}

	text := renderMCPContent(res)
	if res.IsError {
		return tools.ErrorResult(text)
	}
	return tools.NewResult(text)
}

func renderMCPContent(res *mcpgo.CallToolResult) string {
	var sb strings.Builder
	for i, c := range res.Content {
		if i > 0 {
			sb.WriteString("\n")
		}
		if tc, ok := mcpgo.AsTextContent(c); ok {
			sb.WriteString(tc.Text)
			continue
		}
		raw, err := json.Marshal(c)
		if err == nil {
			sb.Write(raw)
		}
	}
	return sb.String()
}
