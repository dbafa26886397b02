// Package mcpserver exposes an environment over MCP stdio: JSON-RPC
// 2.0 on stdin/stdout, the transport editor integrations speak.
// Sessions created through this surface are tagged source=mcp.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/promptobjects/core/internal/capability"
	"github.com/promptobjects/core/internal/connector"
	"github.com/promptobjects/core/internal/environment"
)

// Server wraps one environment behind an MCP stdio server.
type Server struct {
	env *environment.Environment
	mcp *server.MCPServer
}

// New assembles the MCP server: six tools plus the po:// and bus://
// resource spaces.
func New(env *environment.Environment, version string) *Server {
	s := &Server{env: env}
	m := server.NewMCPServer(
		"promptobjects",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, true),
		server.WithLogging(),
	)

	m.AddTool(mcp.NewTool("list_prompt_objects",
		mcp.WithDescription("List every prompt object in the environment with its description and declared capabilities."),
	), s.handleListPromptObjects)

	m.AddTool(mcp.NewTool("send_message",
		mcp.WithDescription("Send a message to a prompt object and return its reply."),
		mcp.WithString("po_name", mcp.Description("Target prompt object name"), mcp.Required()),
		mcp.WithString("message", mcp.Description("The message to send"), mcp.Required()),
	), s.handleSendMessage)

	m.AddTool(mcp.NewTool("get_conversation",
		mcp.WithDescription("Fetch a prompt object's most recent conversation, oldest message first."),
		mcp.WithString("po_name", mcp.Description("Prompt object name"), mcp.Required()),
		mcp.WithNumber("limit", mcp.Description("Maximum number of messages to return, newest kept")),
	), s.handleGetConversation)

	m.AddTool(mcp.NewTool("inspect_po",
		mcp.WithDescription("Return a prompt object's full configuration and prompt body."),
		mcp.WithString("po_name", mcp.Description("Prompt object name"), mcp.Required()),
	), s.handleInspectPO)

	m.AddTool(mcp.NewTool("get_pending_requests",
		mcp.WithDescription("List pending ask_human requests, optionally filtered by prompt object."),
		mcp.WithString("po_name", mcp.Description("Optional prompt object filter")),
	), s.handleGetPendingRequests)

	m.AddTool(mcp.NewTool("respond_to_request",
		mcp.WithDescription("Answer a pending ask_human request, resuming the suspended turn."),
		mcp.WithString("request_id", mcp.Description("The pending request's id"), mcp.Required()),
		mcp.WithString("response", mcp.Description("The human's answer"), mcp.Required()),
	), s.handleRespondToRequest)

	m.AddResourceTemplate(mcp.NewResourceTemplate(
		"po://{name}/conversation", "Prompt object conversation",
		mcp.WithTemplateDescription("The most recent session's messages for a prompt object."),
		mcp.WithTemplateMIMEType("application/json"),
	), s.readPOResource)
	m.AddResourceTemplate(mcp.NewResourceTemplate(
		"po://{name}/config", "Prompt object configuration",
		mcp.WithTemplateDescription("A prompt object's frontmatter configuration."),
		mcp.WithTemplateMIMEType("application/json"),
	), s.readPOResource)
	m.AddResourceTemplate(mcp.NewResourceTemplate(
		"po://{name}/prompt", "Prompt object body",
		mcp.WithTemplateDescription("A prompt object's system prompt body."),
		mcp.WithTemplateMIMEType("text/markdown"),
	), s.readPOResource)
	m.AddResource(mcp.NewResource(
		"bus://messages", "Bus traffic",
		mcp.WithResourceDescription("Recent bus events across all sessions."),
		mcp.WithMIMEType("application/json"),
	), s.readBusResource)

	s.mcp = m
	return s
}

// ServeStdio blocks, serving JSON-RPC on stdin/stdout until EOF.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func textResult(v any) (*mcp.CallToolResult, error) {
	switch val := v.(type) {
	case string:
		return mcp.NewToolResultText(val), nil
	default:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}

func (s *Server) handleListPromptObjects(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	type entry struct {
		Name         string   `json:"name"`
		Description  string   `json:"description"`
		Capabilities []string `json:"capabilities,omitempty"`
	}
	var out []entry
	for _, c := range s.env.Registry.List(capability.KindPromptObj) {
		e := entry{Name: c.Name(), Description: c.Description()}
		if b, ok := c.(poBacking); ok {
			e.Capabilities = b.Frontmatter().Capabilities
		}
		out = append(out, e)
	}
	return textResult(out)
}

func (s *Server) handleSendMessage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	poName, err := req.RequireString("po_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	message, err := req.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.env.Send(ctx, poName, connector.SourceMCP, capability.NewTextMessage(message))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(res.Content), nil
}

func (s *Server) handleGetConversation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	poName, err := req.RequireString("po_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := req.GetInt("limit", 0)
	msgs, err := s.latestConversation(poName)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return textResult(msgs)
}

func (s *Server) handleInspectPO(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	poName, err := req.RequireString("po_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	c, ok := s.env.Registry.Get(poName)
	if !ok || c.Kind() != capability.KindPromptObj {
		return mcp.NewToolResultError("prompt object not found: " + poName), nil
	}
	b, ok := c.(poBacking)
	if !ok {
		return mcp.NewToolResultError(poName + " has no backing file"), nil
	}
	return textResult(map[string]any{
		"name":         c.Name(),
		"description":  c.Description(),
		"capabilities": b.Frontmatter().Capabilities,
		"body":         b.Body(),
		"path":         b.Path(),
	})
}

func (s *Server) handleGetPendingRequests(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	poName := req.GetString("po_name", "")
	return textResult(s.env.Queue.Pending(poName))
}

func (s *Server) handleRespondToRequest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	requestID, err := req.RequireString("request_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	response, err := req.RequireString("response")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.env.Queue.Respond(requestID, response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("responded to " + requestID), nil
}

// readPOResource serves po://{name}/{conversation,config,prompt}.
func (s *Server) readPOResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	rest := strings.TrimPrefix(uri, "po://")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("malformed po resource uri: %s", uri)
	}
	name, facet := parts[0], parts[1]
	c, ok := s.env.Registry.Get(name)
	if !ok || c.Kind() != capability.KindPromptObj {
		return nil, fmt.Errorf("prompt object not found: %s", name)
	}

	switch facet {
	case "conversation":
		msgs, err := s.latestConversation(name)
		if err != nil {
			return nil, err
		}
		data, err := json.MarshalIndent(msgs, "", "  ")
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{mcp.TextResourceContents{URI: uri, MIMEType: "application/json", Text: string(data)}}, nil
	case "config":
		b, ok := c.(poBacking)
		if !ok {
			return nil, fmt.Errorf("%s has no backing file", name)
		}
		data, err := json.MarshalIndent(b.Frontmatter(), "", "  ")
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{mcp.TextResourceContents{URI: uri, MIMEType: "application/json", Text: string(data)}}, nil
	case "prompt":
		b, ok := c.(poBacking)
		if !ok {
			return nil, fmt.Errorf("%s has no backing file", name)
		}
		return []mcp.ResourceContents{mcp.TextResourceContents{URI: uri, MIMEType: "text/markdown", Text: b.Body()}}, nil
	default:
		return nil, fmt.Errorf("unknown po resource facet: %s", facet)
	}
}

// readBusResource serves bus://messages from the store's event log.
func (s *Server) readBusResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	events, err := s.env.Store.GetEventsSince(time.Time{})
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{mcp.TextResourceContents{URI: "bus://messages", MIMEType: "application/json", Text: string(data)}}, nil
}
