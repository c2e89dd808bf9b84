// Package mcpserver exposes the curator as Model Context Protocol tools so an
// assistant can propose and commit knowledge-base changes over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rotisserie/eris"

	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/curator"
	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/model"
)

// Curator is the subset of the curator service the tools call.
type Curator interface {
	Extract(ctx context.Context, req curator.ExtractRequest) (*curator.ExtractResponse, error)
	GetSession(ctx context.Context, id string) (*model.CuratorSession, error)
	Commit(ctx context.Context, req curator.CommitRequest) (*curator.CommitResponse, error)
	RecordFeedback(ctx context.Context, in curator.FeedbackInput) (*model.FeedbackRecord, error)
	FeedbackPatterns(ctx context.Context, limit int) ([]model.FeedbackPattern, error)
}

// New builds an MCP server with the curator tools registered.
func New(c Curator, version string) *server.MCPServer {
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer("curator", version, server.WithToolCapabilities(false))

	registerExtractTool(s, c)
	registerCommitTool(s, c)
	registerSessionTool(s, c)
	registerFeedbackTool(s, c)
	registerPatternsTool(s, c)
	return s
}

// ServeStdio runs the server on the given streams until ctx is done or stdin closes.
func ServeStdio(ctx context.Context, s *server.MCPServer, stdin io.Reader, stdout io.Writer) error {
	err := server.NewStdioServer(s).Listen(ctx, stdin, stdout)
	if err != nil && ctx.Err() == nil {
		return eris.Wrap(err, "mcp: stdio")
	}
	return nil
}

func registerExtractTool(s *server.MCPServer, c Curator) {
	tool := mcp.NewTool("curator_extract",
		mcp.WithDescription("Analyze free text about advertising platforms, products or industries and propose structured knowledge-base changes. Nothing is written until curator_commit is called."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("Text to analyze, or a URL when content_type is url"),
		),
		mcp.WithString("content_type",
			mcp.Description("text (default), url or file"),
			mcp.Enum("text", "url", "file"),
		),
		mcp.WithString("session_id",
			mcp.Description("Continue an existing session; omit to start a new one"),
		),
		mcp.WithString("mode",
			mcp.Description("smart (default) or legacy"),
			mcp.Enum("smart", "legacy"),
		),
		mcp.WithArray("target_types",
			mcp.Description("Restrict proposals to these entity types"),
			mcp.WithStringItems(),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil {
			return mcp.NewToolResultError("content is required"), nil
		}
		in := curator.ExtractRequest{
			Content:     content,
			SessionID:   req.GetString("session_id", ""),
			ContentType: curator.ContentType(req.GetString("content_type", "")),
			Mode:        curator.Mode(req.GetString("mode", "")),
		}
		for _, t := range req.GetStringSlice("target_types", nil) {
			in.TargetTypes = append(in.TargetTypes, model.EntityType(t))
		}

		resp, err := c.Extract(ctx, in)
		if err != nil {
			return toolError("extract", err), nil
		}
		return jsonResult(resp)
	})
}

func registerCommitTool(s *server.MCPServer, c Curator) {
	tool := mcp.NewTool("curator_commit",
		mcp.WithDescription("Apply approved actions returned by curator_extract. Each action is applied independently and audited; replaying an already committed action returns its earlier result."),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("session_id",
			mcp.Description("Session the actions were proposed in"),
		),
		mcp.WithArray("items",
			mcp.Required(),
			mcp.Description("Actions to commit, as returned in smart_result.actions"),
			mcp.Items(map[string]any{"type": "object"}),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, ok := req.GetArguments()["items"]
		if !ok {
			return mcp.NewToolResultError("items is required"), nil
		}
		items, err := decodeActions(raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		resp, err := c.Commit(ctx, curator.CommitRequest{
			SessionID: req.GetString("session_id", ""),
			Items:     items,
		})
		if err != nil {
			return toolError("commit", err), nil
		}
		return jsonResult(resp)
	})
}

func registerSessionTool(s *server.MCPServer, c Curator) {
	tool := mcp.NewTool("curator_get_session",
		mcp.WithDescription("Show a curator session: conversation, pending and committed items, and token usage."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultError("session_id is required"), nil
		}
		sess, err := c.GetSession(ctx, id)
		if err != nil {
			return toolError("get session", err), nil
		}
		return jsonResult(sess)
	})
}

func registerFeedbackTool(s *server.MCPServer, c Curator) {
	tool := mcp.NewTool("curator_record_feedback",
		mcp.WithDescription("Record a good, bad or partial judgment of a research result, optionally for a single field."),
		mcp.WithString("research_session_id", mcp.Required(), mcp.Description("Research session being judged")),
		mcp.WithString("feedback_type",
			mcp.Required(),
			mcp.Enum(string(model.FeedbackGood), string(model.FeedbackBad), string(model.FeedbackPartial)),
		),
		mcp.WithString("field_name", mcp.Description("Field the judgment applies to; omit for the overall result")),
		mcp.WithString("notes", mcp.Description("Free-form reviewer notes")),
		mcp.WithString("marked_by", mcp.Description("Reviewer name")),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rec, err := c.RecordFeedback(ctx, curator.FeedbackInput{
			ResearchSessionID: req.GetString("research_session_id", ""),
			FeedbackType:      model.FeedbackType(req.GetString("feedback_type", "")),
			FieldName:         req.GetString("field_name", ""),
			Notes:             req.GetString("notes", ""),
			MarkedBy:          req.GetString("marked_by", ""),
		})
		if err != nil {
			return toolError("record feedback", err), nil
		}
		return jsonResult(rec)
	})
}

func registerPatternsTool(s *server.MCPServer, c Curator) {
	tool := mcp.NewTool("curator_feedback_patterns",
		mcp.WithDescription("Per-field feedback tallies and success rates, most judged fields first."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithNumber("limit", mcp.Description("Maximum number of fields (default: all)")),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := int(req.GetFloat("limit", 0))
		if limit < 0 {
			return mcp.NewToolResultError("limit must be non-negative"), nil
		}
		patterns, err := c.FeedbackPatterns(ctx, limit)
		if err != nil {
			return toolError("feedback patterns", err), nil
		}
		return jsonResult(patterns)
	})
}

func decodeActions(raw any) ([]model.CuratorAction, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, eris.Wrap(err, "items")
	}
	var items []model.CuratorAction
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("items must be an array of actions: %w", err)
	}
	return items, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "mcp: encode result")
	}
	return mcp.NewToolResultText(string(data)), nil
}

// toolError reports a failure to the caller as tool output; the MCP
// transport error is reserved for protocol problems.
func toolError(op string, err error) *mcp.CallToolResult {
	kind := "internal_error"
	switch {
	case model.IsValidation(err):
		kind = "validation_error"
	case model.IsNotFound(err):
		kind = "not_found"
	case model.IsBudgetExceeded(err):
		kind = "budget_exceeded"
	case model.IsExternal(err):
		kind = "external_service_error"
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s failed (%s): %v", op, kind, err))
}
