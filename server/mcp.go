package server

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"videoHighlights/core"
	"videoHighlights/retrieval"
	"videoHighlights/storage"
)

var readOnlyAnnotation = mcp.ToolAnnotation{
	ReadOnlyHint:    mcp.ToBoolPtr(true),
	DestructiveHint: mcp.ToBoolPtr(false),
	IdempotentHint:  mcp.ToBoolPtr(true),
	OpenWorldHint:   mcp.ToBoolPtr(false),
}

// NewMCPServer 以 MCP 工具的形式暴露高光检索
func NewMCPServer(chat *retrieval.ChatService, store storage.Gateway) *mcpserver.MCPServer {
	s := mcpserver.NewMCPServer("video-highlights", "1.0.0", mcpserver.WithToolCapabilities(false))
	s.AddTool(searchHighlightsTool(), makeSearchHandler(chat))
	s.AddTool(listVideosTool(), makeListVideosHandler(store))
	return s
}

// ServeMCP 通过 stdio 提供 MCP 服务
func ServeMCP(chat *retrieval.ChatService, store storage.Gateway) error {
	return mcpserver.ServeStdio(NewMCPServer(chat, store))
}

func searchHighlightsTool() mcp.Tool {
	return mcp.NewTool("search_highlights",
		mcp.WithDescription("Answer a question about the processed videos. Returns a chronological answer with timestamps and the matching highlights."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Free-text question about the video content"),
		),
		mcp.WithNumber("max_results",
			mcp.Description("Maximum number of highlights to return (default 5)"),
		),
	)
}

func listVideosTool() mcp.Tool {
	return mcp.NewTool("list_videos",
		mcp.WithDescription("List processed videos with their duration."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
	)
}

func makeSearchHandler(chat *retrieval.ChatService) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		chatReq := core.ChatRequest{Query: req.GetString("query", "")}
		if n := req.GetInt("max_results", 0); n != 0 {
			chatReq.MaxResults = &n
		}
		resp, err := chat.Query(ctx, chatReq)
		if errors.Is(err, core.ErrEmptyQuery) || errors.Is(err, core.ErrInvalidMaxResults) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
		}
		return mcp.NewToolResultText(formatChatResponse(resp)), nil
	}
}

func makeListVideosHandler(store storage.Gateway) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		videos, err := store.ListVideos(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list videos failed: %v", err)), nil
		}
		if len(videos) == 0 {
			return mcp.NewToolResultText("No videos have been processed yet."), nil
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "## Videos (%d)\n\n", len(videos))
		for _, v := range videos {
			fmt.Fprintf(&sb, "- **%s** (id %d, %s)\n", v.Filename, v.ID, core.FormatTime(v.Duration))
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func formatChatResponse(resp core.ChatResponse) string {
	var sb strings.Builder
	sb.WriteString(resp.Answer)
	if len(resp.Highlights) == 0 {
		return sb.String()
	}
	fmt.Fprintf(&sb, "\n\n## Highlights (%d)\n\n", resp.TotalHighlights)
	for _, h := range resp.Highlights {
		fmt.Fprintf(&sb, "- %s %s-%s", h.VideoFilename, core.FormatTime(h.TimestampStart), core.FormatTime(h.TimestampEnd))
		if h.Relevance != nil {
			fmt.Fprintf(&sb, " (relevance %.2f)", *h.Relevance)
		}
		fmt.Fprintf(&sb, ": %s\n", h.Summary)
	}
	return sb.String()
}
