package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"videoHighlights/core"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("111"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("78"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

const descriptionPreviewLen = 150

// formatHighlights 单个视频的高光摘要
func formatHighlights(videoPath string, highlights []core.Highlight) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(fmt.Sprintf("Highlights for %s (%d)", videoPath, len(highlights))))
	sb.WriteString("\n")
	for i, h := range highlights {
		sb.WriteString(headerStyle.Render(fmt.Sprintf("--- Highlight #%d at %s ---", i+1, core.FormatTime(h.Timestamp))))
		sb.WriteString("\n")
		fmt.Fprintf(&sb, "Summary: %s\n", h.Summary)
		desc := core.Truncate(h.Description, descriptionPreviewLen)
		if desc != h.Description {
			desc += "..."
		}
		sb.WriteString(dimStyle.Render("Description: " + desc))
		sb.WriteString("\n")
	}
	return sb.String()
}

// formatBatchSummary 批处理结束后的汇总
func formatBatchSummary(results []core.BatchResult) string {
	var sb strings.Builder
	total, failed := 0, 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			sb.WriteString(errorStyle.Render(fmt.Sprintf("✗ %s: %s", r.VideoPath, r.Error)))
			sb.WriteString("\n")
			continue
		}
		total += len(r.Highlights)
	}
	sb.WriteString(successStyle.Render(fmt.Sprintf("Processed %d videos, %d failed, %d highlights total",
		len(results)-failed, failed, total)))
	return sb.String()
}

// formatChatResponse 命令行查询结果
func formatChatResponse(resp core.ChatResponse) string {
	var sb strings.Builder
	sb.WriteString(resp.Answer)
	sb.WriteString("\n")
	if len(resp.Highlights) == 0 {
		return sb.String()
	}
	sb.WriteString("\n")
	sb.WriteString(titleStyle.Render(fmt.Sprintf("%d highlights", resp.TotalHighlights)))
	sb.WriteString("\n")
	for _, h := range resp.Highlights {
		line := fmt.Sprintf("%s  %s-%s  %s", h.VideoFilename,
			core.FormatTime(h.TimestampStart), core.FormatTime(h.TimestampEnd), h.Summary)
		if h.Relevance != nil {
			line += dimStyle.Render(fmt.Sprintf("  (%.2f)", *h.Relevance))
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}
