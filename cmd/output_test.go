package cmd

import (
	"errors"
	"strings"
	"testing"

	"videoHighlights/core"
)

func TestFormatHighlights(t *testing.T) {
	long := strings.Repeat("word ", 60)
	out := formatHighlights("clip.mp4", []core.Highlight{
		{Timestamp: 4, Summary: "kickoff", Description: "Short description."},
		{Timestamp: 95, Summary: "goal", Description: long},
	})
	for _, want := range []string{
		"Highlights for clip.mp4 (2)",
		"--- Highlight #1 at 0:04 ---",
		"--- Highlight #2 at 1:35 ---",
		"Summary: kickoff",
		"Description: Short description.",
		core.Truncate(long, descriptionPreviewLen) + "...",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Short description....") {
		t.Error("short descriptions must not get an ellipsis")
	}
}

func TestFormatBatchSummary(t *testing.T) {
	out := formatBatchSummary([]core.BatchResult{
		{VideoPath: "a.mp4", Highlights: make([]core.Highlight, 3)},
		{VideoPath: "b.mp4", Err: errors.New("boom"), Error: "boom"},
		{VideoPath: "c.mp4", Highlights: make([]core.Highlight, 2)},
	})
	if !strings.Contains(out, "b.mp4: boom") {
		t.Errorf("failure not reported:\n%s", out)
	}
	if !strings.Contains(out, "Processed 2 videos, 1 failed, 5 highlights total") {
		t.Errorf("unexpected totals:\n%s", out)
	}
}

func TestFormatChatResponse(t *testing.T) {
	rel := 0.42
	out := formatChatResponse(core.ChatResponse{
		Answer: "At 0:12: first goal",
		Highlights: []core.HighlightResult{
			{TimestampStart: 12, TimestampEnd: 22, Summary: "first goal", VideoFilename: "match.mp4", Relevance: &rel},
		},
		TotalHighlights: 1,
	})
	for _, want := range []string{"At 0:12: first goal", "1 highlights", "match.mp4  0:12-0:22  first goal", "(0.42)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
