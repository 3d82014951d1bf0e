package retrieval

import (
	"fmt"
	"sort"
	"strings"

	"videoHighlights/core"
)

// NoResultsAnswer 没有检索到任何高光时的固定回答
const NoResultsAnswer = "I couldn't find any relevant information about that in the video."

// Compose 按开始时间排序后逐条拼接，不调用模型
func Compose(query string, results []core.QueryResult) string {
	if len(results) == 0 {
		return NoResultsAnswer
	}
	ordered := make([]core.QueryResult, len(results))
	copy(ordered, results)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp < ordered[j].Timestamp
	})

	lines := make([]string, 0, len(ordered))
	for _, r := range ordered {
		text := r.Summary
		if strings.TrimSpace(text) == "" {
			text = r.Description
		}
		lines = append(lines, fmt.Sprintf("At %s: %s", core.FormatTime(r.Timestamp), text))
	}
	return strings.Join(lines, "\n\n")
}
