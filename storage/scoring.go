package storage

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"videoHighlights/core"
)

// 与 plainto_tsquery('english') 类似，过滤常见停用词
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true,
	"by": true, "did": true, "do": true, "does": true, "for": true, "from": true, "how": true,
	"in": true, "is": true, "it": true, "of": true, "on": true, "or": true, "the": true,
	"this": true, "that": true, "to": true, "was": true, "were": true, "what": true,
	"when": true, "where": true, "which": true, "who": true, "with": true, "about": true,
	"there": true, "any": true,
}

// Tokenize 小写并按非字母数字切分
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if !stopWords[f] {
			out = append(out, f)
		}
	}
	return out
}

// termVector L2 归一化的词频向量
func termVector(text string) map[string]float64 {
	m := map[string]float64{}
	for _, t := range Tokenize(text) {
		m[t] += 1
	}
	var sum float64
	for _, v := range m {
		sum += v * v
	}
	if sum == 0 {
		return m
	}
	norm := math.Sqrt(sum)
	for k, v := range m {
		m[k] = v / norm
	}
	return m
}

// KeywordScore 查询与文档的词频余弦，任一查询词命中即为正，范围 [0,1]
func KeywordScore(query, doc string) float64 {
	q := termVector(query)
	if len(q) == 0 {
		return 0
	}
	d := termVector(doc)
	var dot float64
	for k, vq := range q {
		if vd, ok := d[k]; ok {
			dot += vq * vd
		}
	}
	return clamp01(dot)
}

// CosineSimilarity 余弦相似度，任一向量为零向量时返回 0
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// highlightText 参与检索的文本
func highlightText(h core.Highlight) string {
	return h.Description + " " + h.Summary
}

// sortByRelevance 按相关度降序，相同时 id 小的在前
func sortByRelevance(results []core.QueryResult) {
	sort.SliceStable(results, func(i, j int) bool {
		ri, rj := relevanceOf(results[i]), relevanceOf(results[j])
		if ri != rj {
			return ri > rj
		}
		return results[i].ID < results[j].ID
	})
}

// sortByTimestamp 按视频内时间升序
func sortByTimestamp(results []core.QueryResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Timestamp != results[j].Timestamp {
			return results[i].Timestamp < results[j].Timestamp
		}
		return results[i].ID < results[j].ID
	})
}

func relevanceOf(r core.QueryResult) float64 {
	if r.Relevance == nil {
		return 0
	}
	return *r.Relevance
}

func limitResults(results []core.QueryResult, limit int) []core.QueryResult {
	if limit >= 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}
