package core

import "testing"

func TestFormatTime(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "0:00"},
		{5.9, "0:05"},
		{12, "0:12"},
		{65, "1:05"},
		{600, "10:00"},
		{-3, "0:00"},
	}
	for _, c := range cases {
		if got := FormatTime(c.in); got != c.want {
			t.Errorf("FormatTime(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestTruncateRuneSafe(t *testing.T) {
	if got := Truncate("高光片段", 2); got != "高光" {
		t.Errorf("got %q", got)
	}
	if got := Truncate("abc", 10); got != "abc" {
		t.Errorf("got %q", got)
	}
}

func TestQueryResultEnd(t *testing.T) {
	r := QueryResult{Highlight: Highlight{Timestamp: 4, EndTimestamp: 7.5}}
	if r.End() != 7.5 {
		t.Errorf("expected stored end, got %v", r.End())
	}
	r.EndTimestamp = 0
	if r.End() != 14 {
		t.Errorf("expected estimated end 14, got %v", r.End())
	}
}

func TestIsZeroVector(t *testing.T) {
	if !IsZeroVector(make([]float32, 4)) || !IsZeroVector(nil) {
		t.Error("zero vector should be reported")
	}
	if IsZeroVector([]float32{0, 0.1}) {
		t.Error("non-zero vector reported as zero")
	}
}
