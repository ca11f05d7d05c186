package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseDurationText(t *testing.T) {
	tests := []struct {
		text     string
		expected int
	}{
		{"0:45", 45},
		{"12:34", 754},
		{"1:02:34", 3754},
		{" 3:05 ", 185},
		{"", 0},
		{"garbage", 0},
		{"1:2:3:4", 0},
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, parseDurationText(test.text), "text %q", test.text)
	}
}

func TestParseViewCount(t *testing.T) {
	tests := []struct {
		text     string
		expected int64
	}{
		{"1,234,567 views", 1234567},
		{"42 views", 42},
		{"No views", 0},
		{"1.2M views", 1200000},
		{"3K views", 3000},
		{"2B views", 2000000000},
		{"11,042 watching", 11042},
		{"", 0},
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, parseViewCount(test.text), "text %q", test.text)
	}
}

func TestParsePublishedTime(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		text     string
		expected time.Time
	}{
		{"3 hours ago", now.Add(-3 * time.Hour)},
		{"2 days ago", now.AddDate(0, 0, -2)},
		{"1 week ago", now.AddDate(0, 0, -7)},
		{"6 months ago", now.AddDate(0, -6, 0)},
		{"2 years ago", now.AddDate(-2, 0, 0)},
		{"Streamed 4 days ago", now.AddDate(0, 0, -4)},
		{"", time.Time{}},
		{"yesterday", time.Time{}},
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, parsePublishedTime(test.text, now), "text %q", test.text)
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple object", `{"a":1};rest`, `{"a":1}`},
		{"nested", `{"a":{"b":2}};`, `{"a":{"b":2}}`},
		{"brace in string", `{"a":"}"};`, `{"a":"}"}`},
		{"escaped quote", `{"a":"\"}"};`, `{"a":"\"}"}`},
		{"not an object", `[1,2]`, ""},
		{"unterminated", `{"a":1`, ""},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := extractJSON([]byte(test.input))
			assert.Equal(t, test.expected, string(got))
		})
	}
}
