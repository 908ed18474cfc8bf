package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		bytes int64
		want  string
	}{
		{name: "bytes", bytes: 512, want: "512 B"},
		{name: "kilobytes", bytes: 1536, want: "1.5 KB"},
		{name: "megabytes", bytes: 2 * 1024 * 1024, want: "2.0 MB"},
		{name: "gigabytes", bytes: 3 * 1024 * 1024 * 1024, want: "3.0 GB"},
		{name: "zero", bytes: 0, want: "0 B"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, formatSize(tt.bytes))
		})
	}
}

func TestFormatTime(t *testing.T) {
	t.Parallel()

	now := time.Now()

	sameYear := time.Date(now.Year(), 3, 5, 14, 30, 0, 0, time.UTC)
	assert.Equal(t, sameYear.Format("Jan _2 15:04"), formatTime(sameYear))

	pastYear := time.Date(now.Year()-2, 3, 5, 14, 30, 0, 0, time.UTC)
	assert.Equal(t, pastYear.Format("Jan _2  2006"), formatTime(pastYear))
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "multi line", truncate("multi\nline", 20))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}

func TestPrintRow(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	printRow(&buf, []string{"a", "bb"}, []int{3, 2})
	assert.Equal(t, "a    bb\n", buf.String())
}
