package main

import (
	"context"
	"slices"
	"strings"
	"testing"
)

func TestChunkLines(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		limit int
		want  []string
	}{
		{"fits", []string{"a", "b"}, 10, []string{"a\nb"}},
		{"splits", []string{"a", "b", "c"}, 3, []string{"a\nb", "c"}},
		{"truncates", []string{"abcdef", "g"}, 4, []string{"abcd", "g"}},
		{"empty", nil, 10, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := chunkLines(tt.lines, tt.limit); !slices.Equal(got, tt.want) {
				t.Errorf("chunkLines = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestChunkLinesRespectsDiscordLimit(t *testing.T) {
	lines := make([]string, 500)
	for i := range lines {
		lines[i] = strings.Repeat("x", 30)
	}

	chunks := chunkLines(lines, discordMessageLimit)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks", len(chunks))
	}

	var total int
	for _, c := range chunks {
		if len(c) > discordMessageLimit {
			t.Errorf("chunk of %d bytes exceeds the limit", len(c))
		}
		total += strings.Count(c, "\n") + 1
	}
	if total != len(lines) {
		t.Errorf("chunks hold %d lines, want %d", total, len(lines))
	}
}

func TestDiscordNotifierSkipsEmpty(t *testing.T) {
	n := NewDiscordNotifier(1, "token")
	defer n.Close(context.Background())

	if err := n.Notify(context.Background(), nil); err != nil {
		t.Errorf("Notify with no names: %v", err)
	}
}
