package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/disgo/webhook"
	"github.com/disgoorg/snowflake/v2"
)

// discordMessageLimit is the maximum length of a Discord message body.
const discordMessageLimit = 2000

// Notifier announces newly found filenames.
type Notifier interface {
	Notify(ctx context.Context, names []string) error
}

// DiscordNotifier posts found filenames to a channel webhook.
type DiscordNotifier struct {
	client webhook.Client
}

func NewDiscordNotifier(id snowflake.ID, token string) *DiscordNotifier {
	return &DiscordNotifier{client: webhook.New(id, token)}
}

func (n *DiscordNotifier) Notify(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}

	header := fmt.Sprintf("Found %d filenames:", len(names))
	for _, msg := range chunkLines(append([]string{header}, names...), discordMessageLimit) {
		if _, err := n.client.CreateContent(msg, rest.WithCtx(ctx)); err != nil {
			return fmt.Errorf("posting to discord: %w", err)
		}
	}

	return nil
}

func (n *DiscordNotifier) Close(ctx context.Context) {
	n.client.Close(ctx)
}

// chunkLines joins lines with newlines into messages no longer than limit.
// A single line longer than limit is truncated.
func chunkLines(lines []string, limit int) []string {
	var chunks []string
	var sb strings.Builder

	for _, line := range lines {
		if len(line) > limit {
			line = line[:limit]
		}

		if sb.Len() > 0 && sb.Len()+1+len(line) > limit {
			chunks = append(chunks, sb.String())
			sb.Reset()
		}

		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(line)
	}

	if sb.Len() > 0 {
		chunks = append(chunks, sb.String())
	}

	return chunks
}
