package indexer

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/engramhq/engram/internal/models"
	"github.com/engramhq/engram/internal/privacy"
)

// FormatSession renders a conversation as a structured Markdown document:
// a header with session id/timestamps/metadata, one section per message,
// and a trailing summary line with the message count.
func FormatSession(s *models.ConversationSession) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Conversation %s\n\n", s.SessionID)
	if s.StartedAt != nil {
		fmt.Fprintf(&b, "Started: %s\n", formatTime(*s.StartedAt))
	}
	if s.EndedAt != nil {
		fmt.Fprintf(&b, "Ended: %s\n", formatTime(*s.EndedAt))
	}
	writeMetadata(&b, s.Metadata)
	b.WriteString("\n")

	for _, m := range s.Messages {
		content := privacy.StripPrivateTags(m.Content)
		if content == "" {
			continue
		}
		if m.Timestamp != nil {
			fmt.Fprintf(&b, "## %s (%s)\n\n", m.Role, formatTime(*m.Timestamp))
		} else {
			fmt.Fprintf(&b, "## %s\n\n", m.Role)
		}
		b.WriteString(content)
		b.WriteString("\n\n")
		writeMetadata(&b, m.Metadata)
	}

	fmt.Fprintf(&b, "---\nMessages: %d\n", len(s.Messages))
	return b.String()
}

// SessionPath derives the date-partitioned virtual path for a session.
func SessionPath(s *models.ConversationSession) string {
	at := time.Now()
	if s.StartedAt != nil {
		at = time.Unix(*s.StartedAt, 0).UTC()
	}
	return fmt.Sprintf("conversations/%04d/%02d/session-%s.md", at.Year(), at.Month(), s.SessionID)
}

func writeMetadata(b *strings.Builder, meta map[string]string) {
	if len(meta) == 0 {
		return
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "- %s: %s\n", k, meta[k])
	}
	b.WriteString("\n")
}

func formatTime(unix int64) string {
	return time.Unix(unix, 0).UTC().Format(time.RFC3339)
}
