package engine

import (
	"strings"

	"github.com/engramhq/engram/internal/embedding"
)

// Chunk is one line-oriented slice of a document. StartLine and EndLine are
// inclusive, 1-based, and authoritative: consecutive chunks never share
// lines, so concatenating chunk contents reconstructs the file exactly.
// EmbedText prepends the previous chunk's trailing overlap lines so the
// embedding keeps cross-boundary context; the overlap is never stored.
type Chunk struct {
	StartLine  int
	EndLine    int
	Content    string
	EmbedText  string
	TokenCount int
}

// SplitLines chunks text line by line. Lines accumulate into the running
// chunk until adding the next line would push its token count past
// targetTokens; the chunk then closes and the next one is seeded with
// however many trailing lines fit the overlap budget, counted backward from
// the end. A single line longer than the budget still becomes its own chunk.
func SplitLines(text string, targetTokens, overlapTokens int) []Chunk {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")

	var chunks []Chunk
	var cur []string
	curStart := 1
	curTokens := 0
	var overlapLines []string
	overlapBudgetUsed := 0

	closeChunk := func(endLine int) {
		content := strings.Join(cur, "\n")
		embedText := content
		if len(overlapLines) > 0 {
			embedText = strings.Join(overlapLines, "\n") + "\n" + content
		}
		chunks = append(chunks, Chunk{
			StartLine:  curStart,
			EndLine:    endLine,
			Content:    content,
			EmbedText:  embedText,
			TokenCount: curTokens,
		})

		// Seed the next chunk's context with trailing lines of this one,
		// counting tokens backward from the end.
		overlapLines = overlapLines[:0]
		overlapBudgetUsed = 0
		for i := len(cur) - 1; i >= 0; i-- {
			lt := embedding.EstimateTokens(cur[i])
			if overlapBudgetUsed+lt > overlapTokens {
				break
			}
			overlapLines = append([]string{cur[i]}, overlapLines...)
			overlapBudgetUsed += lt
		}
	}

	for i, line := range lines {
		lt := embedding.EstimateTokens(line)
		if curTokens+lt > targetTokens && len(cur) > 0 {
			closeChunk(i) // lines are 1-based; previous line index is i
			cur = cur[:0]
			curStart = i + 1
			curTokens = overlapBudgetUsed
		}
		cur = append(cur, line)
		curTokens += lt
	}
	if len(cur) > 0 {
		closeChunk(len(lines))
	}

	return chunks
}
