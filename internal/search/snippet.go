package search

import "strings"

const defaultSnippetChars = 240

// SelectSnippet picks the substring window of up to maxChars that maximizes
// query-term overlap, by sliding a fixed-size window through the content and
// counting term hits. Falls back to the content prefix when no term matches.
func SelectSnippet(content, query string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = defaultSnippetChars
	}
	if len(content) <= maxChars {
		return content
	}

	terms := queryTerms(query)
	lower := strings.ToLower(content)

	bestStart, bestHits := 0, -1
	step := maxChars / 4
	if step < 1 {
		step = 1
	}
	for start := 0; start < len(content); start += step {
		end := start + maxChars
		if end > len(content) {
			end = len(content)
			start = end - maxChars
		}
		window := lower[start:end]
		hits := 0
		for _, t := range terms {
			hits += strings.Count(window, t)
		}
		if hits > bestHits {
			bestHits = hits
			bestStart = start
		}
		if end == len(content) {
			break
		}
	}

	snippet := content[bestStart : bestStart+maxChars]
	return strings.TrimSpace(snippet)
}

func queryTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, `.,;:!?"'()[]{}`)
		if len(f) >= 2 {
			terms = append(terms, f)
		}
	}
	return terms
}
