package consolidator

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/engramhq/engram/internal/models"
)

// MemoryDocumentPath is the fixed virtual path of the regenerated summary.
const MemoryDocumentPath = "MEMORY.md"

var sectionOrder = []models.FactType{
	models.FactPreference,
	models.FactFact,
	models.FactDecision,
	models.FactContext,
	models.FactGoal,
	models.FactSkill,
}

var sectionTitles = map[models.FactType]string{
	models.FactPreference: "Preferences",
	models.FactFact:       "Facts",
	models.FactDecision:   "Decisions",
	models.FactContext:    "Context",
	models.FactGoal:       "Goals",
	models.FactSkill:      "Skills",
}

// RenderMemoryDocument builds the canonical Markdown summary of everything
// durable known about a user: a header with the generation timestamp and
// fact count, then one section per type with facts sorted by importance
// descending. Always fully regenerated, never patched, so it cannot drift
// from the fact set.
func RenderMemoryDocument(facts []models.MemoryFact, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Memory\n\n")
	fmt.Fprintf(&b, "Generated: %s\n", now.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Facts: %d\n\n", len(facts))

	byType := make(map[models.FactType][]models.MemoryFact)
	for _, f := range facts {
		byType[f.FactType] = append(byType[f.FactType], f)
	}

	for _, t := range sectionOrder {
		group := byType[t]
		if len(group) == 0 {
			continue
		}
		sort.Slice(group, func(i, j int) bool {
			return group[i].Importance > group[j].Importance
		})
		fmt.Fprintf(&b, "## %s\n\n", sectionTitles[t])
		for _, f := range group {
			fmt.Fprintf(&b, "- %s (confidence %.0f%%, importance %.0f%%)\n",
				f.Content, f.Confidence*100, f.Importance*100)
		}
		b.WriteString("\n")
	}

	return b.String()
}
