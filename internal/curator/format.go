package curator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/model"
)

const noMatchesText = "No existing entities matched this content. Treat named entities as new."

// FormatMatchContext renders matches as ranked candidates per entity type for
// the classifier prompt.
func FormatMatchContext(mc model.MatchContext) string {
	if mc.Empty() {
		return noMatchesText
	}

	var b strings.Builder
	b.WriteString("Existing entities that may be referenced (ranked by similarity):\n")
	for _, t := range model.IndexedTypes {
		matches := append([]model.SemanticMatch(nil), mc[t]...)
		if len(matches) == 0 {
			continue
		}
		sort.SliceStable(matches, func(i, j int) bool {
			return matches[i].Similarity > matches[j].Similarity
		})

		fmt.Fprintf(&b, "\n%s:\n", t)
		for _, m := range matches {
			fmt.Fprintf(&b, "- %s (id: %s, similarity: %.2f, matched on %q)\n",
				m.EntityName, m.EntityID, m.Similarity, m.MatchedText)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
