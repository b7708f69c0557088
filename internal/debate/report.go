package debate

import (
	"fmt"
	"sort"
	"strings"
	"time"

	v1 "github.com/foremanhq/foreman/pkg/api/v1"
)

// Report renders a completed session as a full markdown document.
func Report(session *v1.DebateSession) string {
	var b strings.Builder

	b.WriteString("# DEBATE REPORT\n")
	fmt.Fprintf(&b, "**Session:** %s\n", session.ID)
	fmt.Fprintf(&b, "**Started:** %s\n", session.StartedAt.Format(time.RFC3339))
	if session.CompletedAt != nil {
		fmt.Fprintf(&b, "**Completed:** %s\n", session.CompletedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "**Status:** %s\n", session.Status)
	fmt.Fprintf(&b, "**Topics:** %d\n", len(session.Topics))
	fmt.Fprintf(&b, "**Agents:** %d\n", len(session.Agents))
	b.WriteString("\n---\n\n")

	for i, result := range session.Results {
		fmt.Fprintf(&b, "## Topic %d: %s\n\n", i+1, result.Topic)

		b.WriteString("### Round 1: Analysis\n")
		for _, name := range session.Agents {
			if text, ok := result.Analyses[name]; ok {
				fmt.Fprintf(&b, "\n#### %s\n%s\n", name, text)
			}
		}

		b.WriteString("\n### Round 2: Rebuttal\n")
		for _, name := range session.Agents {
			if text, ok := result.Rebuttals[name]; ok {
				fmt.Fprintf(&b, "\n#### %s\n%s\n", name, text)
			}
		}

		b.WriteString("\n### Round 3: Voting\n")
		for _, name := range sortedVoteTargets(result.Votes) {
			fmt.Fprintf(&b, "- **%s**: %.0f\n", name, result.Votes[name])
		}

		b.WriteString("\n### Consensus\n")
		b.WriteString(result.Consensus)

		if len(result.ActionItems) > 0 {
			b.WriteString("\n### Action Items\n")
			for _, item := range result.ActionItems {
				fmt.Fprintf(&b, "- [%s] %s\n", item.Agent, item.Summary)
			}
		}

		b.WriteString("\n---\n\n")
	}

	totalActions := 0
	for _, result := range session.Results {
		totalActions += len(result.ActionItems)
	}
	b.WriteString("## Summary\n")
	fmt.Fprintf(&b, "- **Topics debated:** %d\n", len(session.Results))
	fmt.Fprintf(&b, "- **Total action items:** %d\n", totalActions)

	return b.String()
}

// sortedVoteTargets orders vote totals by score descending, name ascending.
func sortedVoteTargets(votes map[string]float64) []string {
	names := make([]string, 0, len(votes))
	for name := range votes {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if votes[names[i]] != votes[names[j]] {
			return votes[names[i]] > votes[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}
