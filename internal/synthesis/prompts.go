package synthesis

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/brdforge/internal/signal"
)

const outputOnly = "Output ONLY the final markdown content for this section. Do not wrap it in a code block."

const functionalRequirementsInstructions = `Instructions:
1. Group related requirements by theme.
2. Number them sequentially.
3. Write each as a functional requirement statement starting with "The system shall...".
4. End each requirement with an inline attribution using the source id, like [id].
5. EXPLICITLY flag requirements that appear contradictory or incomplete instead of silently resolving them. List them under a "Contradictions / Gaps" heading at the end if needed.
`

const stakeholderInstructions = `Instructions:
1. Write a brief paragraph analyzing the overall stakeholder landscape.
2. Follow it with a table with the columns Stakeholder Name, Apparent Role, Key Concerns/Preferences, and Influence Level (based on communication volume).
3. Do not invent stakeholder roles. Only infer a role when the context strongly implies it; otherwise write "Role unknown".
4. Do not fabricate stakeholder names. If feedback lacked speaker attribution, say so.
`

const timelineInstructions = `Instructions:
1. List project milestones and deadlines chronologically.
2. For each entry give the date or timeframe and what it refers to.
3. End each entry with an inline attribution using the source id, like [id].
4. ONLY include dates and timeframes explicitly mentioned. NEVER invent or estimate dates.
5. If a deadline has no specific date, list it with "Date not specified".
6. Leave out ordinary meetings unless they mark a milestone such as a sign-off or launch.
`

const decisionsInstructions = `Instructions:
1. Output a numbered list of confirmed project decisions.
2. End each decision with an inline attribution using the source id, like [id].
3. EXPLICITLY flag decisions that appear to contradict each other.
`

const assumptionsInstructions = `Instructions:
1. Infer assumptions implicit in these signals: things the project takes to be true without stating them.
2. Cite the source ids that suggest each assumption, like [id].
3. Title the list "AI-inferred assumptions requiring stakeholder validation".
`

const successMetricsInstructions = `Instructions:
1. Derive measurable success criteria from the requirements and decisions, citing source ids like [id].
2. Where a requirement is not measurable, suggest a metric and flag it as needing stakeholder validation.
3. NEVER invent numbers or targets that are not present in the source data.
`

const summaryInstructions = `Instructions:
1. Write a 3 to 5 paragraph executive summary covering what the project aims to achieve, who the key stakeholders are, and the major constraints or risks.
2. Base every statement on the sections above. Do not introduce new facts.
3. Do not write a completeness statement; one is appended automatically.
4. Do not copy placeholder text from empty sections. Say such a section lacks source data.
`

// writeItem renders one signal with its id for inline attribution.
func writeItem(b *strings.Builder, it signal.ClassifiedItem, withSpeaker, withSource bool) {
	fmt.Fprintf(b, "[%s]", it.ID)
	if withSpeaker {
		fmt.Fprintf(b, " Speaker: %s", speakerOrUnknown(it.Speaker))
	}
	if withSource && it.SourceRef != "" {
		fmt.Fprintf(b, " (Source: %s)", it.SourceRef)
	}
	b.WriteString("\n")
	b.WriteString(strings.TrimSpace(it.Text()))
	b.WriteString("\n\n")
}

func speakerOrUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}

// abbreviate truncates s to n runes and appends "..." when it cuts.
func abbreviate(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
