package validate

import (
	"context"
	"fmt"
	"sort"

	"github.com/fyrsmithlabs/brdforge/internal/signal"
	"github.com/fyrsmithlabs/brdforge/internal/synthesis"
)

// GapGate flags sections that hold a placeholder instead of content.
type GapGate struct{}

// NewGapGate creates a gap gate.
func NewGapGate() *GapGate {
	return &GapGate{}
}

// Name returns the gate identifier.
func (g *GapGate) Name() string {
	return "gap"
}

// Check raises a medium gap for every section lacking source data and a high
// gap for every section whose generation failed.
func (g *GapGate) Check(_ context.Context, state State) ([]signal.ValidationFlag, error) {
	var flags []signal.ValidationFlag
	for _, name := range sectionOrder(state.Sections) {
		content := state.Sections[name]
		switch {
		case synthesis.IsErrorContent(content):
			flags = append(flags, signal.ValidationFlag{
				SectionName: name,
				FlagType:    signal.FlagGap,
				Severity:    signal.SeverityHigh,
				Description: fmt.Sprintf("Section '%s' failed to generate and must be regenerated.", name),
			})
		case synthesis.IsInsufficient(content):
			flags = append(flags, signal.ValidationFlag{
				SectionName: name,
				FlagType:    signal.FlagGap,
				Severity:    signal.SeverityMedium,
				Description: fmt.Sprintf("Section '%s' is missing source data and requires stakeholder clarification.", name),
			})
		}
	}
	return flags, nil
}

// sectionOrder lists known sections in document order, then any others
// alphabetically.
func sectionOrder(sections map[string]string) []string {
	out := make([]string, 0, len(sections))
	for _, name := range synthesis.AllSections {
		if _, ok := sections[name]; ok {
			out = append(out, name)
		}
	}
	var extra []string
	for name := range sections {
		if !synthesis.IsSection(name) {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}
