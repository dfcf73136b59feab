package synthesis

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Section names, wire-stable.
const (
	SectionFunctionalRequirements = "functional_requirements"
	SectionStakeholderAnalysis    = "stakeholder_analysis"
	SectionTimeline               = "timeline"
	SectionDecisions              = "decisions"
	SectionAssumptions            = "assumptions"
	SectionSuccessMetrics         = "success_metrics"
	SectionExecutiveSummary       = "executive_summary"
)

// IndependentSections are generated concurrently from the snapshot alone.
var IndependentSections = []string{
	SectionFunctionalRequirements,
	SectionStakeholderAnalysis,
	SectionTimeline,
	SectionDecisions,
	SectionAssumptions,
	SectionSuccessMetrics,
}

// AllSections lists every section in document order.
var AllSections = append(slices.Clone(IndependentSections), SectionExecutiveSummary)

// ErrUnknownSection is returned for section names outside AllSections.
var ErrUnknownSection = errors.New("unknown section")

// IsSection reports whether name is a known section.
func IsSection(name string) bool {
	return slices.Contains(AllSections, name)
}

// InsufficientMarker opens every placeholder written instead of a model call.
const InsufficientMarker = "Insufficient data to generate this section."

const errorPrefix = "Error generating "

// Placeholder returns the insufficient-data content for reason.
func Placeholder(reason string) string {
	if reason == "" {
		return InsufficientMarker
	}
	return InsufficientMarker + " " + reason
}

// ErrorContent is written in place of a section whose agent failed.
func ErrorContent(section string, err error) string {
	return fmt.Sprintf("%s%s: %v", errorPrefix, section, err)
}

// IsInsufficient reports whether content is a placeholder opening with
// InsufficientMarker. Prose that merely mentions insufficient data does not
// count.
func IsInsufficient(content string) bool {
	return strings.HasPrefix(strings.TrimSpace(content), InsufficientMarker)
}

// IsErrorContent reports whether content is a generation-error placeholder.
func IsErrorContent(content string) bool {
	return strings.HasPrefix(strings.TrimSpace(content), errorPrefix)
}

// HasRealContent reports whether content came from a successful model call.
func HasRealContent(content string) bool {
	return strings.TrimSpace(content) != "" && !IsInsufficient(content) && !IsErrorContent(content)
}
