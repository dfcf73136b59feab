// Package signal defines the records that flow through classification and
// synthesis: fragments, classified items, snapshots, section versions, and
// validation flags.
package signal

import (
	"errors"
	"strings"
	"time"
)

// Label is the wire-stable classification category of a fragment.
type Label string

const (
	LabelRequirement         Label = "requirement"
	LabelDecision            Label = "decision"
	LabelStakeholderFeedback Label = "stakeholder_feedback"
	LabelTimelineReference   Label = "timeline_reference"
	LabelNoise               Label = "noise"
)

// Labels lists every label in canonical order.
var Labels = []Label{
	LabelRequirement,
	LabelDecision,
	LabelStakeholderFeedback,
	LabelTimelineReference,
	LabelNoise,
}

// ParseLabel maps s onto a Label. Unknown and empty values become noise.
func ParseLabel(s string) Label {
	switch l := Label(strings.ToLower(strings.TrimSpace(s))); l {
	case LabelRequirement, LabelDecision, LabelStakeholderFeedback, LabelTimelineReference:
		return l
	default:
		return LabelNoise
	}
}

// IsSignal reports whether l is project-relevant.
func (l Label) IsSignal() bool { return l != LabelNoise }

func (l Label) String() string { return string(l) }

// Confidence thresholds applied to model-derived results.
const (
	AcceptThreshold = 0.90
	ReviewThreshold = 0.70
)

// ErrEmptyFragment is returned when a fragment carries no text.
var ErrEmptyFragment = errors.New("fragment has no text")

// RawFragment is one unit of input text with its provenance.
type RawFragment struct {
	SourceRef   string `json:"source_ref"`
	Speaker     string `json:"speaker"`
	RawText     string `json:"raw_text"`
	CleanedText string `json:"cleaned_text"`
}

// Text returns the cleaned text, falling back to the raw text.
func (f RawFragment) Text() string {
	if strings.TrimSpace(f.CleanedText) != "" {
		return f.CleanedText
	}
	return f.RawText
}

// Validate rejects fragments with no usable text.
func (f RawFragment) Validate() error {
	if strings.TrimSpace(f.Text()) == "" {
		return ErrEmptyFragment
	}
	return nil
}

// Result is the outcome of classifying one fragment.
type Result struct {
	Label            Label   `json:"label"`
	Confidence       float64 `json:"confidence"`
	Reasoning        string  `json:"reasoning"`
	FlaggedForReview bool    `json:"flagged_for_review"`
}

// Clamp bounds Confidence to [0, 1].
func (r Result) Clamp() Result {
	switch {
	case r.Confidence < 0:
		r.Confidence = 0
	case r.Confidence > 1:
		r.Confidence = 1
	}
	return r
}

// ClassifiedItem is a fragment after classification. Items are append-only;
// only Restore mutates them.
type ClassifiedItem struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"session_id"`
	SourceRef        string    `json:"source_ref"`
	Speaker          string    `json:"speaker"`
	RawText          string    `json:"raw_text"`
	CleanedText      string    `json:"cleaned_text"`
	Label            Label     `json:"label"`
	Confidence       float64   `json:"confidence"`
	Reasoning        string    `json:"reasoning"`
	Suppressed       bool      `json:"suppressed"`
	ManuallyRestored bool      `json:"manually_restored"`
	FlaggedForReview bool      `json:"flagged_for_review"`
	CreatedAt        time.Time `json:"created_at"`
}

// NewClassifiedItem combines a fragment with its result. Noise is suppressed.
func NewClassifiedItem(id, sessionID string, f RawFragment, r Result, now time.Time) ClassifiedItem {
	r = r.Clamp()
	return ClassifiedItem{
		ID:               id,
		SessionID:        sessionID,
		SourceRef:        f.SourceRef,
		Speaker:          f.Speaker,
		RawText:          f.RawText,
		CleanedText:      f.CleanedText,
		Label:            r.Label,
		Confidence:       r.Confidence,
		Reasoning:        r.Reasoning,
		Suppressed:       r.Label == LabelNoise,
		FlaggedForReview: r.FlaggedForReview,
		CreatedAt:        now,
	}
}

// Text returns the cleaned text, falling back to the raw text.
func (i ClassifiedItem) Text() string {
	if strings.TrimSpace(i.CleanedText) != "" {
		return i.CleanedText
	}
	return i.RawText
}

// Restore un-suppresses the item permanently.
func (i *ClassifiedItem) Restore() {
	i.ManuallyRestored = true
	i.Suppressed = false
}

// Active reports whether the item is visible to snapshots.
func (i ClassifiedItem) Active() bool {
	return !i.Suppressed || i.ManuallyRestored
}

// Snapshot is a frozen, ordered set of item ids.
type Snapshot struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	MemberIDs []string  `json:"member_ids"`
}

// SectionVersion is one immutable revision of a document section.
type SectionVersion struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"session_id"`
	SnapshotID    string    `json:"snapshot_id"`
	SectionName   string    `json:"section_name"`
	VersionNumber int       `json:"version_number"`
	Content       string    `json:"content"`
	SourceItemIDs []string  `json:"source_item_ids"`
	HumanEdited   bool      `json:"human_edited"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// Locked reports whether automated regeneration must leave the section alone.
func (v SectionVersion) Locked() bool { return v.HumanEdited }

// FlagType classifies a validation flag.
type FlagType string

const (
	FlagGap           FlagType = "gap"
	FlagContradiction FlagType = "contradiction"
)

// Severity orders validation flags.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rank orders severities, high first.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 0
	case SeverityMedium:
		return 1
	default:
		return 2
	}
}

// CrossSection is the section name used for flags spanning several sections.
const CrossSection = "cross_section"

// ValidationFlag records a gap or contradiction found in the document.
type ValidationFlag struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	SectionName string    `json:"section_name"`
	FlagType    FlagType  `json:"flag_type"`
	Severity    Severity  `json:"severity"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}
