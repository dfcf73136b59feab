package synthesis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/brdforge/internal/model"
	"github.com/fyrsmithlabs/brdforge/internal/signal"
)

// ErrEmptyContent is returned when the model answers with nothing.
var ErrEmptyContent = errors.New("model returned empty content")

// Resolver reads a frozen snapshot.
type Resolver interface {
	ResolveSnapshot(ctx context.Context, snapshotID string, labels ...signal.Label) ([]signal.ClassifiedItem, error)
}

// Input is what an agent sees. Sections is only populated for the
// executive summary and holds the latest content of the other sections.
type Input struct {
	SessionID  string
	SnapshotID string
	Resolver   Resolver
	Sections   map[string]string
}

// Output is a generated section before it is versioned.
type Output struct {
	Content       string
	SourceItemIDs []string
	Insufficient  bool
}

// Agent generates one section.
type Agent interface {
	Name() string
	Generate(ctx context.Context, in Input) (Output, error)
}

func insufficient(reason string) Output {
	return Output{Content: Placeholder(reason), SourceItemIDs: []string{}, Insufficient: true}
}

// complete sends the prompt and rejects empty answers.
func complete(ctx context.Context, client model.Client, system, user string) (string, error) {
	out, err := client.Complete(ctx, []model.Message{model.System(system), model.User(user)}, false)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", ErrEmptyContent
	}
	return out, nil
}

// groundedAgent prompts over a label-filtered slice of the snapshot and
// cites every item it was given.
type groundedAgent struct {
	name         string
	labels       []signal.Label
	system       string
	intro        string
	instructions string
	emptyReason  string
	limit        int
	withSpeaker  bool
	withSource   bool
	client       model.Client
}

func (a *groundedAgent) Name() string { return a.name }

func (a *groundedAgent) Generate(ctx context.Context, in Input) (Output, error) {
	items, err := in.Resolver.ResolveSnapshot(ctx, in.SnapshotID, a.labels...)
	if err != nil {
		return Output{}, fmt.Errorf("resolve snapshot: %w", err)
	}
	if len(items) == 0 {
		return insufficient(a.emptyReason), nil
	}
	if a.limit > 0 && len(items) > a.limit {
		items = items[:a.limit]
	}

	var b strings.Builder
	b.WriteString(a.intro)
	b.WriteString("\n\n")
	sources := make([]string, len(items))
	for i, it := range items {
		writeItem(&b, it, a.withSpeaker, a.withSource)
		sources[i] = it.ID
	}
	b.WriteString(a.instructions)
	b.WriteString(outputOnly)

	content, err := complete(ctx, a.client, a.system, b.String())
	if err != nil {
		return Output{}, err
	}
	return Output{Content: content, SourceItemIDs: sources}, nil
}

// NewFunctionalRequirementsAgent writes "The system shall..." statements
// from requirement signals.
func NewFunctionalRequirementsAgent(client model.Client) Agent {
	return &groundedAgent{
		name:         SectionFunctionalRequirements,
		labels:       []signal.Label{signal.LabelRequirement},
		system:       "You are a senior business analyst writing formal software requirements.",
		intro:        "Synthesize these requirement signals extracted from project communications into a formal BRD section:",
		instructions: functionalRequirementsInstructions,
		emptyReason:  "No requirement signals were found in the provided sources.",
		withSpeaker:  true,
		withSource:   true,
		client:       client,
	}
}

// NewTimelineAgent lists milestones from timeline references without
// inventing dates.
func NewTimelineAgent(client model.Client) Agent {
	return &groundedAgent{
		name:         SectionTimeline,
		labels:       []signal.Label{signal.LabelTimelineReference},
		system:       "You are a senior business analyst writing a timeline section based strictly on provided dates.",
		intro:        "Compile a timeline from these timeline references extracted from project communications:",
		instructions: timelineInstructions,
		emptyReason:  "No project timeline information was found in the provided sources. Timeline must be established through stakeholder clarification.",
		withSource:   true,
		client:       client,
	}
}

// NewDecisionsAgent lists confirmed decisions and flags conflicts.
func NewDecisionsAgent(client model.Client) Agent {
	return &groundedAgent{
		name:         SectionDecisions,
		labels:       []signal.Label{signal.LabelDecision},
		system:       "You are a senior business analyst recording formal project decisions.",
		intro:        "Compile the confirmed decisions extracted from project communications:",
		instructions: decisionsInstructions,
		emptyReason:  "No confirmed decisions were found in the provided sources.",
		withSource:   true,
		client:       client,
	}
}

// NewAssumptionsAgent infers implicit assumptions from at most limit signals.
func NewAssumptionsAgent(client model.Client, limit int) Agent {
	return &groundedAgent{
		name:         SectionAssumptions,
		system:       "You are a senior business analyst inferring implicit project assumptions.",
		intro:        "Infer the implicit project assumptions behind these signals:",
		instructions: assumptionsInstructions,
		emptyReason:  "No signals were found to infer assumptions from.",
		limit:        limit,
		client:       client,
	}
}

// NewSuccessMetricsAgent derives success criteria from requirements and
// decisions without inventing numeric targets.
func NewSuccessMetricsAgent(client model.Client) Agent {
	return &groundedAgent{
		name:         SectionSuccessMetrics,
		labels:       []signal.Label{signal.LabelRequirement, signal.LabelDecision},
		system:       "You are a senior business analyst writing success metrics without inventing numbers.",
		intro:        "Derive success metrics from these requirements and decisions:",
		instructions: successMetricsInstructions,
		emptyReason:  "No requirements or decisions were found to derive metrics from.",
		client:       client,
	}
}

// stakeholderAgent needs at least two distinct named speakers.
type stakeholderAgent struct {
	client model.Client
}

// NewStakeholderAgent builds the stakeholder analysis agent.
func NewStakeholderAgent(client model.Client) Agent {
	return &stakeholderAgent{client: client}
}

func (a *stakeholderAgent) Name() string { return SectionStakeholderAnalysis }

func (a *stakeholderAgent) Generate(ctx context.Context, in Input) (Output, error) {
	items, err := in.Resolver.ResolveSnapshot(ctx, in.SnapshotID)
	if err != nil {
		return Output{}, fmt.Errorf("resolve snapshot: %w", err)
	}

	speakers := NamedSpeakers(items)
	if len(speakers) < 2 {
		return insufficient("Fewer than 2 unique stakeholders were identified in the source communications."), nil
	}

	var b strings.Builder
	b.WriteString("Compile a stakeholder analysis for a BRD.\n\n")
	b.WriteString("Named stakeholders and the number of signals each contributed:\n")
	for _, sp := range speakers {
		fmt.Fprintf(&b, "- %s (%d communications)\n", sp.Name, sp.Count)
	}

	sources := []string{}
	b.WriteString("\nStakeholder feedback:\n")
	for _, it := range items {
		if it.Label != signal.LabelStakeholderFeedback {
			continue
		}
		writeItem(&b, it, true, false)
		sources = append(sources, it.ID)
	}
	if len(sources) == 0 {
		b.WriteString("None available. Build the table from the named stakeholder list only.\n\n")
	}
	b.WriteString(stakeholderInstructions)
	b.WriteString(outputOnly)

	content, err := complete(ctx, a.client,
		"You are a senior business analyst writing a formal stakeholder analysis.", b.String())
	if err != nil {
		return Output{}, err
	}
	return Output{Content: content, SourceItemIDs: sources}, nil
}

// Speaker is a named contributor and their signal count.
type Speaker struct {
	Name  string
	Count int
}

// NamedSpeakers counts signals per speaker, ignoring empty and "unknown"
// names, most active first.
func NamedSpeakers(items []signal.ClassifiedItem) []Speaker {
	counts := make(map[string]int)
	var order []string
	for _, it := range items {
		name := strings.TrimSpace(it.Speaker)
		if name == "" || strings.EqualFold(name, "unknown") {
			continue
		}
		if _, seen := counts[name]; !seen {
			order = append(order, name)
		}
		counts[name]++
	}
	out := make([]Speaker, len(order))
	for i, name := range order {
		out[i] = Speaker{Name: name, Count: counts[name]}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// summaryAgent writes the executive summary from the other sections and
// appends a completeness statement computed from the snapshot.
type summaryAgent struct {
	client  model.Client
	capSize int
}

// NewExecutiveSummaryAgent builds the summary agent. Each section is capped
// at capSize runes in the prompt.
func NewExecutiveSummaryAgent(client model.Client, capSize int) Agent {
	return &summaryAgent{client: client, capSize: capSize}
}

func (a *summaryAgent) Name() string { return SectionExecutiveSummary }

func (a *summaryAgent) Generate(ctx context.Context, in Input) (Output, error) {
	items, err := in.Resolver.ResolveSnapshot(ctx, in.SnapshotID)
	if err != nil {
		return Output{}, fmt.Errorf("resolve snapshot: %w", err)
	}

	var thin []string
	for _, name := range IndependentSections {
		if content, ok := in.Sections[name]; ok && IsInsufficient(content) {
			thin = append(thin, name)
		}
	}
	statement := CompletenessStatement(thin, len(items), CountSources(items))

	if len(items) == 0 {
		out := insufficient("No signals were found in this snapshot.")
		out.Content += "\n\n" + statement
		return out, nil
	}

	var b strings.Builder
	b.WriteString("Write the executive summary for a BRD from these generated sections:\n")
	for _, name := range IndependentSections {
		content, ok := in.Sections[name]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "\n--- %s ---\n%s\n", strings.ToUpper(name), abbreviate(content, a.capSize))
	}
	fmt.Fprintf(&b, "\nThis session processed %d signals from %d source documents.\n\n", len(items), CountSources(items))
	b.WriteString(summaryInstructions)
	b.WriteString(outputOnly)

	content, err := complete(ctx, a.client,
		"You are a senior business analyst writing an honest executive summary.", b.String())
	if err != nil {
		return Output{}, err
	}
	return Output{Content: content + "\n\n" + statement, SourceItemIDs: []string{}}, nil
}

// CountSources counts the distinct non-empty source refs among items.
func CountSources(items []signal.ClassifiedItem) int {
	seen := make(map[string]struct{})
	for _, it := range items {
		if it.SourceRef != "" {
			seen[it.SourceRef] = struct{}{}
		}
	}
	return len(seen)
}

// CompletenessStatement closes the executive summary.
func CompletenessStatement(insufficientSections []string, signals, sources int) string {
	var b strings.Builder
	if len(insufficientSections) > 0 {
		fmt.Fprintf(&b, "Sections lacking source data: %s.\n\n", strings.Join(insufficientSections, ", "))
	}
	fmt.Fprintf(&b, "This BRD was generated from %d signals extracted from %d source documents.", signals, sources)
	return b.String()
}

// NewAgents builds the six independent agents and the summary agent.
func NewAgents(client model.Client, cfg Config) ([]Agent, Agent) {
	return []Agent{
		NewFunctionalRequirementsAgent(client),
		NewStakeholderAgent(client),
		NewTimelineAgent(client),
		NewDecisionsAgent(client),
		NewAssumptionsAgent(client, cfg.AssumptionsCap),
		NewSuccessMetricsAgent(client),
	}, NewExecutiveSummaryAgent(client, cfg.SummaryCap)
}
