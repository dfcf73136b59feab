package validate

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/brdforge/internal/logging"
	"github.com/fyrsmithlabs/brdforge/internal/model"
	"github.com/fyrsmithlabs/brdforge/internal/signal"
	"github.com/fyrsmithlabs/brdforge/internal/synthesis"
)

const defaultContradiction = "A contradiction between requirements and decisions was detected."

const contradictionInstructions = `
Instructions:
1. Identify if any requirement directly conflicts with any decision.
2. If there are NO contradictions, output:
{"has_contradiction": false, "description": ""}

3. If there ARE contradictions, output:
{"has_contradiction": true, "description": "<A clear explanation of exactly what conflicts>"}

Output MUST be valid JSON.
`

type contradictionVerdict struct {
	HasContradiction bool   `json:"has_contradiction"`
	Description      string `json:"description"`
}

// ContradictionGate asks the model whether the functional requirements
// conflict with the recorded decisions.
type ContradictionGate struct {
	client model.Client
	logger *logging.Logger
}

// NewContradictionGate creates a contradiction gate.
func NewContradictionGate(client model.Client, logger *logging.Logger) *ContradictionGate {
	if logger == nil {
		logger = logging.Nop()
	}
	return &ContradictionGate{client: client, logger: logger}
}

// Name returns the gate identifier.
func (g *ContradictionGate) Name() string {
	return "contradiction"
}

// Check runs only when both sections have real content. Model and parse
// failures are logged and produce no flag.
func (g *ContradictionGate) Check(ctx context.Context, state State) ([]signal.ValidationFlag, error) {
	reqs := state.Sections[synthesis.SectionFunctionalRequirements]
	decisions := state.Sections[synthesis.SectionDecisions]
	if !synthesis.HasRealContent(reqs) || !synthesis.HasRealContent(decisions) {
		return nil, nil
	}

	var b strings.Builder
	b.WriteString("You are a senior business analyst validating a BRD for contradictions.\n\n")
	b.WriteString("-- Requirements --\n")
	b.WriteString(reqs)
	b.WriteString("\n\n-- Decisions --\n")
	b.WriteString(decisions)
	b.WriteString("\n\n")
	b.WriteString(contradictionInstructions)

	raw, err := g.client.Complete(ctx, []model.Message{
		model.System("You are a strict JSON validation engine."),
		model.User(b.String()),
	}, true)
	if err != nil {
		g.logger.Warn(ctx, "contradiction check failed", zap.Error(err))
		return nil, nil
	}

	verdict, err := model.ParseJSON[contradictionVerdict](raw)
	if err != nil {
		g.logger.Warn(ctx, "contradiction check returned malformed JSON", zap.Error(err))
		return nil, nil
	}
	if !verdict.HasContradiction {
		return nil, nil
	}

	desc := strings.TrimSpace(verdict.Description)
	if desc == "" {
		desc = defaultContradiction
	}
	return []signal.ValidationFlag{{
		SectionName: signal.CrossSection,
		FlagType:    signal.FlagContradiction,
		Severity:    signal.SeverityHigh,
		Description: desc,
	}}, nil
}
