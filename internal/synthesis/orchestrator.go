package synthesis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/brdforge/internal/backoff"
	"github.com/fyrsmithlabs/brdforge/internal/config"
	"github.com/fyrsmithlabs/brdforge/internal/events"
	"github.com/fyrsmithlabs/brdforge/internal/logging"
	"github.com/fyrsmithlabs/brdforge/internal/model"
	"github.com/fyrsmithlabs/brdforge/internal/signal"
	"github.com/fyrsmithlabs/brdforge/internal/store"
)

const instrumentationName = "github.com/fyrsmithlabs/brdforge/internal/synthesis"

// Section outcomes recorded in metrics and events.
const (
	outcomeComplete     = "complete"
	outcomeInsufficient = "insufficient"
	outcomeFailed       = "failed"
	outcomeSkipped      = "skipped"
	outcomeEdited       = "edited"
	outcomeStoreError   = "store_error"
)

// Config tunes synthesis.
type Config struct {
	Workers        int
	AssumptionsCap int
	SummaryCap     int
	Transient      backoff.Policy
	RateLimit      backoff.Policy
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	transient := backoff.DefaultTransient()
	transient.MaxAttempts = 2
	return Config{
		Workers:        4,
		AssumptionsCap: 40,
		SummaryCap:     3000,
		Transient:      transient,
		RateLimit:      backoff.DefaultRateLimit(),
	}
}

// ConfigFrom converts operator configuration.
func ConfigFrom(cfg config.SynthesisConfig) Config {
	out := DefaultConfig()
	out.Workers = cfg.Workers
	out.AssumptionsCap = cfg.AssumptionsCap
	out.SummaryCap = cfg.SummaryCap
	out.Transient.MaxAttempts = cfg.MaxAttempts
	out.Transient.Base = cfg.BaseBackoff.Duration()
	out.RateLimit.MaxAttempts = cfg.MaxAttempts
	return out
}

// Orchestrator runs the section agents against a fresh snapshot and versions
// their output.
type Orchestrator struct {
	store     store.Store
	agents    []Agent
	summary   Agent
	workers   int
	publisher events.Publisher
	logger    *logging.Logger
	tracer    trace.Tracer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPublisher sends section progress to p.
func WithPublisher(p events.Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithAgents replaces the default agents.
func WithAgents(independent []Agent, summary Agent) Option {
	return func(o *Orchestrator) {
		o.agents = independent
		o.summary = summary
	}
}

// NewOrchestrator builds an orchestrator whose agents call client through a
// retrying wrapper.
func NewOrchestrator(st store.Store, client model.Client, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     st,
		workers:   cfg.Workers,
		publisher: events.NopPublisher{},
		logger:    logging.Nop(),
		tracer:    otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.Named("synthesis")
	if o.workers < 1 {
		o.workers = 1
	}
	if o.agents == nil {
		retrying := model.NewRetrying(client, cfg.Transient, cfg.RateLimit, o.logger)
		o.agents, o.summary = NewAgents(retrying, cfg)
	}
	return o
}

// Run freezes a snapshot, generates the independent sections concurrently,
// then the executive summary. Agent failures become error placeholders;
// only store failures are returned.
func (o *Orchestrator) Run(ctx context.Context, sessionID string) (string, error) {
	ctx = logging.WithSessionID(ctx, sessionID)
	ctx = logging.WithRunID(ctx, uuid.NewString())
	ctx, span := o.tracer.Start(ctx, "synthesis.run")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	snapshotID, err := o.store.CreateSnapshot(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "snapshot failed")
		return "", fmt.Errorf("create snapshot: %w", err)
	}
	ctx = logging.WithSnapshotID(ctx, snapshotID)
	span.SetAttributes(attribute.String("snapshot.id", snapshotID))

	locked, err := o.lockedSections(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		return snapshotID, err
	}

	events.Emit(ctx, o.publisher, o.logger, events.Event{
		Kind:       events.SynthesisStarted,
		SessionID:  sessionID,
		SnapshotID: snapshotID,
		Total:      len(o.agents) + 1,
	})
	for _, a := range o.agents {
		o.emitSection(ctx, sessionID, snapshotID, a.Name(), events.StatusPending, "")
	}
	o.emitSection(ctx, sessionID, snapshotID, o.summary.Name(), events.StatusPending, "")

	in := Input{SessionID: sessionID, SnapshotID: snapshotID, Resolver: o.store}
	results := make([]sectionResult, len(o.agents))

	var g errgroup.Group
	g.SetLimit(o.workers)
	for i, a := range o.agents {
		g.Go(func() error {
			results[i] = o.runAgent(ctx, a, in, locked[a.Name()])
			return nil
		})
	}
	_ = g.Wait()

	sections, err := o.store.LatestSections(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		return snapshotID, fmt.Errorf("read sections for summary: %w", err)
	}
	in.Sections = sections
	results = append(results, o.runAgent(ctx, o.summary, in, locked[o.summary.Name()]))

	counts := make(map[string]int)
	var errs []error
	for _, r := range results {
		counts[r.outcome]++
		if r.err != nil {
			errs = append(errs, r.err)
		}
	}

	o.logger.Info(ctx, "synthesis complete",
		zap.Int("complete", counts[outcomeComplete]),
		zap.Int("insufficient", counts[outcomeInsufficient]),
		zap.Int("failed", counts[outcomeFailed]),
		zap.Int("skipped", counts[outcomeSkipped]),
	)
	events.Emit(ctx, o.publisher, o.logger, events.Event{
		Kind:       events.SynthesisCompleted,
		SessionID:  sessionID,
		SnapshotID: snapshotID,
		Done:       len(results),
		Total:      len(results),
		Counts:     counts,
	})

	if len(errs) > 0 {
		err := errors.Join(errs...)
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist sections failed")
		return snapshotID, fmt.Errorf("persist sections: %w", err)
	}
	return snapshotID, nil
}

// Regenerate re-runs one agent against a fresh snapshot. A locked section
// returns store.ErrSectionLocked.
func (o *Orchestrator) Regenerate(ctx context.Context, sessionID, sectionName string) (signal.SectionVersion, error) {
	agent := o.agent(sectionName)
	if agent == nil {
		return signal.SectionVersion{}, fmt.Errorf("%w: %q", ErrUnknownSection, sectionName)
	}
	ctx = logging.WithSessionID(ctx, sessionID)
	ctx, span := o.tracer.Start(ctx, "synthesis.regenerate")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("section", sectionName),
	)

	locked, err := o.lockedSections(ctx, sessionID)
	if err != nil {
		return signal.SectionVersion{}, err
	}
	if locked[sectionName] {
		return signal.SectionVersion{}, fmt.Errorf("section %s: %w", sectionName, store.ErrSectionLocked)
	}

	snapshotID, err := o.store.CreateSnapshot(ctx, sessionID)
	if err != nil {
		return signal.SectionVersion{}, fmt.Errorf("create snapshot: %w", err)
	}
	ctx = logging.WithSnapshotID(ctx, snapshotID)

	in := Input{SessionID: sessionID, SnapshotID: snapshotID, Resolver: o.store}
	if sectionName == SectionExecutiveSummary {
		if in.Sections, err = o.store.LatestSections(ctx, sessionID); err != nil {
			return signal.SectionVersion{}, fmt.Errorf("read sections for summary: %w", err)
		}
	}

	r := o.runAgent(ctx, agent, in, false)
	switch {
	case r.err != nil:
		return signal.SectionVersion{}, r.err
	case r.outcome == outcomeSkipped:
		return signal.SectionVersion{}, fmt.Errorf("section %s: %w", sectionName, store.ErrSectionLocked)
	}
	return r.version, nil
}

// EditSection stores a human-edited version, which locks the section. An
// empty snapshotID carries over the snapshot of the latest version.
func (o *Orchestrator) EditSection(ctx context.Context, sessionID, snapshotID, sectionName, content string) (signal.SectionVersion, error) {
	if !IsSection(sectionName) {
		return signal.SectionVersion{}, fmt.Errorf("%w: %q", ErrUnknownSection, sectionName)
	}
	if strings.TrimSpace(content) == "" {
		return signal.SectionVersion{}, fmt.Errorf("%w: content is required", store.ErrInvalidInput)
	}
	ctx = logging.WithSessionID(ctx, sessionID)

	latest, err := o.store.LatestSectionVersions(ctx, sessionID)
	if err != nil {
		return signal.SectionVersion{}, fmt.Errorf("read latest sections: %w", err)
	}
	prev, hasPrev := latest[sectionName]
	if snapshotID == "" && hasPrev {
		snapshotID = prev.SnapshotID
	}
	sources := []string{}
	if hasPrev {
		sources = prev.SourceItemIDs
	}

	v, err := o.store.StoreSection(ctx, store.SectionInput{
		SessionID:     sessionID,
		SnapshotID:    snapshotID,
		SectionName:   sectionName,
		Content:       content,
		SourceItemIDs: sources,
		HumanEdited:   true,
	})
	if err != nil {
		return signal.SectionVersion{}, fmt.Errorf("store edited section: %w", err)
	}
	SectionsTotal.WithLabelValues(sectionName, outcomeEdited).Inc()
	o.logger.Info(ctx, "section edited",
		zap.String("section", sectionName),
		zap.Int("version", v.VersionNumber),
	)
	return v, nil
}

func (o *Orchestrator) agent(name string) Agent {
	if o.summary != nil && o.summary.Name() == name {
		return o.summary
	}
	for _, a := range o.agents {
		if a.Name() == name {
			return a
		}
	}
	return nil
}

func (o *Orchestrator) lockedSections(ctx context.Context, sessionID string) (map[string]bool, error) {
	latest, err := o.store.LatestSectionVersions(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("read latest sections: %w", err)
	}
	locked := make(map[string]bool, len(latest))
	for name, v := range latest {
		locked[name] = v.Locked()
	}
	return locked, nil
}

type sectionResult struct {
	version signal.SectionVersion
	outcome string
	err     error
}

// runAgent generates and persists one section. Only a store failure is
// reported through err.
func (o *Orchestrator) runAgent(ctx context.Context, a Agent, in Input, locked bool) sectionResult {
	name := a.Name()
	if locked {
		o.logger.Info(ctx, "skipping locked section", zap.String("section", name))
		SectionsTotal.WithLabelValues(name, outcomeSkipped).Inc()
		o.emitSection(ctx, in.SessionID, in.SnapshotID, name, events.StatusSkipped, "locked by human edit")
		return sectionResult{outcome: outcomeSkipped}
	}

	ctx, span := o.tracer.Start(ctx, "synthesis.agent", trace.WithAttributes(attribute.String("section", name)))
	defer span.End()
	o.emitSection(ctx, in.SessionID, in.SnapshotID, name, events.StatusWorking, "")

	start := time.Now()
	out, err := generate(ctx, a, in)
	AgentDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	outcome := outcomeComplete
	switch {
	case err != nil:
		outcome = outcomeFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, "agent failed")
		o.logger.Error(ctx, "section agent failed", zap.String("section", name), zap.Error(err))
		out = Output{Content: ErrorContent(name, err), SourceItemIDs: []string{}}
	case out.Insufficient:
		outcome = outcomeInsufficient
	}

	v, serr := o.store.StoreSection(ctx, store.SectionInput{
		SessionID:     in.SessionID,
		SnapshotID:    in.SnapshotID,
		SectionName:   name,
		Content:       out.Content,
		SourceItemIDs: out.SourceItemIDs,
	})
	switch {
	case errors.Is(serr, store.ErrSectionLocked):
		o.logger.Info(ctx, "section locked during generation", zap.String("section", name))
		SectionsTotal.WithLabelValues(name, outcomeSkipped).Inc()
		o.emitSection(ctx, in.SessionID, in.SnapshotID, name, events.StatusSkipped, "locked by human edit")
		return sectionResult{outcome: outcomeSkipped}
	case serr != nil:
		span.RecordError(serr)
		o.logger.Error(ctx, "failed to store section", zap.String("section", name), zap.Error(serr))
		SectionsTotal.WithLabelValues(name, outcomeStoreError).Inc()
		o.emitSection(ctx, in.SessionID, in.SnapshotID, name, events.StatusFailed, serr.Error())
		return sectionResult{outcome: outcomeStoreError, err: fmt.Errorf("section %s: %w", name, serr)}
	}

	SectionsTotal.WithLabelValues(name, outcome).Inc()
	span.SetAttributes(attribute.Int("version", v.VersionNumber), attribute.String("outcome", outcome))
	status := events.StatusComplete
	if outcome == outcomeFailed {
		status = events.StatusFailed
	}
	o.emitSection(ctx, in.SessionID, in.SnapshotID, name, status, fmt.Sprintf("version %d", v.VersionNumber))
	o.logger.Debug(ctx, "section stored",
		zap.String("section", name),
		zap.Int("version", v.VersionNumber),
		zap.String("outcome", outcome),
	)
	return sectionResult{version: v, outcome: outcome}
}

// generate calls the agent, turning a panic into an error.
func generate(ctx context.Context, a Agent, in Input) (out Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("agent panic: %v", r)
		}
	}()
	return a.Generate(ctx, in)
}

func (o *Orchestrator) emitSection(ctx context.Context, sessionID, snapshotID, section, status, msg string) {
	events.Emit(ctx, o.publisher, o.logger, events.Event{
		Kind:       events.SynthesisSection,
		SessionID:  sessionID,
		SnapshotID: snapshotID,
		Section:    section,
		Status:     status,
		Message:    msg,
	})
}
