package synthesis

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/brdforge/internal/backoff"
	"github.com/fyrsmithlabs/brdforge/internal/config"
	"github.com/fyrsmithlabs/brdforge/internal/events"
	"github.com/fyrsmithlabs/brdforge/internal/logging"
	"github.com/fyrsmithlabs/brdforge/internal/model"
	"github.com/fyrsmithlabs/brdforge/internal/signal"
	"github.com/fyrsmithlabs/brdforge/internal/store"
	"github.com/fyrsmithlabs/brdforge/internal/telemetry"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Transient = backoff.Policy{MaxAttempts: 2}
	cfg.RateLimit = backoff.Policy{MaxAttempts: 2}
	return cfg
}

func seed(t *testing.T, st store.Store, session string, items ...signal.ClassifiedItem) {
	t.Helper()
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := range items {
		items[i].ID = uuid.NewString()
		items[i].SessionID = session
		items[i].CreatedAt = now.Add(time.Duration(i) * time.Second)
		items[i].Suppressed = items[i].Label == signal.LabelNoise
	}
	require.NoError(t, st.Store(context.Background(), items))
}

func richSession() []signal.ClassifiedItem {
	return []signal.ClassifiedItem{
		{Label: signal.LabelRequirement, Speaker: "alice", SourceRef: "mail-1", CleanedText: "The dashboard must export CSV."},
		{Label: signal.LabelDecision, Speaker: "bob", SourceRef: "mail-2", CleanedText: "We will use Postgres."},
		{Label: signal.LabelTimelineReference, Speaker: "carol", SourceRef: "chat-1", CleanedText: "Go-live is June 1."},
		{Label: signal.LabelStakeholderFeedback, Speaker: "bob", SourceRef: "chat-1", CleanedText: "The old tool is too slow."},
		{Label: signal.LabelNoise, Speaker: "dave", SourceRef: "chat-2", CleanedText: "thanks"},
	}
}

func TestRun_TwiceProducesVersionsOneAndTwo(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	seed(t, st, "s1", richSession()...)
	client := &recordingClient{reply: "Generated content."}

	o := NewOrchestrator(st, client, testConfig())
	snap1, err := o.Run(ctx, "s1")
	require.NoError(t, err)
	snap2, err := o.Run(ctx, "s1")
	require.NoError(t, err)
	assert.NotEqual(t, snap1, snap2)

	for _, name := range AllSections {
		history, err := st.SectionHistory(ctx, "s1", name)
		require.NoError(t, err)
		require.Len(t, history, 2, name)
		assert.Equal(t, 1, history[0].VersionNumber)
		assert.Equal(t, 2, history[1].VersionNumber)
		assert.Equal(t, snap1, history[0].SnapshotID)
		assert.Equal(t, snap2, history[1].SnapshotID)
	}

	latest, err := st.LatestSections(ctx, "s1")
	require.NoError(t, err)
	summary := latest[SectionExecutiveSummary]
	assert.Contains(t, summary, "4 signals")
	assert.Contains(t, summary, "3 source")
	assert.NotContains(t, summary, "insufficient")
}

func TestRun_PlaceholdersForMissingData(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	seed(t, st, "s1",
		signal.ClassifiedItem{Label: signal.LabelRequirement, Speaker: "alice", SourceRef: "mail-1", CleanedText: "Reports must be exportable."},
	)
	client := &recordingClient{reply: "Generated content."}

	_, err := NewOrchestrator(st, client, testConfig()).Run(ctx, "s1")
	require.NoError(t, err)

	latest, err := st.LatestSectionVersions(ctx, "s1")
	require.NoError(t, err)
	for _, name := range []string{SectionStakeholderAnalysis, SectionTimeline, SectionDecisions} {
		v := latest[name]
		assert.True(t, strings.HasPrefix(v.Content, InsufficientMarker), name)
		assert.Empty(t, v.SourceItemIDs, name)
	}
	assert.Equal(t, "Generated content.", latest[SectionFunctionalRequirements].Content)
	assert.Len(t, latest[SectionFunctionalRequirements].SourceItemIDs, 1)

	summary := latest[SectionExecutiveSummary].Content
	assert.Contains(t, summary, "Sections lacking source data: stakeholder_analysis, timeline, decisions.")
	assert.Contains(t, summary, "1 signals extracted from 1 source documents")
}

func TestRun_EmptySession(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	client := &recordingClient{reply: "unused"}

	_, err := NewOrchestrator(st, client, testConfig()).Run(ctx, "empty")
	require.NoError(t, err)

	latest, err := st.LatestSections(ctx, "empty")
	require.NoError(t, err)
	assert.Len(t, latest, len(AllSections))
	for name, content := range latest {
		assert.True(t, IsInsufficient(content), name)
	}
	assert.Contains(t, latest[SectionExecutiveSummary], "0 signals")
	assert.Zero(t, client.calls())
}

func TestRun_SnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	seed(t, st, "s1", richSession()...)

	// Items stored while agents run must not reach this run's snapshot.
	late := signal.ClassifiedItem{ID: "late", SessionID: "s1", Label: signal.LabelRequirement, SourceRef: "late-doc", CleanedText: "late", CreatedAt: time.Now()}
	var once atomic.Bool
	client := model.ClientFunc(func(ctx context.Context, _ []model.Message, _ bool) (string, error) {
		if once.CompareAndSwap(false, true) {
			assert.NoError(t, st.Store(ctx, []signal.ClassifiedItem{late}))
		}
		return "Generated content.", nil
	})

	snapID, err := NewOrchestrator(st, client, testConfig()).Run(ctx, "s1")
	require.NoError(t, err)

	latest, err := st.LatestSectionVersions(ctx, "s1")
	require.NoError(t, err)
	for name, v := range latest {
		assert.NotContains(t, v.SourceItemIDs, "late", name)
		assert.Equal(t, snapID, v.SnapshotID)
	}
	assert.Contains(t, latest[SectionExecutiveSummary].Content, "4 signals")
}

func TestRun_AgentFailureIsIsolated(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	seed(t, st, "s1", richSession()...)

	client := model.ClientFunc(func(_ context.Context, msgs []model.Message, _ bool) (string, error) {
		if strings.Contains(msgs[0].Content, "timeline") {
			return "", &model.Error{Kind: model.KindPermanent, StatusCode: 400, Err: errors.New("bad request")}
		}
		return "Generated content.", nil
	})
	rec := &events.Recorder{}
	logger := logging.NewTestLogger()

	_, err := NewOrchestrator(st, client, testConfig(), WithPublisher(rec), WithLogger(logger.Logger)).Run(ctx, "s1")
	require.NoError(t, err)

	latest, err := st.LatestSectionVersions(ctx, "s1")
	require.NoError(t, err)
	timeline := latest[SectionTimeline]
	assert.True(t, strings.HasPrefix(timeline.Content, "Error generating timeline: "))
	assert.Empty(t, timeline.SourceItemIDs)
	assert.Equal(t, "Generated content.", latest[SectionDecisions].Content)
	logger.AssertLogged(t, zapcore.ErrorLevel, "section agent failed")

	var failed []string
	for _, ev := range rec.OfKind(events.SynthesisSection) {
		if ev.Status == events.StatusFailed {
			failed = append(failed, ev.Section)
		}
	}
	assert.Equal(t, []string{SectionTimeline}, failed)
}

// stubAgent lets tests control an agent's behavior directly.
type stubAgent struct {
	name     string
	generate func(ctx context.Context, in Input) (Output, error)
}

func (a stubAgent) Name() string { return a.name }
func (a stubAgent) Generate(ctx context.Context, in Input) (Output, error) {
	return a.generate(ctx, in)
}

func okAgent(name string) Agent {
	return stubAgent{name: name, generate: func(context.Context, Input) (Output, error) {
		return Output{Content: name + " content", SourceItemIDs: []string{}}, nil
	}}
}

func TestRun_PanickingAgentWritesPlaceholder(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	agents := []Agent{
		stubAgent{name: SectionDecisions, generate: func(context.Context, Input) (Output, error) { panic("kaboom") }},
		okAgent(SectionTimeline),
	}
	o := NewOrchestrator(st, nil, testConfig(), WithAgents(agents, okAgent(SectionExecutiveSummary)))
	_, err := o.Run(ctx, "s1")
	require.NoError(t, err)

	latest, err := st.LatestSections(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Error generating decisions: agent panic: kaboom", latest[SectionDecisions])
	assert.Equal(t, "timeline content", latest[SectionTimeline])
}

func TestRun_BoundedConcurrencyAndSummaryLast(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	var inflight, peak, finished atomic.Int32
	var agents []Agent
	for _, name := range IndependentSections {
		agents = append(agents, stubAgent{name: name, generate: func(context.Context, Input) (Output, error) {
			n := inflight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			inflight.Add(-1)
			finished.Add(1)
			return Output{Content: "ok"}, nil
		}})
	}
	var seenBySummary int32
	summary := stubAgent{name: SectionExecutiveSummary, generate: func(_ context.Context, in Input) (Output, error) {
		seenBySummary = finished.Load()
		assert.Len(t, in.Sections, len(IndependentSections))
		return Output{Content: "summary"}, nil
	}}

	cfg := testConfig()
	cfg.Workers = 2
	_, err := NewOrchestrator(st, nil, cfg, WithAgents(agents, summary)).Run(ctx, "s1")
	require.NoError(t, err)

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, int32(len(IndependentSections)), seenBySummary)
}

func TestRun_LockedSectionIsSkipped(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	seed(t, st, "s1", richSession()...)
	rec := &events.Recorder{}
	o := NewOrchestrator(st, &recordingClient{reply: "Generated content."}, testConfig(), WithPublisher(rec))

	_, err := o.Run(ctx, "s1")
	require.NoError(t, err)
	edited, err := o.EditSection(ctx, "s1", "", SectionDecisions, "Decisions reviewed by the PM.")
	require.NoError(t, err)
	assert.Equal(t, 2, edited.VersionNumber)
	assert.True(t, edited.HumanEdited)
	assert.NotEmpty(t, edited.SnapshotID)

	_, err = o.Run(ctx, "s1")
	require.NoError(t, err)

	history, err := st.SectionHistory(ctx, "s1", SectionDecisions)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "Decisions reviewed by the PM.", history[1].Content)

	timeline, err := st.SectionHistory(ctx, "s1", SectionTimeline)
	require.NoError(t, err)
	assert.Len(t, timeline, 2)

	var skipped []string
	for _, ev := range rec.OfKind(events.SynthesisSection) {
		if ev.Status == events.StatusSkipped {
			skipped = append(skipped, ev.Section)
		}
	}
	assert.Equal(t, []string{SectionDecisions}, skipped)

	_, err = o.Regenerate(ctx, "s1", SectionDecisions)
	assert.ErrorIs(t, err, store.ErrSectionLocked)
}

func TestRegenerate(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	seed(t, st, "s1", richSession()...)
	o := NewOrchestrator(st, &recordingClient{reply: "Generated content."}, testConfig())

	_, err := o.Run(ctx, "s1")
	require.NoError(t, err)

	seed(t, st, "s1", signal.ClassifiedItem{Label: signal.LabelDecision, Speaker: "erin", SourceRef: "mail-9", CleanedText: "We will ship monthly."})

	v, err := o.Regenerate(ctx, "s1", SectionDecisions)
	require.NoError(t, err)
	assert.Equal(t, 2, v.VersionNumber)
	assert.Len(t, v.SourceItemIDs, 2)

	summary, err := o.Regenerate(ctx, "s1", SectionExecutiveSummary)
	require.NoError(t, err)
	assert.Contains(t, summary.Content, "5 signals")

	_, err = o.Regenerate(ctx, "s1", "appendix")
	assert.ErrorIs(t, err, ErrUnknownSection)
}

func TestEditSection_Validation(t *testing.T) {
	o := NewOrchestrator(store.NewMemoryStore(), nil, testConfig(), WithAgents([]Agent{}, okAgent(SectionExecutiveSummary)))

	_, err := o.EditSection(context.Background(), "s1", "", "appendix", "x")
	assert.ErrorIs(t, err, ErrUnknownSection)

	_, err = o.EditSection(context.Background(), "s1", "", SectionTimeline, "  ")
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	v, err := o.EditSection(context.Background(), "s1", "snap-x", SectionTimeline, "Kickoff in May.")
	require.NoError(t, err)
	assert.Equal(t, 1, v.VersionNumber)
	assert.Equal(t, "snap-x", v.SnapshotID)
	assert.Empty(t, v.SourceItemIDs)
}

// failingSectionStore rejects writes for one section.
type failingSectionStore struct {
	*store.MemoryStore
	section string
}

func (s failingSectionStore) StoreSection(ctx context.Context, in store.SectionInput) (signal.SectionVersion, error) {
	if in.SectionName == s.section {
		return signal.SectionVersion{}, errors.New("disk full")
	}
	return s.MemoryStore.StoreSection(ctx, in)
}

func TestRun_StoreFailureIsReturnedAfterSiblingsFinish(t *testing.T) {
	ctx := context.Background()
	st := failingSectionStore{MemoryStore: store.NewMemoryStore(), section: SectionTimeline}
	o := NewOrchestrator(st, nil, testConfig(), WithAgents(
		[]Agent{okAgent(SectionTimeline), okAgent(SectionDecisions)},
		okAgent(SectionExecutiveSummary),
	))

	snapID, err := o.Run(ctx, "s1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NotEmpty(t, snapID)

	latest, err := st.LatestSections(ctx, "s1")
	require.NoError(t, err)
	assert.Contains(t, latest, SectionDecisions)
	assert.Contains(t, latest, SectionExecutiveSummary)
}

func TestRun_Spans(t *testing.T) {
	tel := telemetry.NewTestTelemetry()
	st := store.NewMemoryStore()

	o := NewOrchestrator(st, nil, testConfig(),
		WithTracer(tel.Tracer("test")),
		WithAgents([]Agent{okAgent(SectionTimeline)}, okAgent(SectionExecutiveSummary)),
	)
	_, err := o.Run(context.Background(), "s1")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"synthesis.agent", "synthesis.agent", "synthesis.run"}, tel.SpanNames())
	tel.AssertSpanAttribute(t, "synthesis.run", "session.id", "s1")
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.Default().Synthesis)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 40, cfg.AssumptionsCap)
	assert.Equal(t, 3000, cfg.SummaryCap)
	assert.Equal(t, 2, cfg.Transient.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Transient.Base)
	assert.Equal(t, 60*time.Second, cfg.RateLimit.Cap)
}
