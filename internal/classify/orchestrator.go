package classify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/brdforge/internal/events"
	"github.com/fyrsmithlabs/brdforge/internal/logging"
	"github.com/fyrsmithlabs/brdforge/internal/signal"
)

const instrumentationName = "github.com/fyrsmithlabs/brdforge/internal/classify"

// Resolution paths recorded in metrics.
const (
	PathDomainGate = "domain_gate"
	PathModel      = "model"
	PathFallback   = "fallback"
	PathPanic      = "panic"
)

// ItemWriter persists classified items.
type ItemWriter interface {
	Store(ctx context.Context, items []signal.ClassifiedItem) error
}

// Pipeline runs the two-phase classification over a session's fragments.
type Pipeline struct {
	batch     *BatchClient
	store     ItemWriter
	publisher events.Publisher
	logger    *logging.Logger
	tracer    trace.Tracer
	now       func() time.Time
	newID     func() string
	local     func(signal.RawFragment) (signal.Result, string, bool)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithPublisher sends pipeline events to p.
func WithPublisher(p events.Publisher) Option {
	return func(pl *Pipeline) { pl.publisher = p }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(pl *Pipeline) { pl.logger = l }
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(pl *Pipeline) { pl.tracer = t }
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(pl *Pipeline) { pl.now = now }
}

// NewPipeline creates a pipeline that escalates to batch and persists to store.
func NewPipeline(batch *BatchClient, store ItemWriter, opts ...Option) *Pipeline {
	p := &Pipeline{
		batch:     batch,
		store:     store,
		publisher: events.NopPublisher{},
		logger:    logging.Nop(),
		tracer:    otel.Tracer(instrumentationName),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     func() string { return uuid.New().String() },
		local:     resolveLocal,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("classify")
	return p
}

// Classify classifies fragments and stores the resulting items. The returned
// slice is aligned with fragments. Only persistence failures are returned.
func (p *Pipeline) Classify(ctx context.Context, sessionID string, fragments []signal.RawFragment) ([]signal.ClassifiedItem, error) {
	ctx = logging.WithSessionID(ctx, sessionID)
	ctx, span := p.tracer.Start(ctx, "classify.pipeline")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", sessionID),
		attribute.Int("fragments", len(fragments)),
	)

	events.Emit(ctx, p.publisher, p.logger, events.Event{
		Kind:      events.ClassificationStarted,
		SessionID: sessionID,
		Total:     len(fragments),
	})

	results := make([]signal.Result, len(fragments))
	paths := make([]string, len(fragments))
	var pending []Pending

	for i, f := range fragments {
		res, path, ok := p.resolveLocally(ctx, f)
		if !ok {
			pending = append(pending, Pending{Index: i, Fragment: f})
			continue
		}
		results[i], paths[i] = res, path
	}

	resolved := len(fragments) - len(pending)
	progress := NewProgress(len(fragments), func(done, total int) {
		events.Emit(ctx, p.publisher, p.logger, events.Event{
			Kind:      events.ClassificationProgress,
			SessionID: sessionID,
			Done:      done,
			Total:     total,
		})
	})
	progress.Add(resolved)
	span.SetAttributes(attribute.Int("pending", len(pending)))

	if len(pending) > 0 {
		modelResults := p.batch.Classify(ctx, pending, progress)
		for j, pend := range pending {
			r := modelResults[j]
			path := PathModel
			if IsFallback(r) {
				path = PathFallback
			}
			results[pend.Index] = ApplyThreshold(r)
			paths[pend.Index] = path
		}
	}

	now := p.now()
	items := make([]signal.ClassifiedItem, len(fragments))
	counts := make(map[string]int)
	for i, f := range fragments {
		items[i] = signal.NewClassifiedItem(p.newID(), sessionID, f, results[i], now)
		ItemsTotal.WithLabelValues(paths[i], string(results[i].Label)).Inc()
		counts[string(results[i].Label)]++
	}

	if err := p.store.Store(ctx, items); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store failed")
		return nil, fmt.Errorf("store classified items: %w", err)
	}

	p.logger.Info(ctx, "classification complete",
		zap.Int("fragments", len(fragments)),
		zap.Int("resolved_locally", resolved),
		zap.Int("escalated", len(pending)),
	)
	events.Emit(ctx, p.publisher, p.logger, events.Event{
		Kind:      events.ClassificationCompleted,
		SessionID: sessionID,
		Done:      len(fragments),
		Total:     len(fragments),
		Counts:    counts,
	})

	return items, nil
}

// resolveLocally runs phase one for a single fragment. A panic degrades the
// fragment to zero-confidence noise.
func (p *Pipeline) resolveLocally(ctx context.Context, f signal.RawFragment) (res signal.Result, path string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error(ctx, "panic classifying fragment",
				zap.String("source_ref", f.SourceRef),
				zap.Any("panic", r),
			)
			res = signal.Result{Label: signal.LabelNoise, Confidence: 0, Reasoning: fmt.Sprintf("classification error: %v", r)}
			path, ok = PathPanic, true
		}
	}()

	return p.local(f)
}

// resolveLocal applies the heuristics, then the domain gate.
func resolveLocal(f signal.RawFragment) (signal.Result, string, bool) {
	text := f.Text()
	if label, rule, matched := Heuristic(text, f.Speaker); matched {
		return heuristicResult(label), string(rule), true
	}
	if r, resolved := DomainGate(text); resolved {
		return r, PathDomainGate, true
	}
	return signal.Result{}, "", false
}
