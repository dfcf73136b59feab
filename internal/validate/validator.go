// Package validate inspects a generated document for gaps and
// contradictions and records what it finds as validation flags.
package validate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/brdforge/internal/backoff"
	"github.com/fyrsmithlabs/brdforge/internal/events"
	"github.com/fyrsmithlabs/brdforge/internal/logging"
	"github.com/fyrsmithlabs/brdforge/internal/model"
	"github.com/fyrsmithlabs/brdforge/internal/signal"
)

const instrumentationName = "github.com/fyrsmithlabs/brdforge/internal/validate"

// Store is the subset of the signal store the validator needs.
type Store interface {
	LatestSections(ctx context.Context, sessionID string) (map[string]string, error)
	StoreFlag(ctx context.Context, flag signal.ValidationFlag) error
}

// Validator runs gates over the latest sections of a session.
type Validator struct {
	store     Store
	gates     []Gate
	publisher events.Publisher
	logger    *logging.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// Option configures a Validator.
type Option func(*Validator)

// WithGates replaces the default gates.
func WithGates(gates ...Gate) Option {
	return func(v *Validator) { v.gates = gates }
}

// WithPublisher sends a completion event to p.
func WithPublisher(p events.Publisher) Option {
	return func(v *Validator) { v.publisher = p }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(v *Validator) { v.logger = l }
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(v *Validator) { v.tracer = t }
}

// NewValidator builds a validator. Unless WithGates is given it runs the gap
// gate and a contradiction gate that calls client through a retrying wrapper.
func NewValidator(st Store, client model.Client, opts ...Option) *Validator {
	v := &Validator{
		store:     st,
		publisher: events.NopPublisher{},
		logger:    logging.Nop(),
		tracer:    otel.Tracer(instrumentationName),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(v)
	}
	v.logger = v.logger.Named("validate")
	if v.gates == nil {
		retrying := model.NewRetrying(client, backoff.DefaultTransient(), backoff.DefaultRateLimit(), v.logger)
		v.gates = []Gate{NewGapGate(), NewContradictionGate(retrying, v.logger)}
	}
	return v
}

// Validate checks the latest sections of a session and persists every flag
// raised. Flags are additive across runs. A failing gate is logged and
// skipped; store failures are returned.
func (v *Validator) Validate(ctx context.Context, sessionID string) ([]signal.ValidationFlag, error) {
	ctx = logging.WithSessionID(ctx, sessionID)
	ctx, span := v.tracer.Start(ctx, "validate.run")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	sections, err := v.store.LatestSections(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read sections failed")
		return nil, fmt.Errorf("read sections: %w", err)
	}
	if len(sections) == 0 {
		v.logger.Info(ctx, "no sections to validate")
		return []signal.ValidationFlag{}, nil
	}

	state := State{SessionID: sessionID, Sections: sections}
	flags := []signal.ValidationFlag{}
	var errs []error
	for _, gate := range v.gates {
		raised, err := gate.Check(ctx, state)
		if err != nil {
			GateErrorsTotal.WithLabelValues(gate.Name()).Inc()
			v.logger.Warn(ctx, "validation gate failed", zap.String("gate", gate.Name()), zap.Error(err))
			continue
		}
		for _, f := range raised {
			f.ID = uuid.NewString()
			f.SessionID = sessionID
			f.CreatedAt = v.now()
			if err := v.store.StoreFlag(ctx, f); err != nil {
				errs = append(errs, fmt.Errorf("store %s flag for %s: %w", f.FlagType, f.SectionName, err))
				continue
			}
			FlagsTotal.WithLabelValues(string(f.FlagType), string(f.Severity)).Inc()
			flags = append(flags, f)
		}
	}

	counts := make(map[string]int)
	for _, f := range flags {
		counts[string(f.Severity)]++
	}
	span.SetAttributes(attribute.Int("flags", len(flags)))
	v.logger.Info(ctx, "validation complete",
		zap.Int("flags", len(flags)),
		zap.Int("high", counts[string(signal.SeverityHigh)]),
		zap.Int("medium", counts[string(signal.SeverityMedium)]),
	)
	events.Emit(ctx, v.publisher, v.logger, events.Event{
		Kind:      events.ValidationCompleted,
		SessionID: sessionID,
		Total:     len(flags),
		Counts:    counts,
	})

	if len(errs) > 0 {
		err := errors.Join(errs...)
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist flags failed")
		return flags, err
	}
	return flags, nil
}
