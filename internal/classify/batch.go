package classify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/brdforge/internal/backoff"
	"github.com/fyrsmithlabs/brdforge/internal/config"
	"github.com/fyrsmithlabs/brdforge/internal/logging"
	"github.com/fyrsmithlabs/brdforge/internal/model"
	"github.com/fyrsmithlabs/brdforge/internal/signal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrMalformedResponse marks a model reply that cannot be mapped onto the batch.
var ErrMalformedResponse = errors.New("malformed response")

// Pending is a fragment awaiting model classification, keyed by its input index.
type Pending struct {
	Index    int
	Fragment signal.RawFragment
}

// retryCause is why a batch attempt failed.
type retryCause string

const (
	causeMalformed retryCause = "malformed"
	causeRateLimit retryCause = "rate_limit"
	causeTransient retryCause = "transient"
	causePermanent retryCause = "permanent"
)

// BatchConfig tunes the batch client.
type BatchConfig struct {
	BatchSize   int
	Concurrency int
	GroupPause  time.Duration
	MaxAttempts int
	Transient   backoff.Policy
	RateLimit   backoff.Policy
}

// DefaultBatchConfig returns the production defaults.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		BatchSize:   10,
		Concurrency: 2,
		GroupPause:  time.Second,
		MaxAttempts: 3,
		Transient:   backoff.DefaultTransient(),
		RateLimit:   backoff.DefaultRateLimit(),
	}
}

// BatchConfigFrom converts operator configuration.
func BatchConfigFrom(cfg config.ClassifyConfig) BatchConfig {
	return BatchConfig{
		BatchSize:   cfg.BatchSize,
		Concurrency: cfg.Concurrency,
		GroupPause:  cfg.GroupPause.Duration(),
		MaxAttempts: cfg.MaxAttempts,
		Transient: backoff.Policy{
			MaxAttempts: cfg.MaxAttempts,
			Base:        cfg.BaseBackoff.Duration(),
			Jitter:      cfg.Jitter,
		},
		RateLimit: backoff.Policy{
			MaxAttempts: cfg.MaxAttempts,
			Base:        cfg.RateLimitBackoff.Duration(),
			Cap:         cfg.RateLimitCap.Duration(),
			Jitter:      cfg.Jitter,
		},
	}
}

// BatchClient classifies pending fragments with the model.
type BatchClient struct {
	client model.Client
	cfg    BatchConfig
	logger *logging.Logger
}

// NewBatchClient creates a batch client. Non-positive sizes fall back to defaults.
func NewBatchClient(client model.Client, cfg BatchConfig, logger *logging.Logger) *BatchClient {
	def := DefaultBatchConfig()
	if cfg.BatchSize < 1 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &BatchClient{client: client, cfg: cfg, logger: logger.Named("classify.batch")}
}

// Classify returns one raw model result per pending fragment, aligned with
// pending. Failed batches degrade to noise fallbacks; Classify never fails.
// Results are not thresholded.
func (b *BatchClient) Classify(ctx context.Context, pending []Pending, progress *Progress) []signal.Result {
	out := make([]signal.Result, len(pending))
	if len(pending) == 0 {
		return out
	}

	type span struct{ start, end int }
	var batches []span
	for start := 0; start < len(pending); start += b.cfg.BatchSize {
		batches = append(batches, span{start, min(start+b.cfg.BatchSize, len(pending))})
	}

	for g := 0; g < len(batches); g += b.cfg.Concurrency {
		group := batches[g:min(g+b.cfg.Concurrency, len(batches))]

		var eg errgroup.Group
		eg.SetLimit(b.cfg.Concurrency)
		for _, s := range group {
			eg.Go(func() error {
				results := b.classifyBatch(ctx, pending[s.start:s.end])
				// Each batch owns a disjoint window of out.
				copy(out[s.start:s.end], results)
				progress.Add(len(results))
				return nil
			})
		}
		_ = eg.Wait()

		if g+b.cfg.Concurrency < len(batches) {
			if err := backoff.Sleep(ctx, b.cfg.GroupPause); err != nil {
				b.logger.Warn(ctx, "group pause interrupted", zap.Error(err))
			}
		}
	}

	return out
}

// classifyBatch calls the model for one batch with retries. A panic in the
// client degrades the batch to fallbacks.
func (b *BatchClient) classifyBatch(ctx context.Context, batch []Pending) (results []signal.Result) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			BatchesTotal.WithLabelValues("fallback").Inc()
			b.logger.Error(ctx, "batch panicked, falling back to noise",
				zap.Int("size", len(batch)),
				zap.Error(err),
			)
			results = fallbackResults(len(batch), causePermanent, err)
		}
	}()

	messages := BuildBatchPrompt(batch)

	var (
		lastErr   error
		lastCause retryCause
	)
	for attempt := 1; attempt <= b.cfg.MaxAttempts; attempt++ {
		raw, err := b.client.Complete(ctx, messages, true)
		if err == nil {
			parsed, perr := parseBatchResponse(raw, len(batch))
			if perr == nil {
				BatchesTotal.WithLabelValues("success").Inc()
				return parsed
			}
			err = perr
		}

		lastErr = err
		lastCause = causeOf(err)
		BatchAttemptsTotal.WithLabelValues(string(lastCause)).Inc()

		if lastCause == causePermanent || attempt == b.cfg.MaxAttempts {
			break
		}

		policy := b.cfg.Transient
		if lastCause == causeRateLimit {
			policy = b.cfg.RateLimit
		}
		delay := policy.Delay(attempt)
		b.logger.Warn(ctx, "retrying batch",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", b.cfg.MaxAttempts),
			zap.Int("size", len(batch)),
			zap.String("cause", string(lastCause)),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if serr := backoff.Sleep(ctx, delay); serr != nil {
			lastErr, lastCause = serr, causePermanent
			break
		}
	}

	BatchesTotal.WithLabelValues("fallback").Inc()
	b.logger.Error(ctx, "batch failed, falling back to noise",
		zap.Int("size", len(batch)),
		zap.String("cause", string(lastCause)),
		zap.Error(lastErr),
	)
	return fallbackResults(len(batch), lastCause, lastErr)
}

func causeOf(err error) retryCause {
	switch {
	case errors.Is(err, ErrMalformedResponse):
		return causeMalformed
	case model.IsRateLimit(err):
		return causeRateLimit
	case model.IsPermanent(err):
		return causePermanent
	default:
		return causeTransient
	}
}

// FallbackReasoningPrefix starts the reasoning of every fallback result.
const FallbackReasoningPrefix = "batch failed"

func fallbackResults(n int, cause retryCause, err error) []signal.Result {
	kind := "model error"
	if cause == causeMalformed {
		kind = "malformed response"
	}
	reason := fmt.Sprintf("%s: %s: %v", FallbackReasoningPrefix, kind, err)

	out := make([]signal.Result, n)
	for i := range out {
		out[i] = signal.Result{Label: signal.LabelNoise, Confidence: 0, Reasoning: reason}
	}
	return out
}

// IsFallback reports whether r came from a failed batch.
func IsFallback(r signal.Result) bool {
	return r.Confidence == 0 && strings.HasPrefix(r.Reasoning, FallbackReasoningPrefix+":")
}

type batchItem struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

type batchEnvelope struct {
	Results []batchItem `json:"results"`
}

// parseBatchResponse accepts {"results": [...]} or a bare array of exactly n items.
func parseBatchResponse(raw string, n int) ([]signal.Result, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}

	items, err := decodeBatchItems(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(items) != n {
		return nil, fmt.Errorf("%w: expected %d results, got %d", ErrMalformedResponse, n, len(items))
	}

	out := make([]signal.Result, n)
	for i, it := range items {
		out[i] = signal.Result{
			Label:      signal.ParseLabel(it.Label),
			Confidence: it.Confidence,
			Reasoning:  it.Reasoning,
		}.Clamp()
	}
	return out, nil
}

func decodeBatchItems(raw string) ([]batchItem, error) {
	env, envErr := model.ParseJSON[batchEnvelope](raw)
	if envErr == nil && env.Results != nil {
		return env.Results, nil
	}
	arr, arrErr := model.ParseJSON[[]batchItem](raw)
	if arrErr == nil {
		return arr, nil
	}
	if envErr == nil {
		return nil, errors.New(`missing "results" array`)
	}
	return nil, envErr
}
