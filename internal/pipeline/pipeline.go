// Package pipeline implements the processing loop (C7): a single
// in-flight message at a time, carried through frame→decode (C1→C2),
// validate (C3), comply (C4), persist (C6), and forward-to-completed,
// with DLQ routing on any stage failure. Grounded on the teacher's
// server.go worker stage chain, generalized from a fixed event-sourced
// ledger append sequence into this message's own stage sequence.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deltran/swift-processor/internal/compliance"
	"github.com/deltran/swift-processor/internal/metrics"
	"github.com/deltran/swift-processor/internal/queue"
	"github.com/deltran/swift-processor/internal/repository"
	"github.com/deltran/swift-processor/internal/resilience"
	"github.com/deltran/swift-processor/internal/swift"
)

// Config carries the processing settings from §6's configuration
// surface that this pipeline consults directly.
type Config struct {
	MaxConcurrentMessages           int
	MessageProcessingTimeoutSeconds int
	RetryAttempts                   int
	RetryDelaySeconds                int
	QueuePollingIntervalMilliseconds int
}

// DefaultConfig mirrors the processing defaults named across §4 and §6.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentMessages:             1,
		MessageProcessingTimeoutSeconds:   60,
		RetryAttempts:                     3,
		RetryDelaySeconds:                 2,
		QueuePollingIntervalMilliseconds: 1000,
	}
}

// DeadLetterEnvelope is written to the DLQ when the pipeline fails a
// message (§3).
type DeadLetterEnvelope struct {
	ErrorReason     string    `json:"errorReason"`
	ErrorMessage    string    `json:"errorMessage"`
	ErrorStackTrace string    `json:"errorStackTrace,omitempty"`
	FailedAt        time.Time `json:"failedAt"`
	OriginalMessage string    `json:"originalMessage"`
}

// Pipeline wires the queue, swift decoder/validator, compliance
// evaluator, repository, and metrics register into the C7 main loop.
type Pipeline struct {
	cfg        Config
	queue      queue.Backend
	repo       repository.Repository
	compliance *compliance.Validator
	metrics    *metrics.ProcessingMetrics
	logger     *zap.Logger
	idempotency *resilience.IdempotencyManager // nil disables dedup

	inputQueue     string
	completedQueue string
	deadLetterQueue string
}

// New builds a Pipeline against the three standard queue names
// (queue.Input, queue.Completed, queue.DeadLetter); it takes no other
// names. idm may be nil, which disables redelivery dedup entirely.
func New(q queue.Backend, repo repository.Repository, comply *compliance.Validator, m *metrics.ProcessingMetrics, logger *zap.Logger, idm *resilience.IdempotencyManager, cfg Config) *Pipeline {
	return &Pipeline{
		cfg:             cfg,
		queue:           q,
		repo:            repo,
		compliance:      comply,
		metrics:         m,
		logger:          logger,
		idempotency:     idm,
		inputQueue:      queue.Input,
		completedQueue:  queue.Completed,
		deadLetterQueue: queue.DeadLetter,
	}
}

// Run executes the main loop until ctx is cancelled. On a stop signal
// the in-flight message completes to its next safe boundary before the
// loop exits (§5 cancellation semantics).
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		if !p.queue.Health(ctx) {
			if p.sleep(ctx, 5*time.Second) {
				return nil
			}
			continue
		}

		payload, ok, err := p.queue.Receive(ctx, p.inputQueue)
		if err != nil {
			p.logger.Warn("queue receive failed", zap.Error(err))
			if p.sleep(ctx, 5*time.Second) {
				return nil
			}
			continue
		}
		if !ok {
			if p.sleep(ctx, 1*time.Second) {
				return nil
			}
			continue
		}

		p.processOne(ctx, string(payload))
	}
}

// sleep waits for d or ctx cancellation, returning true if the loop
// should exit (ctx was cancelled).
func (p *Pipeline) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return true
	case <-time.After(d):
		return false
	}
}

// processOne carries a single message through every stage. It never
// returns an error: every failure is routed to the DLQ and recorded,
// per §4.7's "never abandon a message" contract.
func (p *Pipeline) processOne(ctx context.Context, raw string) {
	start := time.Now()
	id := uuid.New().String()

	procCtx, cancel := context.WithTimeout(ctx, time.Duration(p.cfg.MessageProcessingTimeoutSeconds)*time.Second)
	defer cancel()

	// A message redelivered by the broker (at-least-once delivery, a
	// consumer crash before ack, ...) carries identical bytes; dedup on
	// a hash of the raw wire content rather than this call's own fresh
	// id, which would never collide (§3 invariant i).
	if p.idempotency != nil {
		dedupKey := resilience.GenerateKey("msg", raw)
		if seen, err := p.idempotency.Exists(procCtx, dedupKey); err != nil {
			p.logger.Warn("idempotency check failed, processing anyway", zap.Error(err))
		} else if seen {
			p.logger.Info("duplicate message dropped", zap.String("dedupKey", dedupKey))
			return
		}
		defer func() {
			if err := p.idempotency.Store(procCtx, dedupKey, true, 0); err != nil {
				p.logger.Warn("failed to record idempotency key", zap.Error(err))
			}
		}()
	}

	var parsed *swift.ParseResult
	parseErr := p.withRetry(procCtx, func() error {
		var err error
		parsed, err = swift.Parse(raw)
		return err
	})
	if parseErr != nil {
		p.fail(procCtx, id, raw, metrics.ParsingError, fmt.Sprintf("Parsing failed: %v", parseErr))
		return
	}

	mt103, ok := parsed.Message.(*swift.MT103Message)
	if !ok {
		p.fail(procCtx, id, raw, metrics.ValidationError, "only MT103 messages are accepted by this pipeline")
		return
	}

	validationReport := swift.ValidateMT103(mt103)
	if !validationReport.Passed() {
		p.fail(procCtx, id, raw, metrics.ValidationError, fmt.Sprintf("validation failed: %v", validationReport.Violations))
		return
	}

	complianceReport := p.compliance.Evaluate(mt103)
	if !complianceReport.Passed() {
		p.fail(procCtx, id, raw, metrics.ValidationError, fmt.Sprintf("compliance failed: %v", complianceReport.Violations))
		return
	}

	parsedJSON, err := json.Marshal(mt103)
	if err != nil {
		p.fail(procCtx, id, raw, metrics.UnexpectedError, fmt.Sprintf("failed to serialise parsed message: %v", err))
		return
	}

	record := &repository.ProcessedMessage{
		ID:            id,
		MessageType:   string(swift.MT103),
		RawMessage:    raw,
		ParsedMessage: parsedJSON,
		Status:        repository.StatusProcessed,
		ProcessedAt:   time.Now().UTC(),
		Metadata: map[string]string{
			"processingDurationMs": fmt.Sprintf("%d", time.Since(start).Milliseconds()),
			"transactionReference": mt103.TransactionReference,
			"amount":               mt103.Amount.String(),
			"currency":             mt103.Currency,
		},
	}

	saveErr := p.withRetry(procCtx, func() error {
		_, err := p.repo.Save(procCtx, record)
		return err
	})
	if saveErr != nil {
		p.fail(procCtx, id, raw, metrics.DatabaseError, fmt.Sprintf("persist failed: %v", saveErr))
		return
	}

	// Downstream fan-out: best-effort. The database remains the
	// authoritative record; a completed-queue send failure is logged,
	// is not recorded in the metrics, and does not revert success
	// (§4.7 step 8).
	sendErr := p.withRetry(procCtx, func() error {
		return p.queue.Send(procCtx, p.completedQueue, []byte(raw))
	})
	if sendErr != nil {
		p.logger.Error("failed to forward message to completed queue",
			zap.String("id", id), zap.Error(sendErr))
	}

	p.metrics.RecordSuccess(time.Since(start))
	p.logger.Info("message processed",
		zap.String("id", id),
		zap.String("transactionReference", mt103.TransactionReference),
		zap.Duration("duration", time.Since(start)),
	)
}

// withRetry applies the fixed-delay, bounded-attempt policy that
// applies throughout C7 (no exponential back-off at this layer; that
// is reserved for C6's internal DB-transient handling).
func (p *Pipeline) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	attempts := p.cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if attempt < attempts-1 {
			if p.sleep(ctx, time.Duration(p.cfg.RetryDelaySeconds)*time.Second) {
				return ctx.Err()
			}
		}
	}
	return lastErr
}

// fail routes a message to the DLQ and records a Failed ProcessedMessage,
// per §3 invariant (iii): status=Failed implies errorDetails is set.
func (p *Pipeline) fail(ctx context.Context, id, raw string, errType metrics.ErrorType, detail string) {
	envelope := DeadLetterEnvelope{
		ErrorReason:     string(errType),
		ErrorMessage:    detail,
		FailedAt:        time.Now().UTC(),
		OriginalMessage: raw,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		p.logger.Error("failed to marshal DLQ envelope", zap.Error(err))
		data = []byte(detail)
	}

	if err := p.queue.Send(ctx, p.deadLetterQueue, data); err != nil {
		p.logger.Error("failed to send DLQ envelope", zap.String("id", id), zap.Error(err))
	}

	record := &repository.ProcessedMessage{
		ID:           id,
		MessageType:  "MT103",
		RawMessage:   raw,
		Status:       repository.StatusFailed,
		ProcessedAt:  time.Now().UTC(),
		ErrorDetails: detail,
		Metadata:     map[string]string{},
	}
	if _, err := p.repo.Save(ctx, record); err != nil {
		p.logger.Error("failed to persist failed record", zap.String("id", id), zap.Error(err))
	}

	p.metrics.RecordFailure(errType)
	p.logger.Warn("message failed", zap.String("id", id), zap.String("errorType", string(errType)), zap.String("detail", detail))
}
