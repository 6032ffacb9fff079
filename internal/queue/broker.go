package queue

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/deltran/swift-processor/internal/resilience"
)

// streamName is the single JetStream stream backing every logical queue
// name; each queue name maps to its own filter subject within it.
const streamName = "SWIFT_MESSAGES"

// subjectFor maps a logical queue name to its JetStream subject.
func subjectFor(queueName string) string {
	return "swift.messages." + queueName
}

// consumerFor derives a stable durable-consumer name per queue.
func consumerFor(queueName string) string {
	return "swift-processor-" + queueName
}

// NATSBroker is the external-broker Backend, adapted from the teacher's
// internal/bus Producer/Consumer onto the Send/Receive/Health/Stats
// contract. Send and Receive run through a circuit breaker so that, while
// it is open, they return ErrQueueUnhealthy instead of a raw NATS error
// (§4.5). Health reads the connection status and the breaker state;
// Stats calls JetStream directly, outside the breaker.
type NATSBroker struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	logger *zap.Logger
	cb     *resilience.CircuitBreaker

	subs map[string]*nats.Subscription

	processed atomic.Int64
	failed    atomic.Int64
}

// NewNATSBroker connects the given NATS connection to JetStream, ensures
// the backing stream exists, and wraps all operations in a circuit
// breaker tuned for broker outages.
func NewNATSBroker(nc *nats.Conn, logger *zap.Logger) (*NATSBroker, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("queue: failed to get JetStream context: %w", err)
	}

	if _, err := js.StreamInfo(streamName); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     streamName,
			Subjects: []string{"swift.messages.>"},
			Storage:  nats.FileStorage,
		})
		if err != nil {
			return nil, fmt.Errorf("queue: failed to create stream: %w", err)
		}
	}

	cfg := resilience.DefaultConfig("queue-broker")
	cfg.OnStateChange = func(name string, from, to resilience.State) {
		logger.Warn("queue circuit breaker state change",
			zap.String("breaker", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}

	return &NATSBroker{
		nc:     nc,
		js:     js,
		logger: logger,
		cb:     resilience.NewCircuitBreaker(cfg),
		subs:   make(map[string]*nats.Subscription),
	}, nil
}

func (b *NATSBroker) Send(ctx context.Context, queueName string, payload []byte) error {
	err := b.cb.ExecuteContext(ctx, func(ctx context.Context) error {
		pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		msg := &nats.Msg{
			Subject: subjectFor(queueName),
			Data:    payload,
		}
		_, err := b.js.PublishMsg(msg, nats.Context(pubCtx))
		return err
	})
	if err != nil {
		b.logger.Error("queue send failed", zap.String("queue", queueName), zap.Error(err))
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return ErrQueueUnhealthy
		}
		return fmt.Errorf("queue: send failed: %w", err)
	}
	return nil
}

// Receive performs a short, bounded pull-fetch so the call is
// effectively non-blocking relative to the pipeline's polling loop
// (§4.5): no message within a brief window is reported as (nil, false,
// nil), not an error.
func (b *NATSBroker) Receive(ctx context.Context, queueName string) ([]byte, bool, error) {
	var payload []byte
	var found bool

	err := b.cb.ExecuteContext(ctx, func(ctx context.Context) error {
		sub, err := b.subscription(queueName)
		if err != nil {
			return err
		}

		msgs, err := sub.Fetch(1, nats.MaxWait(200*time.Millisecond))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		if len(msgs) == 0 {
			return nil
		}

		msg := msgs[0]
		payload = append([]byte(nil), msg.Data...)
		found = true
		if ackErr := msg.Ack(); ackErr != nil {
			b.logger.Error("queue ack failed", zap.String("queue", queueName), zap.Error(ackErr))
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, false, ErrQueueUnhealthy
		}
		return nil, false, fmt.Errorf("queue: receive failed: %w", err)
	}
	return payload, found, nil
}

func (b *NATSBroker) subscription(queueName string) (*nats.Subscription, error) {
	if sub, ok := b.subs[queueName]; ok {
		return sub, nil
	}

	subject := subjectFor(queueName)
	consumer := consumerFor(queueName)

	sub, err := b.js.PullSubscribe(subject, consumer, nats.Bind(streamName, consumer))
	if err != nil {
		_, addErr := b.js.AddConsumer(streamName, &nats.ConsumerConfig{
			Durable:       consumer,
			FilterSubject: subject,
			AckPolicy:     nats.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: nats.DeliverAllPolicy,
		})
		if addErr != nil {
			return nil, fmt.Errorf("failed to create consumer %q: %w", consumer, addErr)
		}
		sub, err = b.js.PullSubscribe(subject, consumer, nats.Bind(streamName, consumer))
		if err != nil {
			return nil, fmt.Errorf("failed to subscribe to %q: %w", subject, err)
		}
	}

	b.subs[queueName] = sub
	return sub, nil
}

func (b *NATSBroker) Health(context.Context) bool {
	return b.nc.Status() == nats.CONNECTED && b.cb.State() != resilience.StateOpen
}

func (b *NATSBroker) Stats(_ context.Context, queueName string) (Stats, error) {
	info, err := b.js.ConsumerInfo(streamName, consumerFor(queueName))
	if err != nil {
		return Stats{
			MessagesProcessed: b.processed.Load(),
			MessagesFailed:    b.failed.Load(),
			LastUpdated:       time.Now().UTC(),
		}, nil
	}
	return Stats{
		MessagesInQueue:   int(info.NumPending),
		MessagesProcessed: b.processed.Load(),
		MessagesFailed:    b.failed.Load(),
		LastUpdated:       time.Now().UTC(),
	}, nil
}

// MarkProcessed/MarkFailed let the pipeline feed outcome counters back
// into Stats, mirroring InMemory's bookkeeping.
func (b *NATSBroker) MarkProcessed() { b.processed.Add(1) }
func (b *NATSBroker) MarkFailed()    { b.failed.Add(1) }

func (b *NATSBroker) Close() error {
	for _, sub := range b.subs {
		_ = sub.Drain()
	}
	b.nc.Close()
	return nil
}
