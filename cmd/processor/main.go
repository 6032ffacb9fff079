// Processor entry point: the single long-running binary that runs the
// four independent tasks named in §5 — the processing loop, the status
// publisher, the command poller, and the optional synthetic-traffic
// generator — under one root cancellation signal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/deltran/swift-processor/internal/compliance"
	"github.com/deltran/swift-processor/internal/config"
	"github.com/deltran/swift-processor/internal/generator"
	"github.com/deltran/swift-processor/internal/ipc"
	"github.com/deltran/swift-processor/internal/metrics"
	"github.com/deltran/swift-processor/internal/pipeline"
	"github.com/deltran/swift-processor/internal/queue"
	"github.com/deltran/swift-processor/internal/repository"
	"github.com/deltran/swift-processor/internal/resilience"
)

// Exit codes per §6: 0 clean stop, 1 fatal configuration error, 2 fatal
// unrecoverable runtime error.
const (
	exitOK          = 0
	exitConfigError = 1
	exitRuntimeError = 2
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(exitConfigError)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", zap.Error(err))
		os.Exit(exitConfigError)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		os.Exit(exitConfigError)
	}

	logger.Info("starting swift-processor",
		zap.String("version", cfg.Version),
		zap.String("queueProvider", cfg.Queue.Provider),
		zap.Bool("testMode", cfg.TestMode.Enabled),
	)

	q, closeQueue, err := buildQueue(cfg, logger)
	if err != nil {
		logger.Error("failed to build queue backend", zap.Error(err))
		os.Exit(exitRuntimeError)
	}
	defer closeQueue()

	var cache *redis.Client
	if cfg.Database.CacheAddr != "" {
		cache = redis.NewClient(&redis.Options{
			Addr:     cfg.Database.CacheAddr,
			Password: cfg.Database.CachePassword,
			DB:       cfg.Database.CacheDB,
		})
		defer cache.Close()
	}

	repo, err := repository.NewPostgresRepository(repository.PostgresConfig{
		ConnectionString: cfg.Database.ConnectionString,
		MaxOpenConns:     cfg.Database.MaxOpenConns,
		MaxIdleConns:     cfg.Database.MaxIdleConns,
		ConnMaxLifetime:  cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime:  cfg.Database.ConnMaxIdleTime,
	}, cache)
	if err != nil {
		logger.Error("failed to connect to database", zap.Error(err))
		os.Exit(exitRuntimeError)
	}
	defer repo.Close()

	comply := compliance.New(nil)
	m := metrics.New()

	var idm *resilience.IdempotencyManager
	if cache != nil {
		idm = resilience.NewIdempotencyManager(cache, 24*time.Hour)
	}

	pipelineCfg := pipeline.Config{
		MaxConcurrentMessages:            cfg.Processing.MaxConcurrentMessages,
		MessageProcessingTimeoutSeconds:  cfg.Processing.MessageProcessingTimeoutSeconds,
		RetryAttempts:                    cfg.Processing.RetryAttempts,
		RetryDelaySeconds:                cfg.Processing.RetryDelaySeconds,
		QueuePollingIntervalMilliseconds: cfg.Processing.QueuePollingIntervalMilliseconds,
	}
	pl := pipeline.New(q, repo, comply, m, logger, idm, pipelineCfg)

	channel, err := ipc.New(cfg.Communication.CommunicationDirectory)
	if err != nil {
		logger.Error("failed to open communication channel", zap.Error(err))
		os.Exit(exitRuntimeError)
	}

	gen := generator.New(q, logger, generator.Config{
		Enabled:                cfg.TestMode.Enabled,
		GenerationInterval:     cfg.TestMode.GenerationInterval,
		ValidMessagePercentage: cfg.TestMode.ValidMessagePercentage,
		BatchSize:              cfg.TestMode.BatchSize,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutdown signal received, draining in-flight work")
		cancel()
	}()

	state := &processState{testModeEnabled: cfg.TestMode.Enabled}

	var wg sync.WaitGroup
	wg.Add(4)
	go func() { defer wg.Done(); runPipeline(ctx, pl, state, logger) }()
	go func() { defer wg.Done(); runStatusPublisher(ctx, channel, q, m, state, cfg, logger) }()
	go func() {
		defer wg.Done()
		runCommandPoller(ctx, channel, time.Duration(cfg.Communication.StatusUpdateIntervalSeconds)*time.Second, cancel, state, logger)
	}()
	go func() { defer wg.Done(); runGenerator(ctx, gen, state, logger) }()

	wg.Wait()
	logger.Info("swift-processor stopped")
	os.Exit(exitOK)
}

// processState is the shared status the four tasks publish into and read
// from, guarded by mu. The command poller writes testModeEnabled,
// running and restartRequested; runPipeline writes running when the loop
// starts and stops. The published message counters come from the metrics
// snapshot, not from the counter fields here.
type processState struct {
	mu                sync.Mutex
	running           bool
	processing        bool
	testModeEnabled   bool
	messagesProcessed int64
	messagesFailed    int64
	lastProcessedAt   time.Time
	restartRequested  bool
}

func buildQueue(cfg *config.Config, logger *zap.Logger) (queue.Backend, func(), error) {
	switch cfg.Queue.Provider {
	case "nats":
		nc, err := nats.Connect(cfg.Queue.NATSUrl)
		if err != nil {
			return nil, func() {}, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		broker, err := queue.NewNATSBroker(nc, logger)
		if err != nil {
			nc.Close()
			return nil, func() {}, err
		}
		return broker, func() { broker.Close() }, nil
	default:
		mem := queue.NewInMemory()
		return mem, func() { mem.Close() }, nil
	}
}

// runPipeline drives the C7 processing loop and marks processState as
// running for as long as the loop runs.
func runPipeline(ctx context.Context, pl *pipeline.Pipeline, state *processState, logger *zap.Logger) {
	state.mu.Lock()
	state.running = true
	state.mu.Unlock()

	if err := pl.Run(ctx); err != nil {
		logger.Error("pipeline exited with error", zap.Error(err))
	}

	state.mu.Lock()
	state.running = false
	state.mu.Unlock()
}

// runGenerator drives the optional C9 synthetic-traffic generator.
func runGenerator(ctx context.Context, gen *generator.Generator, state *processState, logger *zap.Logger) {
	if err := gen.Run(ctx); err != nil {
		logger.Error("generator exited with error", zap.Error(err))
	}
}

// runStatusPublisher publishes ProcessStatus on the configured interval
// until ctx is cancelled (§4.8, §5).
func runStatusPublisher(ctx context.Context, channel *ipc.Channel, q queue.Backend, m *metrics.ProcessingMetrics, state *processState, cfg *config.Config, logger *zap.Logger) {
	interval := time.Duration(cfg.Communication.StatusUpdateIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	publish := func() {
		snapshot := m.Snapshot()
		qStats, err := q.Stats(ctx, queue.Input)
		if err != nil {
			logger.Warn("failed to read queue stats", zap.Error(err))
		}

		state.mu.Lock()
		status := ipc.ProcessStatus{
			IsRunning:         state.running,
			IsProcessing:      state.processing,
			MessagesProcessed: snapshot.TotalProcessed,
			MessagesFailed:    snapshot.TotalFailed,
			MessagesPending:   qStats.MessagesInQueue,
			StatusUpdatedAt:   time.Now().UTC(),
			Status:            statusLabel(state.running, state.restartRequested),
			TestModeEnabled:   state.testModeEnabled,
			Metadata: map[string]string{
				"averageProcessingTimeMs": fmt.Sprintf("%.2f", snapshot.AverageProcessingTimeMs),
				"messagesPerMinute":       fmt.Sprintf("%.2f", snapshot.MessagesPerMinute),
			},
		}
		state.mu.Unlock()

		if err := channel.PublishStatus(status); err != nil {
			logger.Error("failed to publish status", zap.Error(err))
		}
	}

	publish()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			publish()
		}
	}
}

func statusLabel(running, restarting bool) string {
	switch {
	case restarting:
		return "Restarting"
	case running:
		return "Running"
	default:
		return "Stopped"
	}
}

// runCommandPoller polls command.json on the configured cadence and
// applies lifecycle/test-mode commands to processState (§4.8). Start
// and Stop of the processing loop itself are not implemented as a
// hard pause here — the loop's own health-driven backoff already
// governs throughput — so Start/Stop/Restart only flip the reported
// status and, for Restart, trigger root cancellation so the process
// supervisor can bring up a fresh instance.
func runCommandPoller(ctx context.Context, channel *ipc.Channel, interval time.Duration, cancel context.CancelFunc, state *processState, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cmd, err := channel.PollCommand()
			if err != nil {
				logger.Error("failed to poll command", zap.Error(err))
				continue
			}
			if cmd == nil {
				continue
			}

			logger.Info("command received", zap.String("command", string(cmd.Command)))
			switch cmd.Command {
			case ipc.CommandStart:
				state.mu.Lock()
				state.running = true
				state.mu.Unlock()
			case ipc.CommandStop:
				state.mu.Lock()
				state.running = false
				state.mu.Unlock()
			case ipc.CommandRestart:
				state.mu.Lock()
				state.restartRequested = true
				state.mu.Unlock()
				cancel()
			case ipc.CommandEnableTestMode:
				state.mu.Lock()
				state.testModeEnabled = true
				state.mu.Unlock()
			case ipc.CommandDisableTestMode:
				state.mu.Lock()
				state.testModeEnabled = false
				state.mu.Unlock()
			case ipc.CommandGetStatus:
				// No-op: status.json already reflects current state on
				// the next publish tick.
			}
		}
	}
}
