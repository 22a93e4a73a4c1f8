package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/harun/vsbridge/internal/metrics"
	"github.com/harun/vsbridge/internal/tracing"
	"github.com/harun/vsbridge/pkg/protocol"
)

// DefaultConcurrency is the per-lane concurrency limit.
const DefaultConcurrency = 4

// Sink receives the response for each dispatched command.
type Sink func(resp protocol.Response) error

// Config holds configuration for a Queue
type Config struct {
	Executor    protocol.Executor
	Sink        Sink
	Concurrency int
	// ExecTimeout bounds a single executor call; zero means no bound.
	ExecTimeout time.Duration
	Logger      zerolog.Logger
	Metrics     *metrics.Metrics
}

type taskRecord struct {
	cmd        protocol.Command
	ctx        context.Context
	enqueuedAt time.Time
}

// laneState manages execution state for a single lane
type laneState struct {
	queue   []*taskRecord
	running int
	mu      sync.Mutex
}

// Queue dispatches commands to an executor and routes results to a sink.
type Queue struct {
	executor    protocol.Executor
	sink        Sink
	concurrency int
	execTimeout time.Duration
	logger      zerolog.Logger
	metrics     *metrics.Metrics

	lanes  map[string]*laneState
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Queue
func New(cfg Config) (*Queue, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if cfg.Sink == nil {
		return nil, fmt.Errorf("response sink is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Queue{
		executor:    cfg.Executor,
		sink:        cfg.Sink,
		concurrency: cfg.Concurrency,
		execTimeout: cfg.ExecTimeout,
		logger:      cfg.Logger.With().Str("component", "dispatch").Logger(),
		metrics:     cfg.Metrics,
		lanes:       make(map[string]*laneState),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Submit queues cmd and returns immediately.
func (q *Queue) Submit(ctx context.Context, cmd protocol.Command) {
	if ctx == nil {
		ctx = context.Background()
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.respond(ctx, protocol.Response{ID: cmd.ID, Success: false, Error: "session is shutting down"})
		return
	}
	ls, exists := q.lanes[cmd.Tool]
	if !exists {
		ls = &laneState{}
		q.lanes[cmd.Tool] = ls
	}
	// Enqueue under q.mu so Close either sees the record or we see closed.
	ls.mu.Lock()
	ls.queue = append(ls.queue, &taskRecord{cmd: cmd, ctx: ctx, enqueuedAt: time.Now()})
	queueSize := len(ls.queue)
	ls.mu.Unlock()
	q.mu.Unlock()

	q.logger.Debug().
		Str("lane", cmd.Tool).
		Str("command_id", cmd.ID).
		Int("queueSize", queueSize).
		Msg("Command enqueued")

	q.processLane(cmd.Tool, ls)
}

// processLane starts queued commands while the lane has capacity.
func (q *Queue) processLane(lane string, ls *laneState) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	for ls.running < q.concurrency && len(ls.queue) > 0 {
		record := ls.queue[0]
		ls.queue = ls.queue[1:]
		ls.running++

		q.wg.Add(1)
		go q.execute(lane, ls, record)
	}
}

func (q *Queue) execute(lane string, ls *laneState, record *taskRecord) {
	defer q.wg.Done()

	cmd := record.cmd
	ctx := tracing.WithCommand(record.ctx, cmd.ID, cmd.Tool)
	ctx, span := tracing.StartSpan(ctx, "vsbridge.dispatch", "dispatch.execute",
		attribute.String("lane", lane))
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, q.logger)

	runCtx, cancel := context.WithCancel(ctx)
	stopCancel := context.AfterFunc(q.ctx, cancel)
	defer func() {
		stopCancel()
		cancel()
	}()
	if q.execTimeout > 0 {
		var timeoutCancel context.CancelFunc
		runCtx, timeoutCancel = context.WithTimeout(runCtx, q.execTimeout)
		defer timeoutCancel()
	}

	start := time.Now()
	result := q.run(runCtx, cmd)
	duration := time.Since(start)

	ls.mu.Lock()
	ls.running--
	ls.mu.Unlock()

	if !result.Success {
		tracing.Fail(span, result.Error)
		logger.Warn().
			Dur("duration", duration).
			Str("error", result.Error).
			Msg("Command failed")
	} else {
		logger.Debug().
			Dur("duration", duration).
			Msg("Command completed")
	}

	q.metrics.RecordDispatch(cmd.Tool, result.Success, duration)
	q.respond(ctx, protocol.ResponseFor(cmd.ID, result))

	q.processLane(lane, ls)
}

// run calls the executor, converting errors, panics and unencodable data into
// failure results.
func (q *Queue) run(ctx context.Context, cmd protocol.Command) (result protocol.Result) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error().
				Str("command_id", cmd.ID).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Executor panicked")
			result = protocol.Failure(fmt.Sprintf("executor panicked: %v", r))
		}
	}()

	res, err := q.executor.Execute(ctx, cmd.Tool, cmd.Args)
	if err != nil {
		return protocol.Failure(err.Error())
	}
	if len(res.Data) > 0 && !json.Valid(res.Data) {
		return protocol.Failure("executor returned invalid JSON data")
	}
	if !res.Success && res.Error == "" {
		res.Error = fmt.Sprintf("%s failed", cmd.Tool)
	}
	return res
}

func (q *Queue) respond(ctx context.Context, resp protocol.Response) {
	if err := q.sink(resp); err != nil {
		logger := tracing.LoggerFromContext(ctx, q.logger)
		logger.Warn().
			Err(err).
			Str("command_id", resp.ID).
			Msg("Failed to deliver response")
	}
}

// Stats returns queued and running counts per lane.
func (q *Queue) Stats() map[string]map[string]int {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := make(map[string]map[string]int, len(q.lanes))
	for lane, ls := range q.lanes {
		ls.mu.Lock()
		stats[lane] = map[string]int{
			"queued":      len(ls.queue),
			"running":     ls.running,
			"concurrency": q.concurrency,
		}
		ls.mu.Unlock()
	}
	return stats
}

// Close rejects queued commands, cancels running ones and waits for them to
// deliver their responses.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	lanes := make([]*laneState, 0, len(q.lanes))
	for _, ls := range q.lanes {
		lanes = append(lanes, ls)
	}
	q.mu.Unlock()

	var rejected []*taskRecord
	for _, ls := range lanes {
		ls.mu.Lock()
		rejected = append(rejected, ls.queue...)
		ls.queue = nil
		ls.mu.Unlock()
	}

	for _, record := range rejected {
		q.respond(record.ctx, protocol.Response{
			ID:      record.cmd.ID,
			Success: false,
			Error:   "session is shutting down",
		})
	}

	q.cancel()
	q.wg.Wait()

	return nil
}
