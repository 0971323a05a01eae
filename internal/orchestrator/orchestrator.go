// Package orchestrator runs batches of flow records through feature
// building, both scorers and the decision engine on a worker pool, folds the
// batch summary and hands the result to the configured writer.
package orchestrator

import (
	"NetVerdict/internal/artifact"
	"NetVerdict/internal/decision"
	"NetVerdict/internal/model"
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var (
	// ErrClosed is returned by Process after Close has been called.
	ErrClosed = errors.New("orchestrator closed: no new batches admitted")
	// ErrSink wraps writer failures. The batch result is still returned.
	ErrSink = errors.New("sink write failed")
	// ErrInterrupted is returned when the context ends mid-batch. The partial
	// result is returned but not written.
	ErrInterrupted = errors.New("batch interrupted")
)

// Options configures an Orchestrator.
type Options struct {
	NumWorkers int
	Logger     *zap.Logger
	// Registerer receives the orchestrator metrics; nil disables registration.
	Registerer prometheus.Registerer
}

// Orchestrator scores batches. The bundle and engine are shared read-only by
// all workers; per-worker summary shards are merged after the pool drains.
type Orchestrator struct {
	bundle     *artifact.Bundle
	engine     *decision.Engine
	writer     model.Writer
	numWorkers int
	logger     *zap.Logger
	metrics    *metrics

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// New creates an Orchestrator. writer may be nil, in which case results are
// only returned to the caller.
func New(bundle *artifact.Bundle, engine *decision.Engine, writer model.Writer, opts Options) (*Orchestrator, error) {
	if bundle == nil || engine == nil {
		return nil, errors.New("orchestrator needs a model bundle and a decision engine")
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 1
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Orchestrator{
		bundle:     bundle,
		engine:     engine,
		writer:     writer,
		numWorkers: opts.NumWorkers,
		logger:     opts.Logger,
		metrics:    newMetrics(opts.Registerer),
	}, nil
}

// outcome is the all-or-nothing result of one flow.
type outcome struct {
	flow    model.EnrichedFlow
	failure *model.FlowFailure
}

// Process scores raws and writes the result. Per-flow failures never abort
// the batch; they are listed in the result.
func (o *Orchestrator) Process(ctx context.Context, source string, raws []model.RawFlowRecord) (*model.BatchResult, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrClosed
	}
	o.inflight.Add(1)
	o.mu.Unlock()
	defer o.inflight.Done()

	start := time.Now()
	res := &model.BatchResult{
		ID:        uuid.NewString(),
		Source:    source,
		StartedAt: start,
	}

	outcomes := make([]outcome, len(raws))
	shards := make([]model.BatchSummary, o.numWorkers)
	jobs := make(chan int, o.numWorkers)

	var wg sync.WaitGroup
	wg.Add(o.numWorkers)
	for w := 0; w < o.numWorkers; w++ {
		shards[w] = model.NewBatchSummary()
		go o.worker(ctx, &wg, raws, outcomes, &shards[w], jobs)
	}

	fed := 0
feed:
	for fed < len(raws) {
		select {
		case jobs <- fed:
			fed++
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	for i := fed; i < len(raws); i++ {
		outcomes[i].failure = cancelled(i, &raws[i])
	}

	res.Summary = model.NewBatchSummary()
	for i := range shards {
		res.Summary.Merge(shards[i])
	}
	res.Flows = make([]model.EnrichedFlow, 0, len(raws))
	for i := range outcomes {
		if outcomes[i].failure != nil {
			res.Failures = append(res.Failures, *outcomes[i].failure)
			continue
		}
		res.Flows = append(res.Flows, outcomes[i].flow)
	}
	res.FinishedAt = time.Now()
	o.metrics.observe(res)

	log := o.logger.With(zap.String("batch_id", res.ID), zap.String("source", source))
	if err := ctx.Err(); err != nil {
		o.metrics.batches.WithLabelValues("interrupted").Inc()
		log.Warn("batch interrupted, result not written", zap.Int("cancelled", len(raws)-fed), zap.Error(err))
		return res, fmt.Errorf("%w: %w", ErrInterrupted, err)
	}

	if o.writer != nil {
		if err := o.writer.Write(ctx, res); err != nil {
			o.metrics.batches.WithLabelValues("sink_error").Inc()
			o.metrics.batchDuration.Observe(time.Since(start).Seconds())
			log.Error("failed to write batch", zap.Error(err))
			return res, fmt.Errorf("%w: %w", ErrSink, err)
		}
	}

	o.metrics.batches.WithLabelValues("ok").Inc()
	o.metrics.batchDuration.Observe(time.Since(start).Seconds())
	log.Info("batch processed",
		zap.Int("succeeded", res.Succeeded()),
		zap.Int("failed", res.Failed()),
		zap.Float64("avg_risk_score", res.Summary.AvgRiskScore()),
		zap.Duration("took", res.FinishedAt.Sub(start)),
	)
	return res, nil
}

// worker evaluates the flows whose indices arrive on jobs. Each index is
// written by exactly one worker, so outcomes needs no lock.
func (o *Orchestrator) worker(ctx context.Context, wg *sync.WaitGroup, raws []model.RawFlowRecord, outcomes []outcome, shard *model.BatchSummary, jobs <-chan int) {
	defer wg.Done()
	for i := range jobs {
		if ctx.Err() != nil {
			outcomes[i].failure = cancelled(i, &raws[i])
			continue
		}
		flow, failure := o.Evaluate(&raws[i])
		if failure != nil {
			failure.Index = i
			failure.RecordID = recordID(i, &raws[i])
			outcomes[i].failure = failure
			continue
		}
		outcomes[i].flow = flow
		shard.Add(flow)
	}
}

// Evaluate runs a single record through the pipeline. On failure the
// returned FlowFailure carries the kind and reason only.
func (o *Orchestrator) Evaluate(r *model.RawFlowRecord) (model.EnrichedFlow, *model.FlowFailure) {
	vec, err := o.bundle.Builder.Build(r)
	if err != nil {
		return model.EnrichedFlow{}, &model.FlowFailure{Kind: model.FailureFeature, Reason: err.Error()}
	}

	var (
		cls     *model.ClassifierOutput
		anom    *model.AnomalyOutput
		adapter []error
	)
	if o.bundle.Classifier != nil {
		out, err := o.bundle.Classifier.Predict(vec)
		if err != nil {
			adapter = append(adapter, err)
		} else {
			cls = &out
		}
	}
	if o.bundle.Anomaly != nil {
		out, err := o.bundle.Anomaly.Score(vec)
		if err != nil {
			adapter = append(adapter, err)
		} else {
			anom = &out
		}
	}

	v, err := o.engine.Decide(cls, anom)
	if err != nil {
		reason := errors.Join(append([]error{err}, adapter...)...).Error()
		return model.EnrichedFlow{}, &model.FlowFailure{Kind: model.FailureDecision, Reason: reason}
	}
	if len(adapter) > 0 {
		o.logger.Debug("scorer failed, decided on the remaining signal", zap.Errors("errors", adapter))
	}

	flow := model.EnrichedFlow{
		Record:          *r,
		Verdict:         v,
		Threat:          decision.Threat(v.FinalClassification),
		MissingFeatures: vec.Missing,
	}
	if v.FinalClassification == o.engine.Config().AnomalyLabel {
		flow.SuspectedThreat = decision.InferThreat(r, v.AnomalyScore)
	}
	return flow, nil
}

// Close stops admitting batches, waits for in-flight ones and closes the writer.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.mu.Unlock()

	o.inflight.Wait()
	o.logger.Info("orchestrator stopped")
	if o.writer != nil {
		return o.writer.Close()
	}
	return nil
}

func cancelled(i int, r *model.RawFlowRecord) *model.FlowFailure {
	return &model.FlowFailure{
		Index:    i,
		RecordID: recordID(i, r),
		Kind:     model.FailureCancelled,
		Reason:   "not started before shutdown",
	}
}

func recordID(i int, r *model.RawFlowRecord) string {
	if r.ID != "" {
		return r.ID
	}
	return "#" + strconv.Itoa(i)
}
