// Package orchestrator turns finalized transcript lines into canonical
// analysis results. It owns the resilience policy around the upstream
// classifier: duplicate suppression, single-flight with supersede, and local
// fallback when the upstream is unreachable. Submit never fails; the
// visualization must keep moving through a backend outage.
package orchestrator

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/getsentry/sentry-go"
	"github.com/veskrna/moodstream/internal/analysis"
	"github.com/veskrna/moodstream/internal/classifier"
)

// minClassifyLen is the shortest input worth a network round trip. Anything
// shorter gets an immediate neutral result.
const minClassifyLen = 3

// Config holds configuration for an Orchestrator.
type Config struct {
	Classifier classifier.Client
	Logger     *log.Logger

	// OnError observes classifier failures that triggered a fallback. When
	// nil, failures are reported to sentry.
	OnError func(error)

	// ResultBuffer sizes the Results channel (default 16).
	ResultBuffer int
}

// Orchestrator manages classifier submissions for a single session. One
// instance per session; all mutable state is owned by the instance.
type Orchestrator struct {
	classifier classifier.Client
	logger     *log.Logger
	onError    func(error)

	results chan analysis.Result
	done    chan struct{}

	mu            sync.Mutex
	lastSubmitted string
	seq           uint64 // reservation counter, defines arrival order
	lastSeq       uint64 // newest reservation that proceeded to classification
	cancelFlight  context.CancelFunc
	stopped       bool
}

// New creates an Orchestrator for one session.
func New(cfg Config) *Orchestrator {
	buf := cfg.ResultBuffer
	if buf <= 0 {
		buf = 16
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{
		classifier: cfg.Classifier,
		logger:     logger,
		onError:    cfg.OnError,
		results:    make(chan analysis.Result, buf),
		done:       make(chan struct{}),
	}
}

// Results is the stream of completed analyses, in submission order. A
// superseded in-flight submission's result never appears here.
func (o *Orchestrator) Results() <-chan analysis.Result {
	return o.results
}

// Done is closed when the orchestrator is stopped.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

// Reserve assigns the next submission sequence number. A caller handing
// finalized lines to per-line goroutines reserves on the arrival goroutine,
// where arrival order is still known; SubmitSeq then rejects any delivery
// the scheduler ran out of order.
func (o *Orchestrator) Reserve() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seq++
	return o.seq
}

// Submit runs one finalized transcript line through the classifier pipeline
// and returns the canonical result. ok is false when the submission was
// skipped (blank text, duplicate of the previous line, stopped session, or
// superseded by a newer line while in flight).
//
// Submit blocks for the duration of the classifier call; callers that need a
// live stream should run it on its own goroutine, reserving its order first.
func (o *Orchestrator) Submit(ctx context.Context, text string) (analysis.Result, bool) {
	return o.SubmitSeq(ctx, text, o.Reserve())
}

// SubmitSeq is Submit for a line whose arrival order was pinned earlier with
// Reserve. A line older than the newest one already submitted is dropped
// outright: a slow goroutine must never supersede the line that arrived last.
func (o *Orchestrator) SubmitSeq(ctx context.Context, text string, seq uint64) (analysis.Result, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return analysis.Result{}, false
	}

	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return analysis.Result{}, false
	}
	if seq <= o.lastSeq {
		o.mu.Unlock()
		return analysis.Result{}, false
	}
	// The transcription stream finalizes the same line more than once under
	// poor audio; one classifier call per distinct line. lastSeq stays put so
	// a duplicate cannot invalidate the line it duplicates.
	if text == o.lastSubmitted {
		o.mu.Unlock()
		return analysis.Result{}, false
	}
	o.lastSeq = seq
	o.lastSubmitted = text

	if len(text) < minClassifyLen {
		o.mu.Unlock()
		r := analysis.Neutral(text)
		o.publish(r)
		return r, true
	}

	// Single-flight: a newer line supersedes any outstanding call. The old
	// call is canceled and its result, should it still arrive, is dropped.
	if o.cancelFlight != nil {
		o.cancelFlight()
	}
	flightCtx, cancel := context.WithCancel(ctx)
	o.cancelFlight = cancel
	o.mu.Unlock()

	defer cancel()

	r := o.classify(flightCtx, text)

	o.mu.Lock()
	stale := o.stopped || o.lastSeq != seq
	if !stale {
		o.cancelFlight = nil
	}
	o.mu.Unlock()
	if stale {
		return analysis.Result{}, false
	}

	o.publish(r)
	return r, true
}

// Stop cancels any in-flight classifier call and prevents further
// submissions. No results are delivered after Stop returns.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	cancel := o.cancelFlight
	o.cancelFlight = nil
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	close(o.done)
}

// classify calls the upstream and normalizes its output. Any failure degrades
// to a locally derived fallback result; the failure is surfaced to the error
// observer, never to the caller.
func (o *Orchestrator) classify(ctx context.Context, text string) analysis.Result {
	raw, err := o.classifier.Classify(ctx, text)
	if err != nil {
		// A canceled flight was superseded or stopped; only genuine
		// upstream failures are worth reporting.
		if ctx.Err() == nil {
			o.reportError(err)
		}
		return analysis.Fallback(text)
	}
	parsed := analysis.ExtractJSON(raw)
	if parsed == nil {
		o.logger.Printf("orchestrator: unparseable classifier output, deriving all fields")
	}
	return analysis.Build(parsed, raw, text, o.classifier.Model())
}

func (o *Orchestrator) publish(r analysis.Result) {
	select {
	case <-o.done:
	case o.results <- r:
	}
}

func (o *Orchestrator) reportError(err error) {
	o.logger.Printf("orchestrator: classifier failed, using local fallback: %v", err)
	if o.onError != nil {
		o.onError(err)
		return
	}
	sentry.CaptureException(err)
}
