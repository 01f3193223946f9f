// Package session wires one live transcription stream into the analysis
// pipeline: interim transcript events are buffered, finalized lines go to the
// orchestrator, and completed analyses drive the session's signal smoother.
package session

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/veskrna/moodstream/internal/analysis"
	"github.com/veskrna/moodstream/internal/eventlog"
	"github.com/veskrna/moodstream/internal/orchestrator"
	"github.com/veskrna/moodstream/internal/signal"
	"github.com/veskrna/moodstream/internal/stt"
)

// Config holds the collaborators for one Session.
type Config struct {
	ID           string
	Orchestrator *orchestrator.Orchestrator
	Logger       *log.Logger
	EventLog     *eventlog.Logger // may be nil
}

// Session sequences one transcription stream. One instance per connected
// client; all mutable state is owned by the instance.
type Session struct {
	id       string
	orch     *orchestrator.Orchestrator
	smoother *signal.Smoother
	logger   *log.Logger
	eventLog *eventlog.Logger

	analyses chan analysis.Result

	// mu guards interim and stopped. wg.Add only happens under mu with
	// stopped false, so Stop's wg.Wait never races a concurrent Add.
	mu      sync.Mutex
	interim string
	stopped bool

	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Session and starts forwarding orchestrator results into the
// smoother and the Analyses stream.
func New(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	s := &Session{
		id:       cfg.ID,
		orch:     cfg.Orchestrator,
		smoother: signal.NewSmoother(),
		logger:   logger,
		eventLog: cfg.EventLog,
		analyses: make(chan analysis.Result, 16),
	}

	s.eventLog.LogAsync(s.id, eventlog.EventSessionStarted, nil)

	s.wg.Add(1)
	go s.forwardResults()

	return s
}

// HandleTranscript ingests one event from the transcription stream. Interim
// events only update the partial-line buffer; a finalized event submits the
// line for analysis. Finalized lines are handed to the orchestrator in
// arrival order.
func (s *Session) HandleTranscript(ctx context.Context, ev stt.TranscriptEvent) {
	if !ev.IsFinal {
		s.mu.Lock()
		if !s.stopped {
			s.interim = ev.Text
		}
		s.mu.Unlock()
		return
	}

	line := strings.TrimSpace(ev.Text)
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	// An empty final is a segment boundary: flush whatever interim text we
	// were holding.
	if line == "" {
		line = strings.TrimSpace(s.interim)
	}
	s.interim = ""
	if line == "" {
		s.mu.Unlock()
		return
	}
	// Arrival order is pinned here, on the caller's goroutine; the submit
	// goroutine below may be scheduled out of order and the orchestrator
	// rejects it then.
	seq := s.orch.Reserve()
	s.wg.Add(1)
	s.mu.Unlock()

	s.eventLog.LogAsync(s.id, eventlog.EventTranscriptFinal, map[string]any{
		"text_len":   len(line),
		"confidence": ev.Confidence,
	})

	// Submit on its own goroutine so a newer finalized line can supersede a
	// stalled classifier call instead of queuing behind it.
	go func() {
		defer s.wg.Done()
		s.orch.SubmitSeq(ctx, line, seq)
	}()
}

// Interim returns the current partial line, for display before finalization.
func (s *Session) Interim() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interim
}

// Analyses is the stream of completed analyses for this session, in
// submission order. Closed when the session stops.
func (s *Session) Analyses() <-chan analysis.Result {
	return s.analyses
}

// Smoother returns the session's signal smoother. The transport layer ticks
// it at its own cadence.
func (s *Session) Smoother() *signal.Smoother {
	return s.smoother
}

// Stop shuts the session down: the orchestrator cancels any in-flight
// classifier call and the Analyses stream closes. Idempotent.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		s.orch.Stop()
		s.wg.Wait()
		close(s.analyses)
		s.eventLog.LogAsync(s.id, eventlog.EventSessionEnded, nil)
	})
}

func (s *Session) forwardResults() {
	defer s.wg.Done()
	for {
		select {
		case <-s.orch.Done():
			return
		case r := <-s.orch.Results():
			s.smoother.SetTarget(r.Sentiment)
			if r.IsFallback {
				s.eventLog.LogAsync(s.id, eventlog.EventFallbackUsed, nil)
			} else {
				s.eventLog.LogAsync(s.id, eventlog.EventAnalysisCompleted, map[string]any{
					"sentiment": r.Sentiment,
					"label":     r.SentimentLabel,
				})
			}
			select {
			case s.analyses <- r:
			default:
				// A slow consumer never stalls the pipeline; it just loses
				// intermediate frames.
				s.logger.Printf("session %s: analysis stream full, dropping frame", s.id)
			}
		}
	}
}
