package session

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync/atomic"
	"testing"
	"time"

	"github.com/veskrna/moodstream/internal/analysis"
	"github.com/veskrna/moodstream/internal/orchestrator"
	"github.com/veskrna/moodstream/internal/stt"
)

type stubClassifier struct {
	calls atomic.Int32
	raw   string
}

func (s *stubClassifier) Classify(context.Context, string) (string, error) {
	s.calls.Add(1)
	return s.raw, nil
}

func (s *stubClassifier) Model() string { return "stub-model" }

// echoClassifier reflects the submitted line back, so a test can tell which
// line produced which analysis.
type echoClassifier struct {
	calls atomic.Int32
}

func (e *echoClassifier) Classify(_ context.Context, text string) (string, error) {
	e.calls.Add(1)
	return fmt.Sprintf(`{"sentiment": 0.9, "short_summary": %q}`, text), nil
}

func (e *echoClassifier) Model() string { return "stub-model" }

func newTestSession(raw string) (*Session, *stubClassifier) {
	stub := &stubClassifier{raw: raw}
	logger := log.New(io.Discard, "", 0)
	orch := orchestrator.New(orchestrator.Config{
		Classifier: stub,
		Logger:     logger,
		OnError:    func(error) {},
	})
	s := New(Config{ID: "test", Orchestrator: orch, Logger: logger})
	return s, stub
}

func waitForAnalysis(t *testing.T, s *Session) analysis.Result {
	t.Helper()
	select {
	case r, ok := <-s.Analyses():
		if !ok {
			t.Fatal("analyses stream closed")
		}
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no analysis arrived")
		return analysis.Result{}
	}
}

func TestInterimEventsBufferWithoutSubmitting(t *testing.T) {
	s, stub := newTestSession(`{"sentiment": 0.8}`)
	defer s.Stop()

	ctx := context.Background()
	s.HandleTranscript(ctx, stt.TranscriptEvent{Text: "I am", IsFinal: false})
	s.HandleTranscript(ctx, stt.TranscriptEvent{Text: "I am really", IsFinal: false})

	if got := s.Interim(); got != "I am really" {
		t.Errorf("Interim() = %q, want latest partial", got)
	}
	if stub.calls.Load() != 0 {
		t.Errorf("classifier calls = %d, want 0 for interim events", stub.calls.Load())
	}
}

func TestFinalEventSubmitsLine(t *testing.T) {
	s, stub := newTestSession(`{"sentiment": 0.8, "sentiment_label": "positive"}`)
	defer s.Stop()

	s.HandleTranscript(context.Background(), stt.TranscriptEvent{Text: "this is wonderful news", IsFinal: true})

	r := waitForAnalysis(t, s)
	if r.Sentiment != 0.8 || r.SentimentLabel != "positive" {
		t.Errorf("result = %+v", r)
	}
	if stub.calls.Load() != 1 {
		t.Errorf("classifier calls = %d, want 1", stub.calls.Load())
	}
	if s.Interim() != "" {
		t.Errorf("Interim() = %q, want cleared after final", s.Interim())
	}
}

func TestEmptyFinalFlushesBufferedInterim(t *testing.T) {
	s, stub := newTestSession(`{"sentiment": 0.5}`)
	defer s.Stop()

	ctx := context.Background()
	s.HandleTranscript(ctx, stt.TranscriptEvent{Text: "buffered words here", IsFinal: false})
	s.HandleTranscript(ctx, stt.TranscriptEvent{Text: "", IsFinal: true})

	waitForAnalysis(t, s)
	if stub.calls.Load() != 1 {
		t.Errorf("classifier calls = %d, want 1 (flushed interim)", stub.calls.Load())
	}
}

func TestEmptyFinalWithNoInterimIsIgnored(t *testing.T) {
	s, stub := newTestSession(`{}`)
	defer s.Stop()

	s.HandleTranscript(context.Background(), stt.TranscriptEvent{Text: "", IsFinal: true})

	time.Sleep(50 * time.Millisecond)
	if stub.calls.Load() != 0 {
		t.Errorf("classifier calls = %d, want 0", stub.calls.Load())
	}
}

func TestDuplicateFinalsCollapse(t *testing.T) {
	s, stub := newTestSession(`{"sentiment": 0.8}`)
	defer s.Stop()

	ctx := context.Background()
	s.HandleTranscript(ctx, stt.TranscriptEvent{Text: "hello there", IsFinal: true})
	waitForAnalysis(t, s)
	s.HandleTranscript(ctx, stt.TranscriptEvent{Text: "hello there", IsFinal: true})

	time.Sleep(50 * time.Millisecond)
	if stub.calls.Load() != 1 {
		t.Errorf("classifier calls = %d, want 1 (duplicate final deduped)", stub.calls.Load())
	}
}

func TestAnalysisDrivesSmoother(t *testing.T) {
	s, _ := newTestSession(`{"sentiment": 1.0, "sentiment_label": "positive"}`)
	defer s.Stop()

	s.HandleTranscript(context.Background(), stt.TranscriptEvent{Text: "best day ever honestly", IsFinal: true})
	waitForAnalysis(t, s)

	st := s.Smoother().Snapshot()
	if st.Target != 1.0 {
		t.Errorf("smoother target = %v, want 1.0", st.Target)
	}
	if st.PulseEnergy != 1.0 {
		t.Errorf("pulse = %v, want 1.0 on fresh result", st.PulseEnergy)
	}
}

func TestRapidFinalsNewestWins(t *testing.T) {
	echo := &echoClassifier{}
	logger := log.New(io.Discard, "", 0)
	orch := orchestrator.New(orchestrator.Config{Classifier: echo, Logger: logger, OnError: func(error) {}})
	s := New(Config{ID: "test", Orchestrator: orch, Logger: logger})
	defer s.Stop()

	ctx := context.Background()
	s.HandleTranscript(ctx, stt.TranscriptEvent{Text: "the older line", IsFinal: true})
	s.HandleTranscript(ctx, stt.TranscriptEvent{Text: "the newer line", IsFinal: true})

	// However the two submit goroutines get scheduled, the line that arrived
	// last owns the final state: either both analyses arrive with the newer
	// one last, or the older delivery is dropped entirely.
	var last analysis.Result
	got := 0
collect:
	for got < 2 {
		select {
		case r := <-s.Analyses():
			last = r
			got++
		case <-time.After(500 * time.Millisecond):
			break collect
		}
	}
	if got == 0 {
		t.Fatal("no analysis arrived")
	}
	if last.ShortSummary != "the newer line" {
		t.Errorf("last analysis from %q, want the line that arrived last", last.ShortSummary)
	}
	if st := s.Smoother().Snapshot(); st.Target != 0.9 {
		t.Errorf("smoother target = %v, want the newest sentiment", st.Target)
	}
}

func TestFinalAfterStopIsIgnored(t *testing.T) {
	s, stub := newTestSession(`{"sentiment": 0.8}`)
	s.Stop()

	s.HandleTranscript(context.Background(), stt.TranscriptEvent{Text: "too late to matter", IsFinal: true})

	time.Sleep(50 * time.Millisecond)
	if stub.calls.Load() != 0 {
		t.Errorf("classifier calls = %d, want 0 after Stop", stub.calls.Load())
	}
}

func TestStopClosesAnalyses(t *testing.T) {
	s, _ := newTestSession(`{}`)
	s.Stop()

	select {
	case _, ok := <-s.Analyses():
		if ok {
			t.Error("expected closed stream, got a result")
		}
	case <-time.After(time.Second):
		t.Fatal("Analyses() not closed after Stop()")
	}

	// Idempotent.
	s.Stop()
}
