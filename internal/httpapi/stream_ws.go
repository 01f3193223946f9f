package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/veskrna/moodstream/internal/analysis"
	"github.com/veskrna/moodstream/internal/eventlog"
	"github.com/veskrna/moodstream/internal/orchestrator"
	"github.com/veskrna/moodstream/internal/session"
	"github.com/veskrna/moodstream/internal/stt"
)

// signalFrameInterval is the cadence of smoothed-signal frames pushed to the
// client between analyses.
const signalFrameInterval = 100 * time.Millisecond

// inboundTextMessage is the JSON frame a client sends in text-only mode
// (no audio, e.g. typing a transcript by hand in the demo page).
type inboundTextMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// outboundFrame is every JSON frame the server pushes to the client.
type outboundFrame struct {
	Type        string           `json:"type"` // transcript | analysis | signal | error
	Text        string           `json:"text,omitempty"`
	IsFinal     bool             `json:"is_final,omitempty"`
	Data        *analysis.Result `json:"data,omitempty"`
	Current     *float64         `json:"current,omitempty"`
	PulseEnergy *float64         `json:"pulse_energy,omitempty"`
	Message     string           `json:"message,omitempty"`
}

// streamSession holds the per-connection state of one /api/stream client.
type streamSession struct {
	id     string
	conn   *websocket.Conn
	connMu sync.Mutex

	sess      *session.Session
	sttClient *stt.DeepgramClient // nil in text-only mode

	logger   *log.Logger
	eventLog *eventlog.Logger
	debug    bool

	ctx    context.Context
	cancel context.CancelFunc
}

// handleStreamWS upgrades to a websocket and runs a live analysis session:
// binary frames are raw audio piped to the transcription provider, text
// frames carry typed input, and the server pushes transcript, analysis and
// smoothed-signal frames back.
func (r *Router) handleStreamWS(w http.ResponseWriter, req *http.Request) {
	if !r.sessions.Add() {
		http.Error(w, `{"error": "server is draining"}`, http.StatusServiceUnavailable)
		return
	}
	defer r.sessions.Done()

	upgrader := websocket.Upgrader{
		CheckOrigin: func(req *http.Request) bool {
			origin := req.Header.Get("Origin")
			return origin == "" || len(r.cfg.AllowedOrigins) == 0 || originAllowed(r.cfg.AllowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Printf("stream: upgrade failed: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(req.Context())
	ss := &streamSession{
		id:       newSessionID(),
		conn:     conn,
		logger:   r.logger,
		eventLog: r.eventLog,
		debug:    r.cfg.Debug,
		ctx:      ctx,
		cancel:   cancel,
	}

	orch := orchestrator.New(orchestrator.Config{
		Classifier: r.classifier,
		Logger:     r.logger,
		OnError: func(err error) {
			r.eventLog.LogAsync(ss.id, eventlog.EventClassifierError, map[string]any{"error": err.Error()})
			captureError(req, err, "classifier failure in stream session")
		},
	})
	ss.sess = session.New(session.Config{
		ID:           ss.id,
		Orchestrator: orch,
		Logger:       r.logger,
		EventLog:     r.eventLog,
	})

	if r.cfg.DeepgramAPIKey != "" {
		sttClient, err := stt.NewDeepgramClient(ctx, stt.DeepgramConfig{
			APIKey:      r.cfg.DeepgramAPIKey,
			Language:    r.cfg.STTLanguage,
			Model:       r.cfg.STTModel,
			SampleRate:  r.cfg.STTSampleRate,
			Encoding:    "linear16",
			Channels:    1,
			Punctuate:   true,
			Endpointing: r.cfg.STTEndpointing,
		})
		if err != nil {
			r.logger.Printf("stream %s: stt connect failed, text-only mode: %v", ss.id, err)
			captureError(req, err, "deepgram connect failed")
			ss.writeFrame(outboundFrame{Type: "error", Message: "transcription unavailable, text-only mode"})
		} else {
			ss.sttClient = sttClient
		}
	}

	r.logger.Printf("stream %s: session started", ss.id)
	ss.run()
	r.logger.Printf("stream %s: session ended", ss.id)
}

// run owns the session lifecycle. It returns when the client disconnects or
// the request context ends.
func (ss *streamSession) run() {
	var wg sync.WaitGroup

	if ss.sttClient != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ss.pumpTranscripts()
		}()
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		ss.pumpAnalyses()
	}()
	go func() {
		defer wg.Done()
		ss.pumpSignal()
	}()

	ss.readLoop()

	// Unblock the pumps, then tear down in dependency order: transcription
	// first so no new lines arrive, then the session, which cancels any
	// in-flight classifier call.
	ss.cancel()
	if ss.sttClient != nil {
		_ = ss.sttClient.Close()
	}
	ss.sess.Stop()
	wg.Wait()
	_ = ss.conn.Close()
}

func (ss *streamSession) readLoop() {
	for {
		msgType, data, err := ss.conn.ReadMessage()
		if err != nil {
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if ss.sttClient == nil {
				continue
			}
			if err := ss.sttClient.StreamAudio(ss.ctx, data); err != nil {
				ss.logger.Printf("stream %s: audio forward failed: %v", ss.id, err)
				return
			}
		case websocket.TextMessage:
			var msg inboundTextMessage
			if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "text" {
				continue
			}
			// Typed input skips transcription and lands as a finalized line.
			ss.sess.HandleTranscript(ss.ctx, stt.TranscriptEvent{Text: msg.Text, IsFinal: true})
		}
	}
}

// pumpTranscripts forwards transcription events into the session and mirrors
// them to the client.
func (ss *streamSession) pumpTranscripts() {
	events := ss.sttClient.Events()
	errors := ss.sttClient.Errors()
	for {
		select {
		case <-ss.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			ss.sess.HandleTranscript(ss.ctx, ev)
			if ss.debug && ev.IsFinal {
				ss.logger.Printf("stream %s: final transcript (%d chars)", ss.id, len(ev.Text))
			}
			if ev.Text != "" {
				ss.writeFrame(outboundFrame{Type: "transcript", Text: ev.Text, IsFinal: ev.IsFinal})
			}
		case err, ok := <-errors:
			if !ok {
				return
			}
			ss.logger.Printf("stream %s: transcription error: %v", ss.id, err)
			ss.eventLog.LogAsync(ss.id, eventlog.EventTransportError, map[string]any{"error": err.Error()})
			ss.writeFrame(outboundFrame{Type: "error", Message: "transcription error"})
		}
	}
}

// pumpAnalyses pushes each completed analysis to the client together with the
// smoother state at that instant.
func (ss *streamSession) pumpAnalyses() {
	for {
		select {
		case <-ss.ctx.Done():
			return
		case r, ok := <-ss.sess.Analyses():
			if !ok {
				return
			}
			state := ss.sess.Smoother().Snapshot()
			current, pulse := state.Current, state.PulseEnergy
			ss.writeFrame(outboundFrame{
				Type:        "analysis",
				Data:        &r,
				Current:     &current,
				PulseEnergy: &pulse,
			})
		}
	}
}

// pumpSignal ticks the smoother at a fixed cadence and streams the eased
// value so thin clients can render without their own easing loop.
func (ss *streamSession) pumpSignal() {
	ticker := time.NewTicker(signalFrameInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ss.ctx.Done():
			return
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			current, pulse := ss.sess.Smoother().Tick(float64(dt.Milliseconds()))
			ss.writeFrame(outboundFrame{Type: "signal", Current: &current, PulseEnergy: &pulse})
		}
	}
}

func (ss *streamSession) writeFrame(f outboundFrame) {
	ss.connMu.Lock()
	defer ss.connMu.Unlock()
	if err := ss.conn.WriteJSON(f); err != nil {
		ss.logger.Printf("stream %s: write failed: %v", ss.id, err)
	}
}

func newSessionID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
