package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

const deepgramWSURL = "wss://api.deepgram.com/v1/listen"

// DeepgramConfig holds configuration for the Deepgram streaming client.
type DeepgramConfig struct {
	APIKey      string
	Language    string // e.g. "en"
	Model       string // e.g. "nova-3"
	SampleRate  int    // e.g. 16000 for browser PCM
	Encoding    string // e.g. "linear16"
	Channels    int
	Punctuate   bool
	Endpointing int // ms of silence before a segment finalizes, 0 for provider default
}

// DeepgramClient streams audio to Deepgram over a websocket and emits
// transcript events as they arrive.
type DeepgramClient struct {
	conn      *websocket.Conn
	events    chan TranscriptEvent
	errors    chan error
	done      chan struct{}
	closeOnce sync.Once
	writeMu   sync.Mutex
	wg        sync.WaitGroup
}

// deepgramMessage is a Deepgram websocket response.
type deepgramMessage struct {
	Type    string `json:"type"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
	IsFinal bool `json:"is_final"`
}

// NewDeepgramClient dials the Deepgram streaming endpoint and starts reading
// results.
func NewDeepgramClient(ctx context.Context, cfg DeepgramConfig) (*DeepgramClient, error) {
	url := fmt.Sprintf("%s?model=%s&language=%s&encoding=%s&sample_rate=%d&channels=%d&punctuate=%t&interim_results=true",
		deepgramWSURL,
		cfg.Model,
		cfg.Language,
		cfg.Encoding,
		cfg.SampleRate,
		cfg.Channels,
		cfg.Punctuate,
	)
	if cfg.Endpointing > 0 {
		url += fmt.Sprintf("&endpointing=%d", cfg.Endpointing)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Deepgram: %w", err)
	}

	c := &DeepgramClient{
		conn:   conn,
		events: make(chan TranscriptEvent, 100),
		errors: make(chan error, 10),
		done:   make(chan struct{}),
	}

	c.wg.Add(1)
	go c.readLoop()

	return c, nil
}

// StreamAudio sends one chunk of raw audio to Deepgram.
func (c *DeepgramClient) StreamAudio(_ context.Context, audio []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.done:
		return fmt.Errorf("client is closed")
	default:
	}

	return c.conn.WriteMessage(websocket.BinaryMessage, audio)
}

// Events returns the channel of transcription events.
func (c *DeepgramClient) Events() <-chan TranscriptEvent {
	return c.events
}

// Errors returns the channel of transport errors.
func (c *DeepgramClient) Errors() <-chan error {
	return c.errors
}

// Close asks Deepgram to flush and closes the connection. Safe to call more
// than once.
func (c *DeepgramClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.writeMu.Lock()
		_ = c.conn.WriteMessage(websocket.TextMessage, []byte(`{"type": "CloseStream"}`))
		c.writeMu.Unlock()

		err = c.conn.Close()

		// Let readLoop drain before closing its output channels.
		c.wg.Wait()
		close(c.events)
		close(c.errors)
	})
	return err
}

func (c *DeepgramClient) readLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			case c.errors <- fmt.Errorf("read error: %w", err):
			default:
			}
			return
		}

		var m deepgramMessage
		if err := json.Unmarshal(msg, &m); err != nil {
			log.Printf("deepgram: failed to parse response: %v", err)
			continue
		}
		if m.Type != "Results" {
			continue
		}

		var text string
		var confidence float64
		if len(m.Channel.Alternatives) > 0 {
			text = m.Channel.Alternatives[0].Transcript
			confidence = m.Channel.Alternatives[0].Confidence
		}

		// Empty interims carry no information; empty finals still mark a
		// segment boundary.
		if text == "" && !m.IsFinal {
			continue
		}

		select {
		case <-c.done:
			return
		case c.events <- TranscriptEvent{Text: text, Confidence: confidence, IsFinal: m.IsFinal}:
		}
	}
}
