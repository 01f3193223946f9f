package stt

import "context"

// TranscriptEvent is one speech-to-text result from the streaming provider.
// Interim events repeat and revise the same utterance; IsFinal marks the
// segment as settled. Duplicate finals are possible and are deduplicated
// downstream.
type TranscriptEvent struct {
	Text       string  // the transcribed text
	Confidence float64 // provider confidence (0-1)
	IsFinal    bool    // segment will not be revised further
}

// Client defines the interface for streaming speech-to-text providers.
type Client interface {
	// StreamAudio sends raw audio to the provider.
	StreamAudio(ctx context.Context, audio []byte) error

	// Events returns the channel of transcription events.
	Events() <-chan TranscriptEvent

	// Errors returns the channel of transport errors.
	Errors() <-chan error

	// Close tears the stream down. Events and Errors are closed afterwards.
	Close() error
}
