package repositories

import "context"

// SpeechToText abstracts the fallback speech recognition service used when
// the upstream provider has input transcription disabled.
type SpeechToText interface {
	// InitTranscribeStreaming initializes a streaming transcription session
	// for one utterance.
	InitTranscribeStreaming(ctx context.Context, config AudioConfig) (SpeechToTextStreaming, error)
}

// AudioConfig represents audio configuration for speech recognition
type AudioConfig struct {
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
	Language   string `json:"language"`
}

// SpeechToTextStreaming is one in-flight utterance transcription. Stream
// feeds raw PCM; End finalizes and returns the transcript.
type SpeechToTextStreaming interface {
	Stream(data []byte) error
	End() (string, error)
}
