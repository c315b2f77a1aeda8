// Package voice implements the client side of the voice-command protocol:
// the connection manager state machine, the function-call dispatcher, and
// the command operations the model can invoke.
package voice

import "context"

// CaptureDevice is the microphone abstraction. A device is exclusively owned
// by one connection handle at a time. Acquire starts delivering float32 PCM
// chunks at pcm.SampleRate to fn; calling Acquire while already held by the
// same handle is a no-op. Release is idempotent and must succeed even if the
// device was never fully acquired.
type CaptureDevice interface {
	Acquire(ctx context.Context, fn func(samples []float32)) error
	Release()
}

// PlaybackQueue serializes assistant audio output. Frames must be played in
// enqueue order; Enqueue must not block the caller on playback. Release is
// idempotent and discards anything still queued.
type PlaybackQueue interface {
	Enqueue(raw []byte)
	Release()
}
