package repositories

import "context"

// UpstreamEvent is one frame received from the upstream provider, or the
// error that ended the stream. After an event with Err set, no further
// events are delivered.
type UpstreamEvent struct {
	Data []byte
	Err  error
}

// UpstreamSession is one live connection to the realtime provider. Frames
// are opaque to the relay; Send forwards a client frame verbatim (or its
// provider-specific translation) and Events yields provider frames in
// receipt order.
type UpstreamSession interface {
	Send(data []byte) error
	Events() <-chan UpstreamEvent
	Close() error
}

// UpstreamDialer opens provider sessions, one per client connection.
type UpstreamDialer interface {
	Dial(ctx context.Context) (UpstreamSession, error)
}
