package relay

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/suarakita/server/domain/entities"
	"github.com/suarakita/server/domain/repositories"
	"github.com/suarakita/server/pkg/pcm"
)

const recorderWriteTimeout = 5 * time.Second

// Recorder tees conversation transcripts out of the relayed event stream into
// the conversation store. When the upstream provider never transcribes voter
// audio, an optional speech-to-text pass fills the gap from the committed
// audio itself.
type Recorder struct {
	repo   repositories.ConversationRepository
	stt    repositories.SpeechToText
	logger *zap.Logger

	mu           sync.Mutex
	conversation *entities.Conversation
	stream       repositories.SpeechToTextStreaming
	// set once the provider starts transcribing; disables the fallback pass
	upstreamTranscripts bool
}

// NewRecorder wires a recorder for one relayed session. repo may be nil, in
// which case transcripts only reach the log. stt may be nil to disable the
// fallback pass.
func NewRecorder(repo repositories.ConversationRepository, stt repositories.SpeechToText, logger *zap.Logger) *Recorder {
	return &Recorder{repo: repo, stt: stt, logger: logger}
}

// Start opens the transcript for an announced session id.
func (r *Recorder) Start(sessionID, voterID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conversation != nil {
		return
	}
	r.conversation = entities.NewConversation(sessionID, voterID)

	if r.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recorderWriteTimeout)
	defer cancel()
	if err := r.repo.Create(ctx, r.conversation); err != nil {
		r.logger.Error("failed to create conversation record",
			zap.String("sessionID", sessionID),
			zap.Error(err))
	}
}

// VoterAudio feeds appended input audio into the fallback recognizer.
func (r *Recorder) VoterAudio(audio []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stt == nil || r.upstreamTranscripts {
		return
	}

	if r.stream == nil {
		stream, err := r.stt.InitTranscribeStreaming(context.Background(), repositories.AudioConfig{
			SampleRate: pcm.SampleRate,
			Encoding:   "LINEAR16",
			Language:   "id-ID",
		})
		if err != nil {
			r.logger.Warn("failed to start fallback transcription", zap.Error(err))
			return
		}
		r.stream = stream
	}

	if err := r.stream.Stream(audio); err != nil {
		r.logger.Warn("failed to stream audio to fallback transcription", zap.Error(err))
		r.discard(r.stream)
		r.stream = nil
	}
}

// CommitVoterAudio finalizes the current fallback utterance. The recognizer
// result lands in the transcript asynchronously.
func (r *Recorder) CommitVoterAudio() {
	r.mu.Lock()
	stream := r.stream
	r.stream = nil
	r.mu.Unlock()
	if stream == nil {
		return
	}

	go func() {
		text, err := stream.End()
		if err != nil {
			r.logger.Warn("fallback transcription failed", zap.Error(err))
			return
		}
		r.record(entities.UtteranceRoleVoter, text, "fallback")
	}()
}

// VoterTranscript records an upstream-provided voter transcript and switches
// the fallback pass off for the rest of the session. An in-flight fallback
// stream is finalized with its result discarded.
func (r *Recorder) VoterTranscript(text string) {
	r.mu.Lock()
	r.upstreamTranscripts = true
	stream := r.stream
	r.stream = nil
	r.mu.Unlock()
	if stream != nil {
		r.discard(stream)
	}
	r.record(entities.UtteranceRoleVoter, text, "upstream")
}

// AssistantTranscript records a completed assistant turn.
func (r *Recorder) AssistantTranscript(text string) {
	r.record(entities.UtteranceRoleAssistant, text, "upstream")
}

// Close marks the conversation terminated. failed distinguishes transport
// failures from a clean hangup.
func (r *Recorder) Close(failed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stream != nil {
		r.discard(r.stream)
		r.stream = nil
	}
	if r.conversation == nil {
		return
	}
	if failed {
		r.conversation.Fail()
	} else {
		r.conversation.Close()
	}
	r.persistLocked()
	r.conversation = nil
}

// discard finalizes a stream whose result is no longer wanted; End is what
// closes the recognizer client underneath.
func (r *Recorder) discard(stream repositories.SpeechToTextStreaming) {
	go func() {
		if _, err := stream.End(); err != nil {
			r.logger.Debug("discarded fallback stream", zap.Error(err))
		}
	}()
}

func (r *Recorder) record(role entities.UtteranceRole, text, source string) {
	if text == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conversation == nil {
		return
	}
	r.conversation.AddUtterance(role, text, source)
	r.persistLocked()
}

func (r *Recorder) persistLocked() {
	if r.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recorderWriteTimeout)
	defer cancel()
	if err := r.repo.Update(ctx, r.conversation); err != nil {
		r.logger.Error("failed to update conversation record",
			zap.String("sessionID", r.conversation.SessionID),
			zap.Error(err))
	}
}
