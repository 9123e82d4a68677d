package voice

import (
	"errors"
	"io"
	"time"

	"github.com/ember-voice-lab/internal/logging"
	"github.com/google/uuid"
)

// captureState is the capture instance's terminal-state machine. Each
// speaking-start creates a fresh instance; there is no restart.
type captureState int

const (
	stateCapturing captureState = iota
	stateCompleted
	stateFailed
)

// capture accumulates one speaker's frames until the stream ends. The
// transport enforces the trailing-silence end condition, so this loop only
// appends frames in arrival order and reacts to stream completion. The
// caller removes the speaker from the active set whichever way this exits.
func (s *Session) capture(userID string, stream FrameStream) {
	defer func() { _ = stream.Close() }()

	var pcm []int16
	state := stateCapturing
	for state == stateCapturing {
		frame, err := stream.Next()
		switch {
		case err == nil:
			pcm = append(pcm, frame...)
		case errors.Is(err, io.EOF):
			state = stateCompleted
		default:
			state = stateFailed
			logging.Warnw("capture: stream error, discarding partial audio",
				"guild_id", s.cfg.GuildID, "user_id", userID, "err", err)
		}
	}
	if state != stateCompleted {
		return
	}

	// Audio that straddled the start of our own playback is suspect.
	if s.queue.Speaking() {
		logging.Debugw("capture: finished during playback, discarding",
			"guild_id", s.cfg.GuildID, "user_id", userID)
		return
	}

	utt := &Utterance{
		GuildID:       s.cfg.GuildID,
		UserID:        userID,
		Username:      s.displayName(userID),
		PCM:           pcm,
		CorrelationID: uuid.NewString(),
		CapturedAt:    time.Now(),
	}
	if utt.Duration() < s.cfg.MinUtterance {
		// Mic pops, coughs, brief noise. Not an error.
		logging.Debugw("capture: utterance below minimum, discarding",
			"guild_id", s.cfg.GuildID, "user_id", userID, "duration_ms", utt.Duration().Milliseconds())
		return
	}

	logging.Infow("capture: utterance complete",
		"guild_id", s.cfg.GuildID, "user_id", userID, "user", utt.Username,
		"duration_ms", utt.Duration().Milliseconds(), "correlation_id", utt.CorrelationID)

	// Pipelines for different speakers run concurrently; only playback is
	// serialized, by the queue.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.pipeline.Process(s.ctx, utt)
	}()
}

func (s *Session) displayName(userID string) string {
	if n := s.resolver.UserName(userID); n != "" {
		return n
	}
	return "someone"
}
