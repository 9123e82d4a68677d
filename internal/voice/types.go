// Package voice implements the per-channel capture and turn-taking core:
// admission gating of speakers, silence-endpointed utterance capture, the
// STT -> generation -> TTS pipeline, and the single ordered playback queue
// that keeps the bot from talking over itself.
package voice

import (
	"context"
	"time"
)

// Capture and STT operate on 16 kHz mono 16-bit PCM.
const (
	captureSampleRate = 16000
	captureChannels   = 1
	captureBits       = 16
)

// Utterance is one finished, minimum-duration-filtered stretch of a
// speaker's audio, ready for transcription.
type Utterance struct {
	GuildID       string
	UserID        string
	Username      string
	PCM           []int16
	CorrelationID string
	CapturedAt    time.Time
}

// Duration reports the utterance length implied by its sample count.
func (u *Utterance) Duration() time.Duration {
	return time.Duration(len(u.PCM)) * time.Second / captureSampleRate
}

// FrameStream delivers one speaker's decoded PCM frames in arrival order.
// Next returns io.EOF once the trailing-silence window elapses with no new
// frame, and any other error when the decode stream breaks.
type FrameStream interface {
	Next() ([]int16, error)
	Close() error
}

// Subscriber opens a silence-endpointed frame stream for one speaker.
type Subscriber interface {
	Subscribe(userID string) (FrameStream, error)
}

// Player plays one WAV resource on the channel and returns when playback
// has gone idle (or failed).
type Player interface {
	Play(ctx context.Context, wavPath string) error
}

// Synthesizer renders text to a temp WAV file and returns its path. The
// caller owns the file.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

// Transcriber converts a WAV file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, wavPath string) (string, error)
}

// Responder produces the bot's reply for a transcript, handling its own
// conversation memory.
type Responder interface {
	Reply(ctx context.Context, guildID, userID, username, transcript string) (string, error)
}

// NameResolver provides human-friendly names for user IDs when available.
type NameResolver interface {
	UserName(userID string) string
}

// NoopResolver never resolves anything; useful in tests.
type NoopResolver struct{}

func (NoopResolver) UserName(string) string { return "" }
