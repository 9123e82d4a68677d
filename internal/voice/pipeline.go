package voice

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ember-voice-lab/internal/logging"
)

// fillerReply is spoken when generation fails or times out: once a
// transcript exists a reply must still be attempted.
const fillerReply = "…no thoughts, head empty."

// Pipeline turns one finished utterance into at most one queued speech
// action. Every failure is contained to the single utterance: logged,
// discarded, session untouched.
type Pipeline struct {
	STT     Transcriber
	Respond Responder
	Synth   Synthesizer
	Queue   *SpeechQueue
	Archive *Archiver

	STTTimeout time.Duration
	GenTimeout time.Duration
	TTSTimeout time.Duration

	// GoodnightMessage overrides the farewell builder; tests use this.
	GoodnightMessage func() string
}

// Process runs the capture-to-speech pipeline for one utterance.
func (p *Pipeline) Process(ctx context.Context, utt *Utterance) {
	pcmBytes := pcm16Bytes(utt.PCM)
	wav := BuildWAV(pcmBytes, captureSampleRate, captureChannels, captureBits)
	wavPath := filepath.Join(os.TempDir(),
		fmt.Sprintf("ember_in_%s_%s_%s.wav", utt.GuildID, utt.UserID, utt.CorrelationID))
	if err := os.WriteFile(wavPath, wav, 0o600); err != nil {
		logging.Warnw("pipeline: write capture wav failed", "err", err, "correlation_id", utt.CorrelationID)
		return
	}
	defer func() { _ = os.Remove(wavPath) }()

	sttCtx, cancel := context.WithTimeout(ctx, p.STTTimeout)
	transcript, err := p.STT.Transcribe(sttCtx, wavPath)
	cancel()
	if err != nil {
		logging.Warnw("pipeline: transcription failed",
			"guild_id", utt.GuildID, "user_id", utt.UserID, "correlation_id", utt.CorrelationID, "err", err)
		return
	}
	transcript = strings.Join(strings.Fields(transcript), " ")
	if len(transcript) < 2 {
		// Noise or mis-transcription; discarded silently.
		return
	}

	logging.Infow("pipeline: transcript",
		"guild_id", utt.GuildID, "user", utt.Username, "correlation_id", utt.CorrelationID,
		"transcript_len", len(transcript))

	if p.Archive != nil {
		p.Archive.Save(utt, wav, transcript)
	}

	lower := strings.ToLower(transcript)
	if strings.Contains(lower, "goodnight") || strings.Contains(lower, "good night") || lower == "gn" {
		p.Queue.Enqueue(p.goodnight())
		return
	}

	genCtx, cancel := context.WithTimeout(ctx, p.GenTimeout)
	reply, err := p.Respond.Reply(genCtx, utt.GuildID, utt.UserID, utt.Username, transcript)
	cancel()
	if err != nil {
		logging.Warnw("pipeline: generation failed, using filler",
			"guild_id", utt.GuildID, "correlation_id", utt.CorrelationID, "err", err)
		reply = fillerReply
	}

	ttsCtx, cancel := context.WithTimeout(ctx, p.TTSTimeout)
	audioPath, err := p.Synth.Synthesize(ttsCtx, reply)
	cancel()
	if err != nil {
		logging.Warnw("pipeline: synthesis failed",
			"guild_id", utt.GuildID, "correlation_id", utt.CorrelationID, "err", err)
		return
	}

	p.Queue.EnqueueAudio(audioPath)
}

func (p *Pipeline) goodnight() string {
	if p.GoodnightMessage != nil {
		return p.GoodnightMessage()
	}
	return GoodnightMessage(newRand(), 4, true)
}
