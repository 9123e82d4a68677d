package voice

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hraban/opus"
)

// Discord playback wants 48 kHz stereo Opus in 20 ms frames.
const (
	playbackRate     = 48000
	playbackChannels = 2
	playbackFrame    = 960 // samples per channel per 20 ms
)

// DiscordPlayer plays a WAV file into a voice connection: parse, downmix
// to mono, resample to 48 kHz, Opus-encode 20 ms frames, and pace them at
// real time. Play returns once the whole resource has been sent (the
// "became idle" signal).
type DiscordPlayer struct {
	VC *discordgo.VoiceConnection
}

func (p *DiscordPlayer) Play(ctx context.Context, wavPath string) error {
	b, err := os.ReadFile(wavPath)
	if err != nil {
		return fmt.Errorf("read wav: %w", err)
	}
	info, err := ParseWAV(b)
	if err != nil {
		return fmt.Errorf("parse wav: %w", err)
	}
	if info.BitsPerSample != 16 {
		return fmt.Errorf("unsupported bit depth %d", info.BitsPerSample)
	}

	mono := downmix(pcm16Samples(info.Data), info.Channels)
	out := resampleMono(mono, info.SampleRate, playbackRate)

	enc, err := opus.NewEncoder(playbackRate, playbackChannels, opus.AppAudio)
	if err != nil {
		return fmt.Errorf("opus encoder: %w", err)
	}

	if err := p.VC.Speaking(true); err != nil {
		return fmt.Errorf("speaking on: %w", err)
	}
	defer func() { _ = p.VC.Speaking(false) }()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	buf := make([]byte, 1275) // max opus packet size

	for off := 0; off < len(out); off += playbackFrame {
		end := off + playbackFrame
		if end > len(out) {
			end = len(out)
		}
		frame := out[off:end]
		if len(frame) < playbackFrame {
			frame = append(frame, make([]int16, playbackFrame-len(frame))...)
		}
		stereo := make([]int16, playbackFrame*playbackChannels)
		for i, s := range frame {
			stereo[2*i] = s
			stereo[2*i+1] = s
		}
		n, err := enc.Encode(stereo, buf)
		if err != nil {
			return fmt.Errorf("opus encode: %w", err)
		}
		pkt := make([]byte, n)
		copy(pkt, buf[:n])

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		select {
		case p.VC.OpusSend <- pkt:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// downmix averages interleaved channels into mono. Mono input is returned
// as-is.
func downmix(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	out := make([]int16, len(samples)/channels)
	for i := range out {
		var sum int
		for c := 0; c < channels; c++ {
			sum += int(samples[i*channels+c])
		}
		out[i] = int16(sum / channels)
	}
	return out
}

// resampleMono converts mono PCM between sample rates with linear
// interpolation. Good enough for speech.
func resampleMono(in []int16, from, to int) []int16 {
	if from == to || len(in) == 0 {
		return in
	}
	outLen := int(int64(len(in)) * int64(to) / int64(from))
	out := make([]int16, outLen)
	for i := range out {
		pos := float64(i) * float64(from) / float64(to)
		idx := int(pos)
		if idx >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := pos - float64(idx)
		out[i] = int16(float64(in[idx])*(1-frac) + float64(in[idx+1])*frac)
	}
	return out
}
