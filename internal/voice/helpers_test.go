package voice

import (
	"context"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeStream returns its frames immediately, then io.EOF (or failWith).
// When release is set, the stream stays open until the channel is closed.
type fakeStream struct {
	frames   [][]int16
	idx      int
	failWith error
	release  chan struct{}
}

func (f *fakeStream) Next() ([]int16, error) {
	if f.idx < len(f.frames) {
		fr := f.frames[f.idx]
		f.idx++
		return fr, nil
	}
	if f.release != nil {
		<-f.release
	}
	if f.failWith != nil {
		return nil, f.failWith
	}
	return nil, io.EOF
}

func (f *fakeStream) Close() error { return nil }

// speechFrames builds silent 20 ms frames adding up to d of audio.
func speechFrames(d time.Duration) [][]int16 {
	n := int(d / (20 * time.Millisecond))
	frames := make([][]int16, n)
	for i := range frames {
		frames[i] = make([]int16, captureSampleRate/50)
	}
	return frames
}

type fakeSubscriber struct {
	mu    sync.Mutex
	next  func(userID string) (FrameStream, error)
	calls int
}

func (f *fakeSubscriber) Subscribe(userID string) (FrameStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.next == nil {
		return &fakeStream{}, nil
	}
	return f.next(userID)
}

type fakeSTT struct {
	text  string
	err   error
	calls int32
}

func (f *fakeSTT) Transcribe(ctx context.Context, wavPath string) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type fakeResponder struct {
	reply string
	err   error
	calls int32
}

func (f *fakeResponder) Reply(ctx context.Context, guildID, userID, username, transcript string) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

// fakeSynth writes the text into a temp file so the player can report what
// was "spoken". fn overrides, e.g. to inject delays or errors.
type fakeSynth struct {
	fn func(text string) (string, error)
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string) (string, error) {
	if f.fn != nil {
		return f.fn(text)
	}
	return writeTempAudio(text)
}

func writeTempAudio(text string) (string, error) {
	f, err := os.CreateTemp("", "ember_test_*.wav")
	if err != nil {
		return "", err
	}
	if _, err := f.WriteString(text); err != nil {
		f.Close()
		return "", err
	}
	return f.Name(), f.Close()
}

// fakePlayer records the contents of every file it plays and flags any
// overlapping playback.
type fakePlayer struct {
	mu         sync.Mutex
	played     []string
	inFlight   int32
	overlapped atomic.Bool
	delay      time.Duration
	gate       chan struct{} // when set, each play waits for one receive
}

func (p *fakePlayer) Play(ctx context.Context, wavPath string) error {
	if atomic.AddInt32(&p.inFlight, 1) > 1 {
		p.overlapped.Store(true)
	}
	defer atomic.AddInt32(&p.inFlight, -1)
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	b, err := os.ReadFile(wavPath)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.played = append(p.played, string(b))
	p.mu.Unlock()
	return nil
}

func (p *fakePlayer) playedList() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.played))
	copy(out, p.played)
	return out
}

func newTestSession(t *testing.T, subs Subscriber, sttc Transcriber, resp Responder, player Player) *Session {
	t.Helper()
	s := NewSession(SessionConfig{
		GuildID:      "g1",
		BotUserID:    "bot",
		Silence:      900 * time.Millisecond,
		MinUtterance: 700 * time.Millisecond,
		Cooldown:     2 * time.Second,
	}, Dependencies{
		Synth:      &fakeSynth{},
		Player:     player,
		STT:        sttc,
		Respond:    resp,
		STTTimeout: 5 * time.Second,
		GenTimeout: 5 * time.Second,
		TTSTimeout: 5 * time.Second,
	})
	s.BindTransport(subs)
	t.Cleanup(func() { s.Close(false) })
	return s
}

func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", d)
}
