package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/ember-voice-lab/internal/logging"
	"github.com/hraban/opus"
)

// Opus packets can carry up to 120 ms of audio: 1920 samples at 16 kHz.
const maxFrameSamples = 1920

var errSubscriptionClosed = errors.New("subscription closed")

// Receiver adapts a discordgo VoiceConnection into per-speaker frame
// streams. It demultiplexes the shared OpusRecv packet stream by SSRC,
// maps SSRCs to user IDs from speaking updates, decodes Opus to 16 kHz
// mono PCM, and closes each subscription after the configured trailing
// silence. Speaking-start events are forwarded to onStart (the gate).
type Receiver struct {
	vc      *discordgo.VoiceConnection
	silence time.Duration
	onStart func(userID string)

	mu         sync.Mutex
	ssrcToUser map[uint32]string
	subs       map[string]*frameSub

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewReceiver wires the speaking-update handler and starts the receive
// loop.
func NewReceiver(vc *discordgo.VoiceConnection, silence time.Duration, onStart func(userID string)) *Receiver {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Receiver{
		vc:         vc,
		silence:    silence,
		onStart:    onStart,
		ssrcToUser: make(map[uint32]string),
		subs:       make(map[string]*frameSub),
		ctx:        ctx,
		cancel:     cancel,
	}
	vc.AddHandler(r.handleSpeaking)
	r.wg.Add(1)
	go r.run()
	return r
}

func (r *Receiver) handleSpeaking(_ *discordgo.VoiceConnection, su *discordgo.VoiceSpeakingUpdate) {
	r.mu.Lock()
	r.ssrcToUser[uint32(su.SSRC)] = su.UserID
	r.mu.Unlock()
	logging.Debugw("receiver: mapped SSRC -> user", "ssrc", su.SSRC, "user_id", su.UserID, "speaking", su.Speaking)
	if su.Speaking && r.onStart != nil {
		r.onStart(su.UserID)
	}
}

func (r *Receiver) run() {
	defer r.wg.Done()
	for {
		select {
		case <-r.ctx.Done():
			return
		case pkt, ok := <-r.vc.OpusRecv:
			if !ok {
				return
			}
			r.dispatch(pkt)
		}
	}
}

func (r *Receiver) dispatch(pkt *discordgo.Packet) {
	r.mu.Lock()
	uid := r.ssrcToUser[pkt.SSRC]
	sub := r.subs[uid]
	r.mu.Unlock()
	if sub == nil {
		return
	}
	sub.push(pkt.Opus)
}

// Subscribe opens a frame stream for one speaker. The stream ends with
// io.EOF once no frame arrives for the silence window.
func (r *Receiver) Subscribe(userID string) (FrameStream, error) {
	dec, err := opus.NewDecoder(captureSampleRate, captureChannels)
	if err != nil {
		return nil, fmt.Errorf("opus decoder: %w", err)
	}
	sub := &frameSub{
		userID:  userID,
		silence: r.silence,
		dec:     dec,
		frames:  make(chan []int16, 64),
		errc:    make(chan error, 1),
		closed:  make(chan struct{}),
	}
	sub.unsub = func() { r.unsubscribe(userID, sub) }

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.subs[userID]; exists {
		return nil, fmt.Errorf("speaker %s already subscribed", userID)
	}
	r.subs[userID] = sub
	return sub, nil
}

func (r *Receiver) unsubscribe(userID string, sub *frameSub) {
	r.mu.Lock()
	if r.subs[userID] == sub {
		delete(r.subs, userID)
	}
	r.mu.Unlock()
	sub.closeOnce.Do(func() { close(sub.closed) })
}

// Close stops the receive loop and tears down every subscription.
func (r *Receiver) Close() error {
	r.cancel()
	r.mu.Lock()
	subs := make([]*frameSub, 0, len(r.subs))
	for _, s := range r.subs {
		subs = append(subs, s)
	}
	r.subs = make(map[string]*frameSub)
	r.mu.Unlock()
	for _, s := range subs {
		s.closeOnce.Do(func() { close(s.closed) })
	}
	r.wg.Wait()
	return nil
}

// frameSub is one speaker's decoded-audio subscription.
type frameSub struct {
	userID  string
	silence time.Duration
	dec     *opus.Decoder

	frames chan []int16
	errc   chan error

	closeOnce sync.Once
	closed    chan struct{}
	unsub     func()
}

// push decodes one opus payload and queues the PCM frame. Runs on the
// receive loop, so it never blocks: a full queue drops the frame.
func (s *frameSub) push(opusData []byte) {
	pcm := make([]int16, maxFrameSamples)
	n, err := s.dec.Decode(opusData, pcm)
	if err != nil {
		select {
		case s.errc <- fmt.Errorf("opus decode: %w", err):
		default:
		}
		return
	}
	select {
	case s.frames <- pcm[:n]:
	default:
		logging.Warnw("receiver: dropping frame, subscriber queue full", "user_id", s.userID)
	}
}

// Next returns the following frame, io.EOF after the trailing-silence
// window, or the decode error that broke the stream.
func (s *frameSub) Next() ([]int16, error) {
	t := time.NewTimer(s.silence)
	defer t.Stop()
	select {
	case f := <-s.frames:
		return f, nil
	case err := <-s.errc:
		return nil, err
	case <-t.C:
		return nil, io.EOF
	case <-s.closed:
		return nil, errSubscriptionClosed
	}
}

// Close detaches the subscription from the receiver.
func (s *frameSub) Close() error {
	if s.unsub != nil {
		s.unsub()
	}
	return nil
}
