package voice

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ember-voice-lab/internal/logging"
)

// SpeechAction is one queued spoken output. Done closes once the action has
// finished playing or failed; failed actions are treated as complete so
// they never block the queue.
type SpeechAction struct {
	text      string
	audioPath string
	done      chan struct{}
}

// Done resolves when the action has finished playing (or failed).
func (a *SpeechAction) Done() <-chan struct{} { return a.done }

// SpeechQueue serializes every spoken action for one channel through a
// single worker, so replies, greetings and announcements never overlap.
// Playback order is enqueue order regardless of how long any action's
// synthesis takes.
type SpeechQueue struct {
	synth        Synthesizer
	player       Player
	synthTimeout time.Duration

	mu      sync.Mutex
	closed  bool
	actions chan *SpeechAction

	speaking atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewSpeechQueue starts the queue's single worker.
func NewSpeechQueue(synth Synthesizer, player Player, synthTimeout time.Duration) *SpeechQueue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &SpeechQueue{
		synth:        synth,
		player:       player,
		synthTimeout: synthTimeout,
		actions:      make(chan *SpeechAction, 64),
		ctx:          ctx,
		cancel:       cancel,
	}
	q.wg.Add(1)
	go q.run()
	return q
}

// Speaking reports whether the worker currently holds an in-flight action.
// This is the single source of truth the capture gate reads.
func (q *SpeechQueue) Speaking() bool { return q.speaking.Load() }

// Enqueue appends a text action; the worker synthesizes it before playback.
func (q *SpeechQueue) Enqueue(text string) *SpeechAction {
	return q.submit(&SpeechAction{text: text, done: make(chan struct{})})
}

// EnqueueAudio appends a precomputed audio action. The queue takes
// ownership of the file and removes it after playback.
func (q *SpeechQueue) EnqueueAudio(wavPath string) *SpeechAction {
	return q.submit(&SpeechAction{audioPath: wavPath, done: make(chan struct{})})
}

func (q *SpeechQueue) submit(a *SpeechAction) *SpeechAction {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		if a.audioPath != "" {
			_ = os.Remove(a.audioPath)
		}
		logging.Debugw("speech: enqueue after close, dropping action")
		close(a.done)
		return a
	}
	q.actions <- a
	q.mu.Unlock()
	return a
}

func (q *SpeechQueue) run() {
	defer q.wg.Done()
	for a := range q.actions {
		q.play(a)
	}
}

func (q *SpeechQueue) play(a *SpeechAction) {
	q.speaking.Store(true)
	defer func() {
		q.speaking.Store(false)
		close(a.done)
	}()

	wavPath := a.audioPath
	if wavPath == "" {
		ctx, cancel := context.WithTimeout(q.ctx, q.synthTimeout)
		p, err := q.synth.Synthesize(ctx, a.text)
		cancel()
		if err != nil {
			logging.Warnw("speech: synthesis failed", "err", err)
			return
		}
		wavPath = p
	}
	defer func() { _ = os.Remove(wavPath) }()

	if err := q.player.Play(q.ctx, wavPath); err != nil {
		logging.Warnw("speech: playback failed", "err", err)
	}
}

// Close stops accepting new actions. With drain true pending actions are
// allowed to play out before the worker exits; otherwise in-flight work is
// cancelled and the remaining actions fail fast.
func (q *SpeechQueue) Close(drain bool) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.actions)
	q.mu.Unlock()

	if !drain {
		q.cancel()
	}
	q.wg.Wait()
	q.cancel()
}
