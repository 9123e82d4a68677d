package voice

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/ember-voice-lab/internal/logging"
)

// SessionConfig carries the per-channel turn-taking knobs.
type SessionConfig struct {
	GuildID      string
	BotUserID    string
	Silence      time.Duration
	MinUtterance time.Duration
	Cooldown     time.Duration
}

// Dependencies are the collaborators a Session wires together.
type Dependencies struct {
	Synth    Synthesizer
	Player   Player
	STT      Transcriber
	Respond  Responder
	Resolver NameResolver
	Archive  *Archiver

	STTTimeout time.Duration
	GenTimeout time.Duration
	TTSTimeout time.Duration
}

// Session owns all mutable state for one joined voice channel: the
// admission gate's active-listener set and cooldown table, the speech
// output queue, and the capture/pipeline goroutines. Sessions are never
// shared across channels.
type Session struct {
	cfg      SessionConfig
	queue    *SpeechQueue
	pipeline *Pipeline
	resolver NameResolver

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	closed    bool
	subs      Subscriber
	active    map[string]struct{}
	lastHeard map[string]time.Time
}

// NewSession builds a session and starts its playback worker. Call
// BindTransport before speaking-start events arrive.
func NewSession(cfg SessionConfig, d Dependencies) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	q := NewSpeechQueue(d.Synth, d.Player, d.TTSTimeout)
	resolver := d.Resolver
	if resolver == nil {
		resolver = NoopResolver{}
	}
	s := &Session{
		cfg:       cfg,
		queue:     q,
		resolver:  resolver,
		ctx:       ctx,
		cancel:    cancel,
		active:    make(map[string]struct{}),
		lastHeard: make(map[string]time.Time),
	}
	s.pipeline = &Pipeline{
		STT:        d.STT,
		Respond:    d.Respond,
		Synth:      d.Synth,
		Queue:      q,
		Archive:    d.Archive,
		STTTimeout: d.STTTimeout,
		GenTimeout: d.GenTimeout,
		TTSTimeout: d.TTSTimeout,
	}
	return s
}

// BindTransport attaches the per-speaker audio source.
func (s *Session) BindTransport(subs Subscriber) {
	s.mu.Lock()
	s.subs = subs
	s.mu.Unlock()
}

// Queue exposes the session's speech output queue.
func (s *Session) Queue() *SpeechQueue { return s.queue }

// Announce enqueues an arbitrary spoken action (greetings, farewells,
// command output) without requiring a preceding utterance.
func (s *Session) Announce(text string) *SpeechAction {
	return s.queue.Enqueue(text)
}

// HandleSpeakingStart is the capture gate. Rules run in order and the
// first failure rejects with no side effects: the bot-speaking guard, the
// duplicate-capture guard, the self-audio guard, then the per-speaker
// cooldown. On admit the speaker joins the active set, the cooldown stamp
// is refreshed, and a capture goroutine starts. Returns whether the event
// was admitted.
func (s *Session) HandleSpeakingStart(userID string) bool {
	s.mu.Lock()
	if s.closed || s.subs == nil {
		s.mu.Unlock()
		return false
	}
	if s.queue.Speaking() {
		s.mu.Unlock()
		logging.Debugw("gate: rejecting while bot is speaking", "guild_id", s.cfg.GuildID, "user_id", userID)
		return false
	}
	if _, ok := s.active[userID]; ok {
		s.mu.Unlock()
		logging.Debugw("gate: speaker already being captured", "guild_id", s.cfg.GuildID, "user_id", userID)
		return false
	}
	if userID == s.cfg.BotUserID {
		s.mu.Unlock()
		return false
	}
	now := time.Now()
	if last, ok := s.lastHeard[userID]; ok && now.Sub(last) < s.cfg.Cooldown {
		s.mu.Unlock()
		logging.Debugw("gate: speaker in cooldown", "guild_id", s.cfg.GuildID, "user_id", userID)
		return false
	}
	// Refreshed unconditionally on admission, even if the capture is later
	// discarded as too short; bounds the capture-start rate per speaker.
	s.lastHeard[userID] = now
	s.active[userID] = struct{}{}
	subs := s.subs
	s.mu.Unlock()

	stream, err := subs.Subscribe(userID)
	if err != nil {
		s.removeActive(userID)
		logging.Warnw("gate: subscribe failed", "guild_id", s.cfg.GuildID, "user_id", userID, "err", err)
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.removeActive(userID)
		s.capture(userID, stream)
	}()
	return true
}

func (s *Session) removeActive(userID string) {
	s.mu.Lock()
	delete(s.active, userID)
	s.mu.Unlock()
}

// ActiveListeners reports how many speakers are currently being captured.
func (s *Session) ActiveListeners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Close tears the session down: no further admissions or enqueues, the
// queue drains (or is abandoned when drain is false), and capture and
// pipeline goroutines are waited out.
func (s *Session) Close(drain bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	s.queue.Close(drain)
	s.cancel()
	if c, ok := subs.(io.Closer); ok {
		_ = c.Close()
	}
	s.wg.Wait()

	s.mu.Lock()
	s.active = make(map[string]struct{})
	s.lastHeard = make(map[string]time.Time)
	s.mu.Unlock()
}

// Registry is the process-wide guild id -> Session map.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Get returns the session for a guild, or nil.
func (r *Registry) Get(guildID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[guildID]
}

// GetOrCreate returns the existing session or lazily builds one with make.
func (r *Registry) GetOrCreate(guildID string, make func() *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[guildID]; ok {
		return s
	}
	s := make()
	r.sessions[guildID] = s
	return s
}

// Remove detaches and returns the session for a guild, or nil. The caller
// is responsible for closing it.
func (r *Registry) Remove(guildID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.sessions[guildID]
	delete(r.sessions, guildID)
	return s
}

// Drain removes and returns every session; used at shutdown.
func (r *Registry) Drain() map[string]*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.sessions
	r.sessions = make(map[string]*Session)
	return out
}
