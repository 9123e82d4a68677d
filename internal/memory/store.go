// Package memory persists per-guild conversation state: a summary of the
// previous call plus a bounded log of recent turns. One JSON file per guild.
package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ember-voice-lab/internal/logging"
)

// Turn is a single exchange entry: role is "user" or "assistant".
type Turn struct {
	Role     string `json:"role"`
	Text     string `json:"text"`
	TS       int64  `json:"ts"`
	UserID   string `json:"userId,omitempty"`
	Username string `json:"username,omitempty"`
}

// Memory is the durable per-guild record.
type Memory struct {
	CallSummary string `json:"call_summary"`
	RecentTurns []Turn `json:"recent_turns"`
	LastUpdated string `json:"last_updated,omitempty"`
}

// Store reads and writes guild memory files under a single directory.
type Store struct {
	dir      string
	maxTurns int
	mu       sync.Mutex
}

// NewStore creates the backing directory if needed. maxTurns bounds the
// recent-turn log; values < 1 fall back to 60.
func NewStore(dir string, maxTurns int) (*Store, error) {
	if maxTurns < 1 {
		maxTurns = 60
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create memory dir: %w", err)
	}
	return &Store{dir: dir, maxTurns: maxTurns}, nil
}

func (s *Store) path(guildID string) string {
	return filepath.Join(s.dir, "guild_"+guildID+".json")
}

// Load returns the memory for a guild. Missing or corrupt files yield an
// empty memory rather than an error; the file will be rewritten on the
// next Save.
func (s *Store) Load(guildID string) *Memory {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := &Memory{}
	b, err := os.ReadFile(s.path(guildID))
	if err != nil {
		return m
	}
	if err := json.Unmarshal(b, m); err != nil {
		logging.Warnw("memory: corrupt file, starting fresh", "guild_id", guildID, "err", err)
		return &Memory{}
	}
	if m.RecentTurns == nil {
		m.RecentTurns = []Turn{}
	}
	return m
}

// Save stamps last_updated and writes the memory atomically (tmp file +
// rename in the same directory).
func (s *Store) Save(guildID string, m *Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	path := s.path(guildID)
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// Push appends a turn and trims the log to the configured cap.
func (s *Store) Push(m *Memory, t Turn) {
	m.RecentTurns = append(m.RecentTurns, t)
	if n := len(m.RecentTurns); n > s.maxTurns {
		m.RecentTurns = m.RecentTurns[n-s.maxTurns:]
	}
}

var secretTokenRe = regexp.MustCompile(`(?i)sk-[a-z0-9]{10,}`)

// ShouldStore is a simple "don't persist secrets" filter. Turns that fail
// it are still spoken, just never written to disk.
func ShouldStore(text string) bool {
	t := strings.ToLower(text)
	if strings.Contains(t, "password") || strings.Contains(t, "api key") || strings.Contains(t, "secret") {
		return false
	}
	return !secretTokenRe.MatchString(text)
}
