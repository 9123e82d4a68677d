// Package config loads process configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the bot needs at startup. All values come from
// environment variables; defaults match a typical local deployment.
type Config struct {
	DiscordToken string

	OllamaURL   string
	OllamaModel string

	PiperBin       string
	PiperModel     string
	PiperSpeakRate float64

	WhisperBin   string
	WhisperModel string

	// Endpointing and admission knobs, in milliseconds.
	SilenceMS      int
	MinUtteranceMS int
	CooldownMS     int

	MemoryDir      string
	MemoryMaxTurns int

	// Per-collaborator call deadlines. A hung STT/LLM/TTS call stalls the
	// channel's playback queue, so every call gets a deadline.
	STTTimeout time.Duration
	GenTimeout time.Duration
	TTSTimeout time.Duration

	// Optional directory for archiving captured utterances + sidecar JSON.
	SaveAudioDir string
}

// Load reads configuration from the environment. A .env file in the working
// directory is merged in first when present (it never overrides variables
// already set in the environment).
func Load() (*Config, error) {
	_ = godotenv.Load()

	c := &Config{
		DiscordToken:   strings.TrimSpace(os.Getenv("DISCORD_TOKEN")),
		OllamaURL:      envStr("OLLAMA_URL", "http://127.0.0.1:11434"),
		OllamaModel:    envStr("OLLAMA_MODEL", "qwen2.5:7b"),
		PiperBin:       strings.TrimSpace(os.Getenv("PIPER_BIN")),
		PiperModel:     strings.TrimSpace(os.Getenv("PIPER_MODEL")),
		PiperSpeakRate: envFloat("PIPER_SPEAK_RATE", 0.85),
		WhisperBin:     strings.TrimSpace(os.Getenv("WHISPER_BIN")),
		WhisperModel:   strings.TrimSpace(os.Getenv("WHISPER_MODEL")),
		SilenceMS:      envInt("SILENCE_MS", 900),
		MinUtteranceMS: envInt("MIN_UTTERANCE_MS", 700),
		CooldownMS:     envInt("COOLDOWN_MS", 2000),
		MemoryDir:      envStr("MEMORY_DIR", "./memory"),
		MemoryMaxTurns: envInt("MEMORY_MAX_TURNS", 60),
		STTTimeout:     envDurationMS("STT_TIMEOUT_MS", 30000),
		GenTimeout:     envDurationMS("GEN_TIMEOUT_MS", 60000),
		TTSTimeout:     envDurationMS("TTS_TIMEOUT_MS", 20000),
		SaveAudioDir:   strings.TrimSpace(os.Getenv("SAVE_AUDIO_DIR")),
	}

	for _, req := range []struct{ name, val string }{
		{"DISCORD_TOKEN", c.DiscordToken},
		{"PIPER_BIN", c.PiperBin},
		{"PIPER_MODEL", c.PiperModel},
		{"WHISPER_BIN", c.WhisperBin},
		{"WHISPER_MODEL", c.WhisperModel},
	} {
		if req.val == "" {
			return nil, fmt.Errorf("missing %s in environment", req.name)
		}
	}
	return c, nil
}

func envStr(name, def string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return def
}

func envInt(name string, def int) int {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(name string, def float64) float64 {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envDurationMS(name string, defMS int) time.Duration {
	return time.Duration(envInt(name, defMS)) * time.Millisecond
}
