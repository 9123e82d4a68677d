package voice

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ember-voice-lab/internal/logging"
)

// Archiver optionally saves each transcribed utterance's WAV plus a JSON
// sidecar for offline inspection. Everything here is best-effort; archive
// failures never affect the pipeline.
type Archiver struct {
	Dir string
}

// NewArchiver returns nil when dir is empty, which disables archiving.
func NewArchiver(dir string) *Archiver {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logging.Warnw("archive: cannot create dir, disabling", "dir", dir, "err", err)
		return nil
	}
	return &Archiver{Dir: dir}
}

type sidecar struct {
	CorrelationID string `json:"correlation_id"`
	GuildID       string `json:"guild_id"`
	UserID        string `json:"user_id"`
	Username      string `json:"username"`
	Transcript    string `json:"transcript"`
	DurationMS    int64  `json:"duration_ms"`
	CapturedUTC   string `json:"captured_utc"`
	WAVPath       string `json:"wav_path"`
}

// Save writes the WAV and its sidecar atomically.
func (a *Archiver) Save(utt *Utterance, wav []byte, transcript string) {
	ts := utt.CapturedAt.UTC().Format("20060102T150405.000Z")
	base := filepath.Join(a.Dir, fmt.Sprintf("%s_%s_cid%s", ts, utt.UserID, utt.CorrelationID))
	wavPath := base + ".wav"
	if err := SaveFileAtomic(wavPath, wav, 0o644); err != nil {
		logging.Debugw("archive: wav save failed", "path", wavPath, "err", err)
		return
	}
	sc := sidecar{
		CorrelationID: utt.CorrelationID,
		GuildID:       utt.GuildID,
		UserID:        utt.UserID,
		Username:      utt.Username,
		Transcript:    transcript,
		DurationMS:    utt.Duration().Milliseconds(),
		CapturedUTC:   utt.CapturedAt.UTC().Format(time.RFC3339Nano),
		WAVPath:       wavPath,
	}
	b, _ := json.MarshalIndent(sc, "", "  ")
	if err := SaveFileAtomic(base+".json", b, 0o644); err != nil {
		logging.Debugw("archive: sidecar save failed", "path", base+".json", "err", err)
	}
}
