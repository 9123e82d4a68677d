// Package tts synthesizes speech with a local piper binary.
package tts

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Client invokes the piper binary with an onnx voice model.
type Client struct {
	Bin       string
	Model     string
	SpeakRate float64
}

func NewClient(bin, model string, speakRate float64) *Client {
	return &Client{Bin: bin, Model: model, SpeakRate: speakRate}
}

// Synthesize renders text to a temp WAV file and returns its path. The
// caller owns the file and must remove it after playback. length_scale is
// the inverse of the speaking rate, with the rate clamped to [0.6, 1.6].
func (c *Client) Synthesize(ctx context.Context, text string) (string, error) {
	wavPath := filepath.Join(os.TempDir(), "ember_tts_"+uuid.NewString()+".wav")

	speed := c.SpeakRate
	if speed < 0.6 {
		speed = 0.6
	}
	if speed > 1.6 {
		speed = 1.6
	}
	lengthScale := 1.0 / speed

	cmd := exec.CommandContext(ctx, c.Bin,
		"--model", c.Model,
		"--output_file", wavPath,
		"--length_scale", strconv.FormatFloat(lengthScale, 'f', -1, 64),
	)
	cmd.Stdin = strings.NewReader(text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		_ = os.Remove(wavPath)
		return "", fmt.Errorf("piper: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return wavPath, nil
}
