// Package stt transcribes WAV files with a local whisper-cli binary.
package stt

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

var wsRe = regexp.MustCompile(`\s+`)

// Client invokes the whisper-cli binary with a ggml model file.
type Client struct {
	Bin   string
	Model string
}

func NewClient(bin, model string) *Client {
	return &Client{Bin: bin, Model: model}
}

// Transcribe runs whisper-cli on the given 16 kHz mono WAV and returns the
// recognized text with whitespace collapsed. A non-zero exit fails with the
// captured stderr as diagnostic.
func (c *Client) Transcribe(ctx context.Context, wavPath string) (string, error) {
	// -nt: no timestamps, -np: no progress.
	cmd := exec.CommandContext(ctx, c.Bin, "-m", c.Model, "-f", wavPath, "-nt", "-np")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("whisper-cli: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return Normalize(stdout.String()), nil
}

// Normalize collapses runs of whitespace into single spaces and trims.
func Normalize(text string) string {
	return strings.TrimSpace(wsRe.ReplaceAllString(text, " "))
}
