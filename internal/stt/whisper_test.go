package stt

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", ""},
		{"   ", ""},
		{"hello", "hello"},
		{"  hello   world  ", "hello world"},
		{"line\none\n\nline two\t end", "line one line two end"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Normalize(c.in), "input: %q", c.in)
	}
}

// writeStubBinary drops a shell script that stands in for whisper-cli.
func writeStubBinary(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "whisper-stub")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func TestTranscribeReturnsNormalizedStdout(t *testing.T) {
	bin := writeStubBinary(t, `printf '  hello \n world \n'`)
	c := NewClient(bin, "model.bin")
	out, err := c.Transcribe(context.Background(), "in.wav")
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}

func TestTranscribePassesArguments(t *testing.T) {
	bin := writeStubBinary(t, `echo "$@"`)
	c := NewClient(bin, "model.bin")
	out, err := c.Transcribe(context.Background(), "clip.wav")
	require.NoError(t, err)
	assert.Equal(t, "-m model.bin -f clip.wav -nt -np", out)
}

func TestTranscribeSurfacesStderrOnFailure(t *testing.T) {
	bin := writeStubBinary(t, `echo "failed to load model" >&2; exit 3`)
	c := NewClient(bin, "model.bin")
	_, err := c.Transcribe(context.Background(), "in.wav")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load model")
}

func TestTranscribeMissingBinary(t *testing.T) {
	c := NewClient(filepath.Join(t.TempDir(), "does-not-exist"), "model.bin")
	_, err := c.Transcribe(context.Background(), "in.wav")
	assert.Error(t, err)
}
