package tts

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubPiper writes a script that records its stdin and args, then writes the
// requested output file.
func stubPiper(t *testing.T) (bin, logPath string) {
	t.Helper()
	dir := t.TempDir()
	logPath = filepath.Join(dir, "invocation.log")
	bin = filepath.Join(dir, "piper-stub")
	script := `#!/bin/sh
echo "args: $@" > "` + logPath + `"
echo "stdin: $(cat)" >> "` + logPath + `"
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "--output_file" ]; then out="$2"; fi
  shift
done
printf 'RIFF' > "$out"
`
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))
	return bin, logPath
}

func TestSynthesizeWritesWAVAndFeedsText(t *testing.T) {
	bin, logPath := stubPiper(t)
	c := NewClient(bin, "voice.onnx", 1.0)

	wavPath, err := c.Synthesize(context.Background(), "hello there")
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(wavPath) })

	b, err := os.ReadFile(wavPath)
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(b))

	log, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(log), "--model voice.onnx")
	assert.Contains(t, string(log), "--length_scale 1")
	assert.Contains(t, string(log), "stdin: hello there")
}

func TestSynthesizeClampsSpeakRate(t *testing.T) {
	cases := []struct {
		rate  float64
		scale string
	}{
		{0.1, "--length_scale 1.6666666666666667"},
		{2.5, "--length_scale 0.625"},
		{0.8, "--length_scale 1.25"},
	}
	for _, c := range cases {
		bin, logPath := stubPiper(t)
		cl := NewClient(bin, "voice.onnx", c.rate)
		wavPath, err := cl.Synthesize(context.Background(), "x")
		require.NoError(t, err)
		os.Remove(wavPath)

		log, err := os.ReadFile(logPath)
		require.NoError(t, err)
		assert.Contains(t, string(log), c.scale, "rate %v", c.rate)
	}
}

func TestSynthesizeRemovesFileOnFailure(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "piper-stub")
	script := `#!/bin/sh
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "--output_file" ]; then out="$2"; fi
  shift
done
printf 'partial' > "$out"
echo "synthesis blew up" >&2
exit 1
`
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))

	c := NewClient(bin, "voice.onnx", 1.0)
	wavPath, err := c.Synthesize(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "synthesis blew up")
	assert.Empty(t, wavPath)
}
