package voice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPipeline(sttc Transcriber, resp Responder, player *fakePlayer) (*Pipeline, *SpeechQueue) {
	q := NewSpeechQueue(&fakeSynth{}, player, time.Second)
	p := &Pipeline{
		STT:              sttc,
		Respond:          resp,
		Synth:            &fakeSynth{},
		Queue:            q,
		STTTimeout:       time.Second,
		GenTimeout:       time.Second,
		TTSTimeout:       time.Second,
		GoodnightMessage: func() string { return "Okay chat… Gute Nacht. (German)" },
	}
	return p, q
}

func testUtterance() *Utterance {
	return &Utterance{
		GuildID:       "g1",
		UserID:        "u1",
		Username:      "alice",
		PCM:           make([]int16, captureSampleRate), // 1s of audio
		CorrelationID: "cid-test",
		CapturedAt:    time.Now(),
	}
}

func TestPipelineSpeaksGeneratedReply(t *testing.T) {
	player := &fakePlayer{}
	p, q := newTestPipeline(&fakeSTT{text: "how are you"}, &fakeResponder{reply: "thriving, honestly"}, player)

	p.Process(context.Background(), testUtterance())
	q.Close(true)

	assert.Equal(t, []string{"thriving, honestly"}, player.playedList())
}

func TestPipelineGoodnightTriggerSkipsGeneration(t *testing.T) {
	for _, transcript := range []string{"Goodnight everyone", "ok good night", "GN"} {
		t.Run(transcript, func(t *testing.T) {
			resp := &fakeResponder{reply: "should never be spoken"}
			player := &fakePlayer{}
			p, q := newTestPipeline(&fakeSTT{text: transcript}, resp, player)

			p.Process(context.Background(), testUtterance())
			q.Close(true)

			assert.Zero(t, resp.calls, "generation collaborator must not be invoked")
			require.Len(t, player.playedList(), 1)
			assert.Contains(t, player.playedList()[0], "Gute Nacht")
		})
	}
}

func TestPipelineAbortsOnSTTError(t *testing.T) {
	resp := &fakeResponder{reply: "nope"}
	player := &fakePlayer{}
	p, q := newTestPipeline(&fakeSTT{err: errors.New("whisper exited 1")}, resp, player)

	p.Process(context.Background(), testUtterance())
	q.Close(true)

	assert.Zero(t, resp.calls)
	assert.Empty(t, player.playedList(), "output queue must receive nothing")
}

func TestPipelineDiscardsShortTranscript(t *testing.T) {
	resp := &fakeResponder{reply: "nope"}
	player := &fakePlayer{}
	p, q := newTestPipeline(&fakeSTT{text: "  a  "}, resp, player)

	p.Process(context.Background(), testUtterance())
	q.Close(true)

	assert.Zero(t, resp.calls)
	assert.Empty(t, player.playedList())
}

func TestPipelineFallsBackToFillerOnGenerationFailure(t *testing.T) {
	player := &fakePlayer{}
	p, q := newTestPipeline(&fakeSTT{text: "say something"}, &fakeResponder{err: errors.New("ollama down")}, player)

	p.Process(context.Background(), testUtterance())
	q.Close(true)

	assert.Equal(t, []string{fillerReply}, player.playedList())
}

func TestPipelineAbortsOnSynthesisFailure(t *testing.T) {
	player := &fakePlayer{}
	p, q := newTestPipeline(&fakeSTT{text: "say something"}, &fakeResponder{reply: "ok"}, player)
	p.Synth = &fakeSynth{fn: func(string) (string, error) { return "", errors.New("piper exited 1") }}

	p.Process(context.Background(), testUtterance())
	q.Close(true)

	assert.Empty(t, player.playedList())
}

func TestPipelineCollapsesTranscriptWhitespace(t *testing.T) {
	player := &fakePlayer{}
	resp := &fakeResponder{reply: "fine"}
	p, q := newTestPipeline(&fakeSTT{text: "  hello \n\t world  "}, resp, player)

	p.Process(context.Background(), testUtterance())
	q.Close(true)

	assert.EqualValues(t, 1, resp.calls)
	assert.Equal(t, []string{"fine"}, player.playedList())
}
