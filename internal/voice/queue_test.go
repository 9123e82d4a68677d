package voice

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueuePlaysInEnqueueOrder(t *testing.T) {
	// T2's synthesis finishes first, but playback order must still be
	// enqueue order.
	delays := map[string]time.Duration{"T1": 60 * time.Millisecond, "T2": 0, "T3": 20 * time.Millisecond}
	synth := &fakeSynth{fn: func(text string) (string, error) {
		time.Sleep(delays[text])
		return writeTempAudio(text)
	}}
	player := &fakePlayer{}
	q := NewSpeechQueue(synth, player, time.Second)

	a1 := q.Enqueue("T1")
	a2 := q.Enqueue("T2")
	a3 := q.Enqueue("T3")
	<-a1.Done()
	<-a2.Done()
	<-a3.Done()
	q.Close(true)

	assert.Equal(t, []string{"T1", "T2", "T3"}, player.playedList())
	assert.False(t, player.overlapped.Load(), "two playback actions overlapped")
}

func TestQueueNoOverlapUnderConcurrentProducers(t *testing.T) {
	player := &fakePlayer{delay: time.Millisecond}
	q := NewSpeechQueue(&fakeSynth{}, player, time.Second)

	done := make([]*SpeechAction, 0, 20)
	for i := 0; i < 20; i++ {
		done = append(done, q.Enqueue("x"))
	}
	for _, a := range done {
		<-a.Done()
	}
	q.Close(true)

	assert.Len(t, player.playedList(), 20)
	assert.False(t, player.overlapped.Load())
}

func TestQueueSpeakingFlagTracksInFlightAction(t *testing.T) {
	player := &fakePlayer{gate: make(chan struct{})}
	q := NewSpeechQueue(&fakeSynth{}, player, time.Second)

	require.False(t, q.Speaking())
	a := q.Enqueue("hello")

	waitFor(t, time.Second, func() bool { return q.Speaking() })
	player.gate <- struct{}{}
	<-a.Done()
	require.False(t, q.Speaking())
	q.Close(true)
}

func TestQueueFailedActionDoesNotBlockNext(t *testing.T) {
	synth := &fakeSynth{fn: func(text string) (string, error) {
		if text == "bad" {
			return "", errors.New("synthesis exploded")
		}
		return writeTempAudio(text)
	}}
	player := &fakePlayer{}
	q := NewSpeechQueue(synth, player, time.Second)

	bad := q.Enqueue("bad")
	good := q.Enqueue("good")
	<-bad.Done()
	<-good.Done()
	q.Close(true)

	assert.Equal(t, []string{"good"}, player.playedList())
}

func TestQueueEnqueueAfterCloseResolvesImmediately(t *testing.T) {
	q := NewSpeechQueue(&fakeSynth{}, &fakePlayer{}, time.Second)
	q.Close(true)

	a := q.Enqueue("too late")
	select {
	case <-a.Done():
	case <-time.After(time.Second):
		t.Fatal("action enqueued after close never resolved")
	}
}
