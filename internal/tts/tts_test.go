package tts

import (
	"context"
	"testing"
	"time"
)

// Smoke tests for the missing-key paths; nothing here reaches the network.

func TestDeepgram_Stream_NoKey(t *testing.T) {
	d := NewDeepgramClient("", "")
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	pcmCh, errCh := d.Stream(ctx, "hello")
	select {
	case err := <-errCh:
		if err == nil {
			t.Fatalf("expected error when api key missing")
		}
	case <-pcmCh:
	case <-time.After(300 * time.Millisecond):
		t.Fatalf("timeout waiting for error")
	}
}

func TestElevenLabs_Stream_NoKey(t *testing.T) {
	e := NewElevenLabsClient("", "")
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, errCh := e.Stream(ctx, "hello")
	select {
	case err := <-errCh:
		if err == nil {
			t.Fatalf("expected error when api key missing")
		}
	case <-time.After(300 * time.Millisecond):
		t.Fatalf("timeout waiting for error")
	}
}

type scriptedSpeaker struct {
	chunks [][]byte
}

func (s scriptedSpeaker) Stream(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	pcm := make(chan []byte, len(s.chunks))
	errc := make(chan error, 1)
	go func() {
		defer close(pcm)
		defer close(errc)
		for _, c := range s.chunks {
			pcm <- c
		}
	}()
	return pcm, errc
}

func TestCollect_JoinsChunks(t *testing.T) {
	s := scriptedSpeaker{chunks: [][]byte{{1, 2}, {3}, {4, 5}}}
	out, err := Collect(context.Background(), s, "hi")
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(out) != 5 {
		t.Fatalf("expected 5 bytes, got %d", len(out))
	}
}
