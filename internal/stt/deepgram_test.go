package stt

import (
	"context"
	"testing"

	"github.com/tqmkrishnadev/nextrole/internal/audio"
)

func TestTranscribe_NoKey(t *testing.T) {
	c := NewDeepgramClient("")
	if _, err := c.Transcribe(context.Background(), audio.Buffer{Bytes: []byte{1, 2}}); err == nil {
		t.Fatalf("expected error when api key missing")
	}
}

func TestTranscribe_EmptyBufferShortCircuits(t *testing.T) {
	c := NewDeepgramClient("key")
	text, err := c.Transcribe(context.Background(), audio.Buffer{Format: audio.FormatPCM16k})
	if err != nil {
		t.Fatalf("empty buffer should not error: %v", err)
	}
	if text != "" {
		t.Fatalf("expected empty transcript, got %q", text)
	}
}

func TestSplitFormat(t *testing.T) {
	codec, rate := splitFormat(audio.FormatPCM16k)
	if codec != "pcm_s16le" || rate != "16000" {
		t.Fatalf("unexpected split: %q %q", codec, rate)
	}
}
