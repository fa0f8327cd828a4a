package audio

import (
	"context"
	"testing"
	"time"
)

func TestMemoryDevice_CaptureRoundTrip(t *testing.T) {
	d := NewMemoryDevice()
	h, err := d.StartCapture(context.Background())
	if err != nil {
		t.Fatalf("start capture: %v", err)
	}
	d.Feed([]byte{1, 0, 2, 0})
	d.Feed([]byte{3, 0})
	buf := d.StopCapture(h)
	if len(buf.Bytes) != 6 {
		t.Fatalf("expected 6 captured bytes, got %d", len(buf.Bytes))
	}
	if buf.Format != FormatPCM16k {
		t.Fatalf("unexpected format %q", buf.Format)
	}
}

func TestMemoryDevice_StopCaptureWithoutHandle(t *testing.T) {
	d := NewMemoryDevice()
	buf := d.StopCapture(nil)
	if !buf.Empty() {
		t.Fatalf("expected empty buffer")
	}
}

func TestMemoryDevice_PermissionDenied(t *testing.T) {
	d := NewMemoryDevice()
	d.DenyPermission = true
	if _, err := d.StartCapture(context.Background()); err != ErrPermissionDenied {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestExclusivity_CaptureRejectedDuringPlayback(t *testing.T) {
	d := NewMemoryDevice()
	d.PlaybackDelay = 200 * time.Millisecond
	ph, err := d.Play(context.Background(), Buffer{Bytes: []byte{0, 0}, Format: FormatPCM48k})
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if _, err := d.StartCapture(context.Background()); err != ErrBusy {
		t.Fatalf("expected ErrBusy while playing, got %v", err)
	}
	d.StopPlayback(ph)
	if _, err := d.StartCapture(context.Background()); err != nil {
		t.Fatalf("expected capture to succeed after playback stop, got %v", err)
	}
}

func TestExclusivity_PlaybackRejectedDuringCapture(t *testing.T) {
	d := NewMemoryDevice()
	h, err := d.StartCapture(context.Background())
	if err != nil {
		t.Fatalf("start capture: %v", err)
	}
	if _, err := d.Play(context.Background(), Buffer{Bytes: []byte{0, 0}}); err != ErrBusy {
		t.Fatalf("expected ErrBusy while capturing, got %v", err)
	}
	_ = d.StopCapture(h)
}

func TestPlayback_StopInterrupts(t *testing.T) {
	d := NewMemoryDevice()
	d.PlaybackDelay = 5 * time.Second
	h, err := d.Play(context.Background(), Buffer{Bytes: []byte{0, 0}})
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	start := time.Now()
	d.StopPlayback(h)
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatalf("playback did not stop")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("stop took too long")
	}
}

func TestPlayback_CompletionReported(t *testing.T) {
	d := NewMemoryDevice()
	d.PlaybackDelay = 10 * time.Millisecond
	h, err := d.Play(context.Background(), Buffer{Bytes: []byte{0, 0}})
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatalf("expected playback completion event")
	}
}
