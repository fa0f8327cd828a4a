package audio

import (
	"context"
	"sync"
	"time"
)

// MemoryDevice is an in-process Device. It backs phone sessions (where the
// audio truly lives on the Twilio leg), manual-entry fallback, and tests:
// capture accumulates whatever Feed delivers, playback completes after a
// configurable delay.
type MemoryDevice struct {
	guard exclusive

	// PlaybackDelay simulates utterance length; zero completes on the next
	// scheduler tick.
	PlaybackDelay time.Duration
	// DenyPermission and Unavailable make StartCapture fail with the
	// corresponding sentinel, for permission-path tests.
	DenyPermission bool
	Unavailable    bool

	mu      sync.Mutex
	capture *CaptureHandle
}

// NewMemoryDevice returns a device with instant playback.
func NewMemoryDevice() *MemoryDevice { return &MemoryDevice{} }

// StartCapture begins buffering fed audio.
func (d *MemoryDevice) StartCapture(ctx context.Context) (*CaptureHandle, error) {
	if d.DenyPermission {
		return nil, ErrPermissionDenied
	}
	if d.Unavailable {
		return nil, ErrDeviceUnavailable
	}
	if err := d.guard.beginCapture(); err != nil {
		return nil, err
	}
	h := &CaptureHandle{format: FormatPCM16k, startedAt: time.Now(), active: true}
	d.mu.Lock()
	d.capture = h
	d.mu.Unlock()
	return h, nil
}

// Feed appends audio to the active capture, if any.
func (d *MemoryDevice) Feed(p []byte) {
	d.mu.Lock()
	h := d.capture
	d.mu.Unlock()
	if h != nil {
		h.append(p)
	}
}

// StopCapture finalizes and returns the buffered audio. Without an active
// handle it returns an empty buffer.
func (d *MemoryDevice) StopCapture(h *CaptureHandle) Buffer {
	if h == nil {
		return Buffer{Format: FormatPCM16k}
	}
	d.mu.Lock()
	if d.capture == h {
		d.capture = nil
		d.guard.endCapture()
	}
	d.mu.Unlock()
	return h.finalize()
}

// Play completes after PlaybackDelay unless stopped first.
func (d *MemoryDevice) Play(ctx context.Context, buf Buffer) (*PlaybackHandle, error) {
	if err := d.guard.beginPlayback(); err != nil {
		return nil, err
	}
	stopCh := make(chan struct{})
	var stopOnce sync.Once
	h := newPlaybackHandle(func() { stopOnce.Do(func() { close(stopCh) }) })
	go func() {
		// release the guard before signalling Done so a capture request
		// issued from the Done callback is never rejected
		defer h.finish()
		defer d.guard.endPlayback()
		timer := time.NewTimer(d.PlaybackDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-stopCh:
		case <-ctx.Done():
		}
	}()
	return h, nil
}

// StopPlayback interrupts the given playback immediately.
func (d *MemoryDevice) StopPlayback(h *PlaybackHandle) {
	if h == nil {
		return
	}
	if h.stop != nil {
		h.stop()
	}
	<-h.done
}
