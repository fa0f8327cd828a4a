// Package audio abstracts microphone capture and speaker playback behind a
// single Device interface so the conversation state machine never branches
// on platform. Implementations own the OS-level audio resources and must
// keep capture and playback from being open at the same time even if the
// caller misbehaves.
package audio

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Capture/playback formats are tagged "codec/sampleRate/channels" so the
// receiving side can pick a decoder.
const (
	FormatPCM16k = "pcm_s16le/16000/1"
	FormatPCM48k = "pcm_s16le/48000/1"
	FormatOpus   = "opus/48000/1"
)

var (
	// ErrPermissionDenied means microphone access was refused.
	ErrPermissionDenied = errors.New("audio: microphone permission denied")
	// ErrDeviceUnavailable means no usable input device exists.
	ErrDeviceUnavailable = errors.New("audio: no input device available")
	// ErrBusy means the exclusivity guard rejected a request because the
	// opposite direction is still open.
	ErrBusy = errors.New("audio: capture and playback cannot overlap")
)

// Buffer is a byte sequence plus its encoding tag. A capture buffer is
// handed to the protocol encoder exactly once per user turn and then
// discarded; playback buffers are never reused for capture.
type Buffer struct {
	Bytes  []byte
	Format string
}

// Empty reports whether the buffer holds no audio.
func (b Buffer) Empty() bool { return len(b.Bytes) == 0 }

// CaptureHandle accumulates microphone audio until finalized.
type CaptureHandle struct {
	mu        sync.Mutex
	buf       []byte
	format    string
	startedAt time.Time
	active    bool
}

// StartedAt reports when capture began, for response duration accounting.
func (h *CaptureHandle) StartedAt() time.Time { return h.startedAt }

func (h *CaptureHandle) append(p []byte) {
	h.mu.Lock()
	if h.active {
		h.buf = append(h.buf, p...)
	}
	h.mu.Unlock()
}

func (h *CaptureHandle) finalize() Buffer {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.active = false
	out := Buffer{Bytes: h.buf, Format: h.format}
	h.buf = nil
	return out
}

// PlaybackHandle tracks one asynchronous playback. Completion is reported
// via Done, never polled.
type PlaybackHandle struct {
	done chan struct{}
	once sync.Once
	stop func()
}

func newPlaybackHandle(stop func()) *PlaybackHandle {
	return &PlaybackHandle{done: make(chan struct{}), stop: stop}
}

// Done closes when playback finished or was stopped.
func (h *PlaybackHandle) Done() <-chan struct{} { return h.done }

func (h *PlaybackHandle) finish() { h.once.Do(func() { close(h.done) }) }

// Device is the audio I/O adapter contract. StopCapture without an active
// handle is a no-op returning an empty buffer; StopPlayback must interrupt
// an in-flight utterance immediately.
type Device interface {
	StartCapture(ctx context.Context) (*CaptureHandle, error)
	StopCapture(h *CaptureHandle) Buffer
	Play(ctx context.Context, buf Buffer) (*PlaybackHandle, error)
	StopPlayback(h *PlaybackHandle)
}

// exclusive is the defensive double-lock shared by device implementations:
// the microphone and speaker are exclusive OS resources, and concurrent
// open requests on some platforms fail or corrupt audio, so the adapter
// serializes them even across state-machine bugs.
type exclusive struct {
	mu        sync.Mutex
	capturing bool
	playing   bool
}

func (e *exclusive) beginCapture() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.playing || e.capturing {
		return ErrBusy
	}
	e.capturing = true
	return nil
}

func (e *exclusive) endCapture() {
	e.mu.Lock()
	e.capturing = false
	e.mu.Unlock()
}

func (e *exclusive) beginPlayback() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.capturing || e.playing {
		return ErrBusy
	}
	e.playing = true
	return nil
}

func (e *exclusive) endPlayback() {
	e.mu.Lock()
	e.playing = false
	e.mu.Unlock()
}
