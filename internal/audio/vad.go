package audio

import (
	"encoding/binary"
	"math"
	"sync"
	"time"
)

// voiceRMS is the energy threshold above which a PCM frame counts as
// voiced. Tuned conservatively against headset noise floors.
const voiceRMS = 250.0

// CommitSilence is the trailing-silence window after which the fallback
// recognizer considers an answer finished.
const CommitSilence = 2 * time.Second

// RMS computes the root-mean-square energy of 16-bit little-endian PCM.
func RMS(pcm []byte) float64 {
	if len(pcm) < 2 {
		return 0
	}
	step := 2
	if len(pcm) > 3200 {
		step = 4
	}
	var sumSquares float64
	count := 0
	for i := 0; i+1 < len(pcm); i += 2 * step {
		v := int16(binary.LittleEndian.Uint16(pcm[i : i+2]))
		sumSquares += float64(v) * float64(v)
		count++
	}
	if count == 0 {
		return 0
	}
	return math.Sqrt(sumSquares / float64(count))
}

// SilenceWatcher tracks voice energy in a capture stream and fires once a
// trailing-silence window elapses. It drives the fallback engine's
// end-of-answer heuristic; live mode relies on the remote agent instead.
type SilenceWatcher struct {
	window time.Duration
	onIdle func()

	mu        sync.Mutex
	lastVoice time.Time
	timer     *time.Timer
	stopped   bool
}

// NewSilenceWatcher fires onIdle once no voiced audio was observed for the
// given window. A zero window uses CommitSilence.
func NewSilenceWatcher(window time.Duration, onIdle func()) *SilenceWatcher {
	if window <= 0 {
		window = CommitSilence
	}
	return &SilenceWatcher{window: window, onIdle: onIdle, lastVoice: time.Now()}
}

// Observe feeds a capture chunk. Voiced chunks push the idle deadline out;
// the first chunk arms the timer.
func (w *SilenceWatcher) Observe(pcm []byte) {
	voiced := RMS(pcm) >= voiceRMS
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if voiced {
		w.lastVoice = time.Now()
	}
	if w.timer == nil {
		w.timer = time.AfterFunc(w.window, w.check)
	}
}

// check re-arms for the remaining window if voice was seen recently,
// otherwise fires.
func (w *SilenceWatcher) check() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	since := time.Since(w.lastVoice)
	if since < w.window {
		w.timer.Reset(w.window - since)
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()
	if w.onIdle != nil {
		w.onIdle()
	}
}

// Stop cancels the watcher; Observe becomes a no-op.
func (w *SilenceWatcher) Stop() {
	w.mu.Lock()
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
}
