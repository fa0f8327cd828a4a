package audio

import (
	"sync"
	"time"

	"github.com/hraban/opus"
)

// FrameSink receives encoded Opus frames paced in real time. The WebRTC
// device adapts its outbound track to this; tests supply their own.
type FrameSink interface {
	WriteFrame(frame []byte, duration time.Duration) error
}

// PacedOpusPlayer encodes 48kHz PCM mono to Opus frames and delivers them
// to a sink paced at 20ms per frame, so the far end hears speech at speech
// rate regardless of how fast TTS produced it.
type PacedOpusPlayer struct {
	enc          *opus.Encoder
	sink         FrameSink
	pcmBuf       []int16
	frameSamples int
	frames       chan []byte
	stopCh       chan struct{}
	stopped      bool
	mu           sync.Mutex
}

// NewPacedOpusPlayer constructs a paced player with 20ms frames at 48kHz mono.
func NewPacedOpusPlayer(sink FrameSink) (*PacedOpusPlayer, error) {
	enc, err := opus.NewEncoder(48000, 1, opus.AppVoIP)
	if err != nil {
		return nil, err
	}
	p := &PacedOpusPlayer{
		enc:          enc,
		sink:         sink,
		frameSamples: 960, // 20ms at 48kHz
		frames:       make(chan []byte, 512),
		stopCh:       make(chan struct{}),
	}
	go p.pacer()
	return p, nil
}

// WritePCM buffers PCM 48kHz mono bytes and emits encoded frames.
func (p *PacedOpusPlayer) WritePCM(pcmBytes []byte) {
	if len(pcmBytes) < 2 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	need := len(pcmBytes) / 2
	startLen := len(p.pcmBuf)
	if cap(p.pcmBuf)-startLen < need {
		tmp := make([]int16, startLen, startLen+need+2048)
		copy(tmp, p.pcmBuf)
		p.pcmBuf = tmp
	}
	p.pcmBuf = p.pcmBuf[:startLen+need]
	for i := 0; i < need; i++ {
		p.pcmBuf[startLen+i] = int16(uint16(pcmBytes[2*i]) | uint16(pcmBytes[2*i+1])<<8)
	}

	opusBuf := make([]byte, 4000)
	for len(p.pcmBuf) >= p.frameSamples {
		frame := p.pcmBuf[:p.frameSamples]
		n, _ := p.enc.Encode(frame, opusBuf)
		if n > 0 {
			pkt := make([]byte, n)
			copy(pkt, opusBuf[:n])
			p.pushFrame(pkt)
		}
		copy(p.pcmBuf, p.pcmBuf[p.frameSamples:])
		p.pcmBuf = p.pcmBuf[:len(p.pcmBuf)-p.frameSamples]
	}
}

// FlushTail pads the remaining PCM to a full frame and appends a short
// silence tail to avoid clipping the last word.
func (p *PacedOpusPlayer) FlushTail() {
	p.mu.Lock()
	opusBuf := make([]byte, 4000)
	if len(p.pcmBuf) > 0 {
		pad := make([]int16, p.frameSamples)
		copy(pad, p.pcmBuf)
		n, _ := p.enc.Encode(pad, opusBuf)
		if n > 0 {
			pkt := make([]byte, n)
			copy(pkt, opusBuf[:n])
			p.pushFrame(pkt)
		}
		p.pcmBuf = p.pcmBuf[:0]
	}
	p.mu.Unlock()
	// ~200ms of silence (10 frames)
	silence := make([]int16, p.frameSamples)
	for i := 0; i < 10; i++ {
		n, _ := p.enc.Encode(silence, opusBuf)
		if n > 0 {
			pkt := make([]byte, n)
			copy(pkt, opusBuf[:n])
			p.pushFrame(pkt)
		}
	}
}

// Pending reports queued frames, used to estimate drain time.
func (p *PacedOpusPlayer) Pending() int { return len(p.frames) }

// Reset drops all queued frames immediately to support interruption.
func (p *PacedOpusPlayer) Reset() {
	p.mu.Lock()
	for {
		select {
		case <-p.frames:
		default:
			p.pcmBuf = p.pcmBuf[:0]
			p.mu.Unlock()
			return
		}
	}
}

// Close stops the pacer.
func (p *PacedOpusPlayer) Close() {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.stopCh)
	}
	p.mu.Unlock()
}

func (p *PacedOpusPlayer) pacer() {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			select {
			case frame := <-p.frames:
				_ = p.sink.WriteFrame(frame, 20*time.Millisecond)
			default:
			}
		}
	}
}

func (p *PacedOpusPlayer) pushFrame(pkt []byte) {
	for {
		select {
		case <-p.stopCh:
			return
		case p.frames <- pkt:
			return
		}
	}
}
