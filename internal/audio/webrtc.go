package audio

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/hraban/opus"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
)

// SessionDescription is a small DTO to avoid exposing webrtc types to the
// HTTP layer.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// trackSink adapts a WebRTC sample track to the paced player's sink.
type trackSink struct {
	track *webrtc.TrackLocalStaticSample
}

func (s trackSink) WriteFrame(frame []byte, duration time.Duration) error {
	return s.track.WriteSample(media.Sample{Data: frame, Duration: duration})
}

// WebRTCDevice implements Device over a browser peer connection: the remote
// audio track is the microphone, the outbound track is the speaker. One
// peer at a time; a new offer replaces the previous peer.
type WebRTCDevice struct {
	guard    exclusive
	iceJSON  string
	observer func(pcm []byte)

	mu      sync.Mutex
	pc      *webrtc.PeerConnection
	paced   *PacedOpusPlayer
	capture *CaptureHandle
	micUp   bool
}

// NewWebRTCDevice creates a device configured with the given ICE servers
// JSON, e.g. `[{"urls":["stun:stun.l.google.com:19302"]}]`.
func NewWebRTCDevice(iceServersJSON string) *WebRTCDevice {
	return &WebRTCDevice{iceJSON: iceServersJSON}
}

// SetCaptureObserver registers a tap on raw 16kHz capture chunks. The
// fallback recognizer's silence watcher hangs off this.
func (d *WebRTCDevice) SetCaptureObserver(fn func(pcm []byte)) {
	d.mu.Lock()
	d.observer = fn
	d.mu.Unlock()
}

// HandleOffer accepts an SDP offer from the browser and returns an answer.
// Media handlers are attached before answering so the first mic packets are
// not lost.
func (d *WebRTCDevice) HandleOffer(ctx context.Context, offer SessionDescription) (SessionDescription, error) {
	if offer.Type != "offer" || offer.SDP == "" {
		return SessionDescription{}, errors.New("invalid offer")
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return SessionDescription{}, err
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, ir); err != nil {
		return SessionDescription{}, err
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithInterceptorRegistry(ir))

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: parseICEServers(d.iceJSON)})
	if err != nil {
		return SessionDescription{}, err
	}
	outTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 1},
		"interviewer-audio", "interviewer",
	)
	if err != nil {
		_ = pc.Close()
		return SessionDescription{}, err
	}
	if _, err := pc.AddTrack(outTrack); err != nil {
		_ = pc.Close()
		return SessionDescription{}, err
	}

	paced, err := NewPacedOpusPlayer(trackSink{track: outTrack})
	if err != nil {
		_ = pc.Close()
		return SessionDescription{}, err
	}

	d.swapPeer(pc, paced)

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Printf("audio: peer connection state: %s", state.String())
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			d.mu.Lock()
			if d.pc == pc {
				d.micUp = false
			}
			d.mu.Unlock()
			paced.Close()
		}
	})
	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if remote.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		log.Printf("audio: remote mic track received: codec=%s", remote.Codec().MimeType)
		d.mu.Lock()
		d.micUp = true
		d.mu.Unlock()
		go d.pumpMic(remote)
	})

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}); err != nil {
		_ = pc.Close()
		return SessionDescription{}, err
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		_ = pc.Close()
		return SessionDescription{}, err
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		_ = pc.Close()
		return SessionDescription{}, err
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		_ = pc.Close()
		return SessionDescription{}, ctx.Err()
	}
	local := pc.LocalDescription()
	if local == nil {
		_ = pc.Close()
		return SessionDescription{}, errors.New("no local description")
	}
	return SessionDescription{Type: "answer", SDP: local.SDP}, nil
}

func (d *WebRTCDevice) swapPeer(pc *webrtc.PeerConnection, paced *PacedOpusPlayer) {
	d.mu.Lock()
	old, oldPaced := d.pc, d.paced
	d.pc, d.paced = pc, paced
	d.micUp = false
	d.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	if oldPaced != nil {
		oldPaced.Close()
	}
}

// pumpMic decodes remote opus to 16kHz PCM and feeds the active capture in
// 100ms chunks.
func (d *WebRTCDevice) pumpMic(remote *webrtc.TrackRemote) {
	dec, err := opus.NewDecoder(16000, 1)
	if err != nil {
		log.Printf("audio: opus decoder error: %v", err)
		return
	}
	const chunkBytes = 3200 // 100ms of 16kHz PCM16
	pcmBuf := make([]byte, 0, chunkBytes*4)
	samples := make([]int16, 1920)
	for {
		pkt, _, readErr := remote.ReadRTP()
		if readErr != nil {
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		n, decErr := dec.Decode(pkt.Payload, samples)
		if decErr != nil {
			continue
		}
		startLen := len(pcmBuf)
		need := n * 2
		if cap(pcmBuf)-len(pcmBuf) < need {
			tmp := make([]byte, len(pcmBuf), len(pcmBuf)+need+chunkBytes)
			copy(tmp, pcmBuf)
			pcmBuf = tmp
		}
		pcmBuf = pcmBuf[:len(pcmBuf)+need]
		o := pcmBuf[startLen:]
		for i := 0; i < n; i++ {
			binary.LittleEndian.PutUint16(o[i*2:(i+1)*2], uint16(samples[i]))
		}
		for len(pcmBuf) >= chunkBytes {
			chunk := make([]byte, chunkBytes)
			copy(chunk, pcmBuf[:chunkBytes])
			d.deliverChunk(chunk)
			copy(pcmBuf, pcmBuf[chunkBytes:])
			pcmBuf = pcmBuf[:len(pcmBuf)-chunkBytes]
		}
	}
}

func (d *WebRTCDevice) deliverChunk(chunk []byte) {
	d.mu.Lock()
	h := d.capture
	observer := d.observer
	d.mu.Unlock()
	if h != nil {
		h.append(chunk)
	}
	if observer != nil {
		observer(chunk)
	}
}

// StartCapture begins buffering decoded microphone audio.
func (d *WebRTCDevice) StartCapture(ctx context.Context) (*CaptureHandle, error) {
	d.mu.Lock()
	micUp := d.micUp
	d.mu.Unlock()
	if !micUp {
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

// StopCapture finalizes the buffered microphone audio.
func (d *WebRTCDevice) StopCapture(h *CaptureHandle) Buffer {
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

// Play renders a PCM or Opus buffer to the browser speaker through the
// paced track. Completion is reported on the handle once the pacer drains.
func (d *WebRTCDevice) Play(ctx context.Context, buf Buffer) (*PlaybackHandle, error) {
	d.mu.Lock()
	paced := d.paced
	d.mu.Unlock()
	if paced == nil {
		return nil, ErrDeviceUnavailable
	}
	if err := d.guard.beginPlayback(); err != nil {
		return nil, err
	}

	pcm := buf.Bytes
	if buf.Format == FormatOpus {
		decoded, err := decodeOpus48k(buf.Bytes)
		if err != nil {
			d.guard.endPlayback()
			return nil, err
		}
		pcm = decoded
	}

	stopCh := make(chan struct{})
	var stopOnce sync.Once
	h := newPlaybackHandle(func() {
		stopOnce.Do(func() { close(stopCh) })
		paced.Reset()
	})
	go func() {
		defer h.finish()
		defer d.guard.endPlayback()
		paced.WritePCM(pcm)
		paced.FlushTail()
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ctx.Done():
				paced.Reset()
				return
			case <-ticker.C:
				if paced.Pending() == 0 {
					return
				}
			}
		}
	}()
	return h, nil
}

// StopPlayback drops queued frames and ends the playback immediately.
func (d *WebRTCDevice) StopPlayback(h *PlaybackHandle) {
	if h == nil {
		return
	}
	if h.stop != nil {
		h.stop()
	}
	<-h.done
}

// Close releases the peer connection.
func (d *WebRTCDevice) Close() {
	d.mu.Lock()
	pc, paced := d.pc, d.paced
	d.pc, d.paced = nil, nil
	d.micUp = false
	d.mu.Unlock()
	if pc != nil {
		_ = pc.Close()
	}
	if paced != nil {
		paced.Close()
	}
}

// decodeOpus48k decodes a sequence of length-prefixed opus frames to 48kHz
// PCM16LE mono. The agent frames chunks as uint16 length + payload.
func decodeOpus48k(data []byte) ([]byte, error) {
	dec, err := opus.NewDecoder(48000, 1)
	if err != nil {
		return nil, err
	}
	samples := make([]int16, 5760)
	var out []byte
	for off := 0; off+2 <= len(data); {
		n := int(binary.LittleEndian.Uint16(data[off : off+2]))
		off += 2
		if n == 0 || off+n > len(data) {
			break
		}
		dn, derr := dec.Decode(data[off:off+n], samples)
		off += n
		if derr != nil {
			continue
		}
		frame := make([]byte, dn*2)
		for i := 0; i < dn; i++ {
			binary.LittleEndian.PutUint16(frame[i*2:(i+1)*2], uint16(samples[i]))
		}
		out = append(out, frame...)
	}
	return out, nil
}

func parseICEServers(iceJSON string) []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	if err := json.Unmarshal([]byte(iceJSON), &servers); err == nil && len(servers) > 0 {
		return servers
	}
	return []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
}
