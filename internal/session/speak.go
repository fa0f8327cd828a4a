package session

import (
	"context"
	"log"
	"time"

	"github.com/tqmkrishnadev/nextrole/internal/audio"
	"github.com/tqmkrishnadev/nextrole/internal/tts"
)

// speak runs the fallback interviewer's utterance pipeline: an optional
// thinking pause, synthesis, playback, then the transcript turn. Every
// stage re-enters the run loop gen-tagged, so a reset or finish mid-pipe
// silently abandons the utterance.
func (o *Orchestrator) speak(text string, kind TurnKind, delay time.Duration) {
	o.lastPrompt = text
	gen := o.gen
	go func() {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-o.quit:
				return
			}
		}
		o.post(gen, func() { o.beginUtterance(gen, text, kind) })
	}()
}

func (o *Orchestrator) beginUtterance(gen int, text string, kind TurnKind) {
	switch o.state {
	case StateReady, StateGeneratingFollowUp:
		o.setState(StateAgentSpeaking)
	default:
		return
	}
	if o.deps.TTS == nil || o.deps.Device == nil {
		// text-only interview
		o.utteranceDone(text, kind)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		pcm, err := tts.Collect(ctx, o.deps.TTS, text)
		o.post(gen, func() {
			if err != nil || len(pcm) == 0 {
				if err != nil {
					log.Printf("session %s: synthesis failed, continuing as text: %v", o.sessionID, err)
				}
				o.utteranceDone(text, kind)
				return
			}
			o.playUtterance(gen, audio.Buffer{Bytes: pcm, Format: audio.FormatPCM48k}, text, kind)
		})
	}()
}

// playUtterance starts playback and defers the turn until the speaker is
// done. Shared by the live path, which plays agent-provided audio.
func (o *Orchestrator) playUtterance(gen int, buf audio.Buffer, text string, kind TurnKind) {
	if o.state != StateAgentSpeaking {
		return
	}
	h, err := o.deps.Device.Play(context.Background(), buf)
	if err != nil {
		log.Printf("session %s: playback failed, continuing as text: %v", o.sessionID, err)
		o.utteranceDone(text, kind)
		return
	}
	o.playback = h
	go func() {
		<-h.Done()
		o.post(gen, func() {
			if o.playback == h {
				o.playback = nil
			}
			o.utteranceDone(text, kind)
		})
	}()
}

// utteranceDone appends the agent turn and opens the floor. A session that
// was interrupted or torn down mid-utterance is left untouched.
func (o *Orchestrator) utteranceDone(text string, kind TurnKind) {
	if o.state != StateAgentSpeaking {
		return
	}
	o.appendTurn(kind, text, 0)
	o.setState(StateWaitingForUser)
}
