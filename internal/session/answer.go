package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/tqmkrishnadev/nextrole/internal/audio"
	"github.com/tqmkrishnadev/nextrole/internal/metrics"
	"github.com/tqmkrishnadev/nextrole/internal/protocol"
)

// BeginAnswer opens the microphone for the candidate's answer. Only valid
// while the session is waiting for a response.
func (o *Orchestrator) BeginAnswer(ctx context.Context) error {
	return o.do(func() error {
		if o.state != StateWaitingForUser {
			return fmt.Errorf("%w: begin answer in %s", ErrInvalidState, o.state)
		}
		o.manualText = ""
		o.liveTranscript = ""
		if o.deps.Device == nil {
			// typed answers only
			o.capture = nil
			o.answerStart = time.Now()
			o.setState(StateUserSpeaking)
			return nil
		}
		h, err := o.deps.Device.StartCapture(ctx)
		if err != nil {
			if errors.Is(err, audio.ErrDeviceUnavailable) && o.mode == ModeFallback {
				// no microphone is survivable offline: the candidate types
				log.Printf("session %s: no input device, switching to typed answers", o.sessionID)
				o.capture = nil
				o.answerStart = time.Now()
				o.setState(StateUserSpeaking)
				return nil
			}
			o.failSession(ReasonPermission, err.Error())
			return fmt.Errorf("%w: %v", ErrPermission, err)
		}
		o.capture = h
		o.answerStart = time.Now()
		o.startWatcher()
		o.setState(StateUserSpeaking)
		return nil
	})
}

// EndAnswer closes the microphone and commits the answer.
func (o *Orchestrator) EndAnswer() error {
	return o.do(func() error {
		if o.state != StateUserSpeaking {
			return fmt.Errorf("%w: end answer in %s", ErrInvalidState, o.state)
		}
		o.endAnswerLocked()
		return nil
	})
}

// SubmitAnswerText is the typed-answer path. During an open answer it
// overrides whatever recognition would produce; while waiting it commits a
// whole answer in one step.
func (o *Orchestrator) SubmitAnswerText(text string) error {
	return o.do(func() error {
		switch o.state {
		case StateUserSpeaking:
			o.manualText = strings.TrimSpace(text)
			return nil
		case StateWaitingForUser:
			o.manualText = strings.TrimSpace(text)
			o.liveTranscript = ""
			o.answerStart = time.Now()
			o.setState(StateUserSpeaking)
			o.endAnswerLocked()
			return nil
		default:
			return fmt.Errorf("%w: submit answer in %s", ErrInvalidState, o.state)
		}
	})
}

// endAnswerLocked finalizes the capture. The recording goes to the agent
// before the state leaves userSpeaking: the protocol forbids outbound
// audio in any other state.
func (o *Orchestrator) endAnswerLocked() {
	o.stopWatcher()
	var buf audio.Buffer
	if o.capture != nil && o.deps.Device != nil {
		buf = o.deps.Device.StopCapture(o.capture)
		o.capture = nil
	}
	duration := time.Since(o.answerStart).Seconds()
	if o.mode == ModeLive && o.tr != nil && !buf.Empty() {
		if err := o.tr.Send(protocol.AudioChunk{Bytes: buf.Bytes, Format: buf.Format}); err != nil {
			log.Printf("session %s: sending answer audio: %v", o.sessionID, err)
		}
	}
	o.setState(StateProcessing)
	o.finalizeAnswer(buf, duration)
}

// finalizeAnswer resolves the answer text. Preference order: typed text,
// the agent's streamed transcript, local recognition, empty. An empty
// answer is still a turn; skipping it would break transcript alternation.
func (o *Orchestrator) finalizeAnswer(buf audio.Buffer, duration float64) {
	manual := o.manualText
	o.manualText = ""
	liveText := strings.TrimSpace(o.liveTranscript)
	o.liveTranscript = ""

	if manual != "" {
		o.commitAnswer(manual, duration)
		return
	}
	if o.mode == ModeLive && liveText != "" {
		o.commitAnswer(liveText, duration)
		return
	}
	if o.deps.STT == nil || buf.Empty() {
		o.commitAnswer(liveText, duration)
		return
	}
	gen := o.gen
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		text, err := o.deps.STT.Transcribe(ctx, buf)
		o.post(gen, func() {
			if err != nil {
				// recognition failure downgrades to an empty answer rather
				// than killing the session
				log.Printf("session %s: %s: %v", o.sessionID, ReasonRecognition, err)
				text = ""
			}
			o.commitAnswer(text, duration)
		})
	}()
}

// commitAnswer appends the user turn and hands the floor back: to the
// remote agent in live mode, to the script in fallback mode.
func (o *Orchestrator) commitAnswer(text string, duration float64) {
	if o.state != StateProcessing {
		return
	}
	o.appendTurn(TurnUserResponse, text, duration)
	metrics.ResponseDuration.Observe(duration)
	o.setState(StateGeneratingFollowUp)
	if o.mode == ModeLive {
		// the next prompt arrives over the transport
		return
	}
	next, followUp, ok := o.deps.Script.Next(text)
	if !ok {
		o.finish("script_complete")
		return
	}
	kind := TurnAgentQuestion
	if followUp {
		kind = TurnAgentFollowUp
	}
	o.speak(next, kind, o.deps.thinkingDelay())
}

// startWatcher arms the trailing-silence auto-commit for fallback answers;
// live mode leaves endpointing to the remote agent.
func (o *Orchestrator) startWatcher() {
	if o.mode != ModeFallback || o.deps.SilenceWindow == 0 {
		return
	}
	gen := o.gen
	w := audio.NewSilenceWatcher(o.deps.SilenceWindow, func() {
		o.post(gen, func() {
			if o.state == StateUserSpeaking {
				log.Printf("session %s: trailing silence, committing answer", o.sessionID)
				o.endAnswerLocked()
			}
		})
	})
	o.watcherMu.Lock()
	o.watcher = w
	o.watcherMu.Unlock()
}

func (o *Orchestrator) stopWatcher() {
	o.watcherMu.Lock()
	w := o.watcher
	o.watcher = nil
	o.watcherMu.Unlock()
	if w != nil {
		w.Stop()
	}
}
