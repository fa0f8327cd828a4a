package session

import (
	"log"

	"github.com/tqmkrishnadev/nextrole/internal/audio"
	"github.com/tqmkrishnadev/nextrole/internal/metrics"
	"github.com/tqmkrishnadev/nextrole/internal/protocol"
	"github.com/tqmkrishnadev/nextrole/internal/transport"
)

func (o *Orchestrator) handleTransportEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.EventDisconnected:
		metrics.TransportErrors.WithLabelValues("disconnected").Inc()
		o.failSession(ReasonTransport, "agent connection lost")
	case transport.EventDead:
		metrics.TransportErrors.WithLabelValues("keepalive").Inc()
		o.failSession(ReasonTransport, "agent stopped responding")
	case transport.EventMessage:
		o.handleAgentMessage(ev.Msg)
	}
}

func (o *Orchestrator) handleAgentMessage(m protocol.Message) {
	switch msg := m.(type) {
	case protocol.Initiation:
		if msg.SessionID != "" {
			log.Printf("session: agent assigned id %s", msg.SessionID)
			o.sessionID = msg.SessionID
		}
	case protocol.AgentText:
		o.pendingAgentText = msg.Text
		o.lastPrompt = msg.Text
		o.enterAgentSpeaking()
	case protocol.AgentAudioStart:
		o.pendingAudio = o.pendingAudio[:0]
		o.pendingFormat = ""
		o.enterAgentSpeaking()
	case protocol.AudioChunk:
		o.pendingAudio = append(o.pendingAudio, msg.Bytes...)
		o.pendingFormat = msg.Format
	case protocol.AgentAudioEnd:
		o.finishAgentUtterance()
	case protocol.UserTranscript:
		if o.liveTranscript != "" {
			o.liveTranscript += " "
		}
		o.liveTranscript += msg.Text
	case protocol.Interruption:
		o.interrupt()
	case protocol.EndConversation:
		o.finish("agent_ended")
	}
}

func (o *Orchestrator) enterAgentSpeaking() {
	switch o.state {
	case StateReady, StateProcessing, StateGeneratingFollowUp:
		o.setState(StateAgentSpeaking)
	}
}

// finishAgentUtterance plays the buffered utterance audio; the transcript
// turn is appended when playback completes, so an interruption leaves no
// trace of the half-spoken prompt.
func (o *Orchestrator) finishAgentUtterance() {
	text := o.pendingAgentText
	buf := audio.Buffer{
		Bytes:  append([]byte(nil), o.pendingAudio...),
		Format: o.pendingFormat,
	}
	o.pendingAgentText = ""
	o.pendingAudio = o.pendingAudio[:0]
	o.pendingFormat = ""
	if o.state != StateAgentSpeaking {
		return
	}
	kind := o.nextAgentTurnKind()
	if o.deps.Device == nil || buf.Empty() {
		o.utteranceDone(text, kind)
		return
	}
	o.playUtterance(o.gen, buf, text, kind)
}

// interrupt handles the agent's barge-in signal: playback halts now, the
// pending utterance is discarded without a turn, and the floor goes to the
// candidate.
func (o *Orchestrator) interrupt() {
	if o.playback != nil && o.deps.Device != nil {
		o.deps.Device.StopPlayback(o.playback)
		o.playback = nil
	}
	o.pendingAgentText = ""
	o.pendingAudio = o.pendingAudio[:0]
	o.pendingFormat = ""
	if o.state == StateAgentSpeaking {
		o.setState(StateWaitingForUser)
	}
}
