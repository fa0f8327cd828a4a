// Package protocol defines the wire messages exchanged with the remote
// interview agent and their JSON codec. Every frame is a JSON object tagged
// by a "type" field; audio payloads travel base64-encoded alongside a codec
// string so the receiver can pick a decoder.
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Kind tags a wire message.
type Kind string

const (
	KindUserProfile     Kind = "user_profile"
	KindAudioChunk      Kind = "audio_chunk"
	KindAgentText       Kind = "agent_text_response"
	KindAgentAudioStart Kind = "agent_audio_start"
	KindAgentAudioEnd   Kind = "agent_audio_end"
	KindUserTranscript  Kind = "user_transcript"
	KindInterruption    Kind = "interruption"
	KindEndConversation Kind = "end_conversation"
	KindPing            Kind = "ping"
	KindPong            Kind = "pong"
	KindInitiation      Kind = "initiation_metadata"
	KindUnknown         Kind = "unknown"
)

// Message is the closed union of wire messages. New kinds are added by
// extending the union; anything unrecognized decodes to Unknown.
type Message interface {
	Kind() Kind
}

// UserProfile introduces the candidate to the agent right after connect.
type UserProfile struct {
	Name       string   `json:"name"`
	Email      string   `json:"email,omitempty"`
	Experience string   `json:"experience,omitempty"`
	Skills     []string `json:"skills,omitempty"`
	Role       string   `json:"role,omitempty"`
	Category   string   `json:"category"`
}

func (UserProfile) Kind() Kind { return KindUserProfile }

// AudioChunk carries encoded audio in either direction.
type AudioChunk struct {
	Bytes  []byte
	Format string
}

func (AudioChunk) Kind() Kind { return KindAudioChunk }

// AgentText is the agent's next question or follow-up as text.
type AgentText struct {
	Text string
}

func (AgentText) Kind() Kind { return KindAgentText }

// AgentAudioStart marks the beginning of an agent utterance's audio stream.
type AgentAudioStart struct{}

func (AgentAudioStart) Kind() Kind { return KindAgentAudioStart }

// AgentAudioEnd marks the end of an agent utterance's audio stream.
type AgentAudioEnd struct{}

func (AgentAudioEnd) Kind() Kind { return KindAgentAudioEnd }

// UserTranscript is the agent-side transcription of the user's answer.
type UserTranscript struct {
	Text string
}

func (UserTranscript) Kind() Kind { return KindUserTranscript }

// Interruption tells the client to halt agent playback immediately.
type Interruption struct{}

func (Interruption) Kind() Kind { return KindInterruption }

// EndConversation closes the interview from either side.
type EndConversation struct{}

func (EndConversation) Kind() Kind { return KindEndConversation }

// Ping and Pong keep the transport alive.
type Ping struct{}

func (Ping) Kind() Kind { return KindPing }

type Pong struct{}

func (Pong) Kind() Kind { return KindPong }

// Initiation delivers the agent-assigned session id once the remote session
// is established.
type Initiation struct {
	SessionID string
}

func (Initiation) Kind() Kind { return KindInitiation }

// Unknown preserves frames this client does not understand. The agent's
// protocol evolves ahead of deployed clients; unknown frames are logged and
// skipped, never fatal.
type Unknown struct {
	Type string
	Raw  json.RawMessage
}

func (Unknown) Kind() Kind { return KindUnknown }

// envelope is the single wire shape; unused fields are omitted per kind.
type envelope struct {
	Type      string       `json:"type"`
	Profile   *UserProfile `json:"profile,omitempty"`
	Audio     string       `json:"audio,omitempty"`
	Format    string       `json:"format,omitempty"`
	Text      string       `json:"text,omitempty"`
	SessionID string       `json:"session_id,omitempty"`
}

// Encode serializes a Message for the wire.
func Encode(m Message) ([]byte, error) {
	env := envelope{Type: string(m.Kind())}
	switch v := m.(type) {
	case UserProfile:
		p := v
		env.Profile = &p
	case *UserProfile:
		env.Profile = v
	case AudioChunk:
		env.Audio = base64.StdEncoding.EncodeToString(v.Bytes)
		env.Format = v.Format
	case AgentText:
		env.Text = v.Text
	case UserTranscript:
		env.Text = v.Text
	case Initiation:
		env.SessionID = v.SessionID
	case AgentAudioStart, AgentAudioEnd, Interruption, EndConversation, Ping, Pong:
		// type tag only
	case Unknown:
		return nil, fmt.Errorf("protocol: refusing to encode unknown message")
	default:
		return nil, fmt.Errorf("protocol: unsupported message %T", m)
	}
	return json.Marshal(env)
}

// Decode parses an inbound frame. It never fails fatally: malformed JSON,
// a missing type tag, or an unrecognized kind all yield Unknown so the
// receive loop can log and move on.
func Decode(data []byte) Message {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Unknown{Raw: append(json.RawMessage(nil), data...)}
	}
	switch Kind(env.Type) {
	case KindUserProfile:
		if env.Profile != nil {
			return *env.Profile
		}
		return UserProfile{}
	case KindAudioChunk:
		b, err := base64.StdEncoding.DecodeString(env.Audio)
		if err != nil {
			return Unknown{Type: env.Type, Raw: append(json.RawMessage(nil), data...)}
		}
		return AudioChunk{Bytes: b, Format: env.Format}
	case KindAgentText:
		return AgentText{Text: env.Text}
	case KindAgentAudioStart:
		return AgentAudioStart{}
	case KindAgentAudioEnd:
		return AgentAudioEnd{}
	case KindUserTranscript:
		return UserTranscript{Text: env.Text}
	case KindInterruption:
		return Interruption{}
	case KindEndConversation:
		return EndConversation{}
	case KindPing:
		return Ping{}
	case KindPong:
		return Pong{}
	case KindInitiation:
		return Initiation{SessionID: env.SessionID}
	default:
		return Unknown{Type: env.Type, Raw: append(json.RawMessage(nil), data...)}
	}
}
