// Package session implements the interview turn-taking state machine. A
// single orchestrator goroutine owns all session state; the public methods
// post commands into it and every asynchronous result (dial, synthesis,
// playback, transcription) comes back as a generation-tagged event so work
// from an abandoned session can never touch the current one.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/tqmkrishnadev/nextrole/internal/audio"
	"github.com/tqmkrishnadev/nextrole/internal/feedback"
	"github.com/tqmkrishnadev/nextrole/internal/protocol"
	"github.com/tqmkrishnadev/nextrole/internal/stt"
	"github.com/tqmkrishnadev/nextrole/internal/transport"
	"github.com/tqmkrishnadev/nextrole/internal/tts"
)

// State is the session's position in the turn-taking cycle.
type State string

const (
	StateIdle               State = "idle"
	StateConnecting         State = "connecting"
	StateReady              State = "ready"
	StateAgentSpeaking      State = "agentSpeaking"
	StateWaitingForUser     State = "waitingForUserResponse"
	StateUserSpeaking       State = "userSpeaking"
	StateProcessing         State = "processingResponse"
	StateGeneratingFollowUp State = "generatingFollowUp"
	StateEnded              State = "ended"
	StateError              State = "error"
)

// Mode says who is running the interview.
type Mode string

const (
	ModeLive     Mode = "live"
	ModeFallback Mode = "fallback"
)

// Error reasons surfaced in snapshots when the session lands in StateError.
const (
	ReasonConfiguration = "configurationError"
	ReasonPermission    = "permissionError"
	ReasonTransport     = "transportError"
	ReasonRecognition   = "recognitionError"
)

var (
	// ErrConfiguration means no remote agent is configured; callers route
	// to the fallback engine.
	ErrConfiguration = errors.New("session: remote agent not configured")
	// ErrPermission means microphone access was refused or no device exists.
	ErrPermission = errors.New("session: microphone unavailable")
	// ErrTransport means the agent connection failed or dropped.
	ErrTransport = errors.New("session: agent transport failed")
	// ErrSessionActive rejects Start while another session is running.
	ErrSessionActive = errors.New("session: a session is already active")
	// ErrInvalidState rejects an operation the current state does not allow.
	ErrInvalidState = errors.New("session: operation not valid in current state")
	// ErrClosed is returned after the orchestrator shut down.
	ErrClosed = errors.New("session: orchestrator closed")
)

// DefaultBudgetSeconds caps a session at ten minutes.
const DefaultBudgetSeconds = 600

// DefaultThinkingDelay is the pause the fallback interviewer takes before
// responding, so the voice does not answer unnaturally fast.
const DefaultThinkingDelay = 1500 * time.Millisecond

// TurnKind classifies transcript entries.
type TurnKind string

const (
	TurnAgentQuestion = TurnKind("agentQuestion")
	TurnUserResponse  = TurnKind("userResponse")
	TurnAgentFollowUp = TurnKind("agentFollowUp")
)

// Turn is one transcript entry. Turns are append-only and never mutated
// after being emitted.
type Turn struct {
	ID              string    `json:"id"`
	Kind            TurnKind  `json:"kind"`
	Text            string    `json:"text"`
	Timestamp       time.Time `json:"timestamp"`
	DurationSeconds float64   `json:"duration_seconds,omitempty"`
}

// Profile describes the candidate; it is sent to the remote agent right
// after the connection is up and seeds the fallback question draw.
type Profile struct {
	Name       string   `json:"name"`
	Email      string   `json:"email,omitempty"`
	Experience string   `json:"experience,omitempty"`
	Skills     []string `json:"skills,omitempty"`
	Role       string   `json:"role,omitempty"`
	Category   string   `json:"category"`
}

func (p Profile) toProtocol() protocol.UserProfile {
	return protocol.UserProfile{
		Name:       p.Name,
		Email:      p.Email,
		Experience: p.Experience,
		Skills:     p.Skills,
		Role:       p.Role,
		Category:   p.Category,
	}
}

// Snapshot is an immutable view of the session, emitted on every state
// transition.
type Snapshot struct {
	SessionID        string    `json:"session_id"`
	Mode             Mode      `json:"mode"`
	State            State     `json:"state"`
	Category         string    `json:"category"`
	StartedAt        time.Time `json:"started_at,omitempty"`
	RemainingSeconds int       `json:"remaining_seconds"`
	LastPrompt       string    `json:"last_prompt,omitempty"`
	ErrReason        string    `json:"err_reason,omitempty"`
	EndReason        string    `json:"end_reason,omitempty"`
	TurnCount        int       `json:"turn_count"`
}

// Transport is the slice of the agent client the session needs.
// *transport.Agent satisfies it.
type Transport interface {
	Connect(ctx context.Context) error
	Send(m protocol.Message) error
	Events() <-chan transport.Event
	Close() error
}

// QuestionScript drives a fallback interview. Begin draws a fresh question
// set; Next consumes the latest answer and returns the next prompt, with
// followUp marking a probe into the same question and ok false once the
// script is exhausted.
type QuestionScript interface {
	Begin(category string) (string, error)
	Next(lastResponse string) (text string, followUp bool, ok bool)
}

// Archiver persists a finished session. Failures are logged, never fatal.
type Archiver interface {
	Archive(ctx context.Context, sessionID string, turns []Turn, fb feedback.Feedback) error
}

// Deps wires the orchestrator. NewTransport returning nil (or being nil)
// means no remote agent is configured; nil Device, TTS, STT, Feedback and
// Archive each degrade the matching feature instead of failing Start.
type Deps struct {
	NewTransport func() Transport
	Device       audio.Device
	STT          stt.Engine
	TTS          tts.Speaker
	Script       QuestionScript
	Feedback     feedback.Generator
	Archive      Archiver

	BudgetSeconds int
	ThinkingDelay time.Duration
	SilenceWindow time.Duration
}

func (d Deps) budget() int {
	if d.BudgetSeconds > 0 {
		return d.BudgetSeconds
	}
	return DefaultBudgetSeconds
}

func (d Deps) thinkingDelay() time.Duration {
	if d.ThinkingDelay > 0 {
		return d.ThinkingDelay
	}
	return DefaultThinkingDelay
}
