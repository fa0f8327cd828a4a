package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tqmkrishnadev/nextrole/internal/audio"
	"github.com/tqmkrishnadev/nextrole/internal/feedback"
	"github.com/tqmkrishnadev/nextrole/internal/metrics"
	"github.com/tqmkrishnadev/nextrole/internal/protocol"
	"github.com/tqmkrishnadev/nextrole/internal/transport"
)

type command struct {
	fn    func() error
	reply chan error
}

// asyncEvent carries a result from a background goroutine back into the
// run loop. Events whose gen no longer matches are dropped: they belong to
// a session that was finished or reset in the meantime.
type asyncEvent struct {
	gen int
	fn  func()
}

// Orchestrator runs at most one interview session at a time.
type Orchestrator struct {
	deps Deps

	cmds    chan command
	asyncCh chan asyncEvent
	quit    chan struct{}
	done    chan struct{}
	closeFn sync.Once

	stateCh chan Snapshot
	turnCh  chan Turn

	remainingMirror atomic.Int64

	watcherMu sync.Mutex
	watcher   *audio.SilenceWatcher

	// Everything below is owned by the run goroutine.
	gen         int
	state       State
	mode        Mode
	sessionID   string
	category    string
	profile     Profile
	turns       []Turn
	agentTurns  int
	startedAt   time.Time
	remaining   int
	timerOn     bool
	activeGauge bool

	tr          Transport
	transportEv <-chan transport.Event

	capture     *audio.CaptureHandle
	playback    *audio.PlaybackHandle
	answerStart time.Time
	manualText  string

	pendingAgentText string
	pendingAudio     []byte
	pendingFormat    string
	liveTranscript   string

	lastPrompt string
	errReason  string
	endReason  string
	fb         *feedback.Feedback
}

// New creates an orchestrator and starts its run loop.
func New(deps Deps) *Orchestrator {
	o := &Orchestrator{
		deps:    deps,
		cmds:    make(chan command),
		asyncCh: make(chan asyncEvent, 64),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		stateCh: make(chan Snapshot, 64),
		turnCh:  make(chan Turn, 64),
		state:   StateIdle,
	}
	go o.run()
	return o
}

func (o *Orchestrator) run() {
	defer close(o.done)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-o.quit:
			return
		case c := <-o.cmds:
			c.reply <- c.fn()
		case ev := <-o.asyncCh:
			if ev.gen == o.gen {
				ev.fn()
			}
		case ev, ok := <-o.transportEv:
			if !ok {
				o.transportEv = nil
				continue
			}
			o.handleTransportEvent(ev)
		case <-ticker.C:
			o.tick()
		}
	}
}

// do runs fn on the run loop and waits for its result.
func (o *Orchestrator) do(fn func() error) error {
	reply := make(chan error, 1)
	select {
	case o.cmds <- command{fn: fn, reply: reply}:
		return <-reply
	case <-o.quit:
		return ErrClosed
	}
}

// post delivers an async result to the run loop, tagged with the session
// generation it belongs to.
func (o *Orchestrator) post(gen int, fn func()) {
	select {
	case o.asyncCh <- asyncEvent{gen: gen, fn: fn}:
	case <-o.quit:
	}
}

// States streams a snapshot per state transition. Single consumer; a slow
// consumer loses snapshots, not turns.
func (o *Orchestrator) States() <-chan Snapshot { return o.stateCh }

// TurnEvents streams transcript turns as they are appended.
func (o *Orchestrator) TurnEvents() <-chan Turn { return o.turnCh }

// Remaining reports the seconds left on the session budget.
func (o *Orchestrator) Remaining() int { return int(o.remainingMirror.Load()) }

// Snapshot returns the current session view.
func (o *Orchestrator) Snapshot() Snapshot {
	var s Snapshot
	_ = o.do(func() error {
		s = o.snapshotLocked()
		return nil
	})
	return s
}

// Transcript returns a copy of the turns so far.
func (o *Orchestrator) Transcript() []Turn {
	var out []Turn
	_ = o.do(func() error {
		out = append(out, o.turns...)
		return nil
	})
	return out
}

// LastFeedback returns the review of the most recently finished session,
// if it has been generated yet.
func (o *Orchestrator) LastFeedback() (feedback.Feedback, bool) {
	var fb feedback.Feedback
	var ok bool
	_ = o.do(func() error {
		if o.fb != nil {
			fb, ok = *o.fb, true
		}
		return nil
	})
	return fb, ok
}

// Start begins a live session against the remote agent. It returns
// ErrConfiguration immediately when no agent is configured so the caller
// can fall back; dial failures surface later through the state stream.
func (o *Orchestrator) Start(ctx context.Context, p Profile) error {
	return o.do(func() error {
		if !o.canStart() {
			return ErrSessionActive
		}
		o.beginSession(ModeLive, p)
		if o.deps.NewTransport == nil {
			o.failSession(ReasonConfiguration, "no agent endpoint configured")
			return ErrConfiguration
		}
		tr := o.deps.NewTransport()
		if tr == nil {
			o.failSession(ReasonConfiguration, "no agent endpoint configured")
			return ErrConfiguration
		}
		o.tr = tr
		o.setState(StateConnecting)
		gen := o.gen
		go func() {
			dctx, cancel := context.WithTimeout(context.Background(), transport.ConnectTimeout)
			defer cancel()
			err := tr.Connect(dctx)
			o.post(gen, func() { o.connectFinished(err) })
		}()
		return nil
	})
}

// StartFallback begins a locally scripted session.
func (o *Orchestrator) StartFallback(p Profile) error {
	return o.do(func() error {
		if !o.canStart() {
			return ErrSessionActive
		}
		if o.deps.Script == nil {
			return fmt.Errorf("%w: no fallback script", ErrConfiguration)
		}
		o.beginSession(ModeFallback, p)
		first, err := o.deps.Script.Begin(o.category)
		if err != nil {
			o.failSession(ReasonConfiguration, err.Error())
			return fmt.Errorf("session: starting fallback script: %w", err)
		}
		o.startTimer()
		o.activeGauge = true
		metrics.SessionsActive.Inc()
		metrics.SessionsTotal.WithLabelValues(string(ModeFallback)).Inc()
		metrics.FallbackActivations.Inc()
		log.Printf("session %s: fallback interview started, category=%s", o.sessionID, o.category)
		o.setState(StateReady)
		o.speak(first, TurnAgentQuestion, 0)
		return nil
	})
}

// Finish ends the current session and kicks off feedback generation. Safe
// to call more than once.
func (o *Orchestrator) Finish() error {
	return o.do(func() error {
		o.finish("user_finished")
		return nil
	})
}

// Reset abandons the current session, transcript included, and returns to
// idle. Idempotent.
func (o *Orchestrator) Reset() error {
	return o.do(func() error {
		o.teardown()
		o.gen++
		o.mode = ""
		o.sessionID = ""
		o.category = ""
		o.profile = Profile{}
		o.turns = nil
		o.agentTurns = 0
		o.startedAt = time.Time{}
		o.remaining = 0
		o.remainingMirror.Store(0)
		o.manualText = ""
		o.pendingAgentText = ""
		o.pendingAudio = nil
		o.pendingFormat = ""
		o.liveTranscript = ""
		o.lastPrompt = ""
		o.errReason = ""
		o.endReason = ""
		o.fb = nil
		o.setState(StateIdle)
		return nil
	})
}

// Close resets and stops the run loop. The orchestrator cannot be reused.
func (o *Orchestrator) Close() error {
	err := o.Reset()
	o.closeFn.Do(func() { close(o.quit) })
	<-o.done
	return err
}

// ObserveCapture feeds microphone chunks to the trailing-silence watcher.
// Safe to call from any goroutine; a no-op outside an answer.
func (o *Orchestrator) ObserveCapture(pcm []byte) {
	o.watcherMu.Lock()
	w := o.watcher
	o.watcherMu.Unlock()
	if w != nil {
		w.Observe(pcm)
	}
}

func (o *Orchestrator) canStart() bool {
	return o.state == StateIdle || o.state == StateEnded || o.state == StateError
}

func (o *Orchestrator) beginSession(mode Mode, p Profile) {
	o.gen++
	o.mode = mode
	o.sessionID = uuid.NewString()
	o.profile = p
	o.category = normalizeCategory(p.Category)
	o.turns = nil
	o.agentTurns = 0
	o.startedAt = time.Now()
	o.remaining = o.deps.budget()
	o.remainingMirror.Store(int64(o.remaining))
	o.timerOn = false
	o.manualText = ""
	o.pendingAgentText = ""
	o.pendingAudio = nil
	o.pendingFormat = ""
	o.liveTranscript = ""
	o.lastPrompt = ""
	o.errReason = ""
	o.endReason = ""
	o.fb = nil
}

func normalizeCategory(c string) string {
	switch c {
	case "behavioral", "technical", "leadership":
		return c
	}
	return "behavioral"
}

func (o *Orchestrator) connectFinished(err error) {
	if err != nil {
		metrics.TransportErrors.WithLabelValues("connect").Inc()
		_ = o.tr.Close()
		o.tr = nil
		log.Printf("session %s: agent connect failed: %v", o.sessionID, err)
		o.failSession(ReasonTransport, err.Error())
		return
	}
	o.transportEv = o.tr.Events()
	if serr := o.tr.Send(o.profile.toProtocol()); serr != nil {
		log.Printf("session %s: sending profile: %v", o.sessionID, serr)
	}
	o.startTimer()
	o.activeGauge = true
	metrics.SessionsActive.Inc()
	metrics.SessionsTotal.WithLabelValues(string(ModeLive)).Inc()
	log.Printf("session %s: live interview started", o.sessionID)
	o.setState(StateReady)
}

func (o *Orchestrator) startTimer() {
	o.timerOn = true
}

func (o *Orchestrator) tick() {
	if !o.timerOn {
		return
	}
	o.remaining--
	o.remainingMirror.Store(int64(o.remaining))
	if o.remaining <= 0 {
		log.Printf("session %s: time budget exhausted", o.sessionID)
		o.finish("time_exhausted")
	}
}

// teardown releases every session resource: answer capture, playback,
// silence watcher, transport. Used by finish, failSession and Reset.
func (o *Orchestrator) teardown() {
	o.stopWatcher()
	if o.capture != nil && o.deps.Device != nil {
		_ = o.deps.Device.StopCapture(o.capture)
	}
	o.capture = nil
	if o.playback != nil && o.deps.Device != nil {
		o.deps.Device.StopPlayback(o.playback)
	}
	o.playback = nil
	o.timerOn = false
	if o.tr != nil {
		_ = o.tr.Close()
		o.tr = nil
	}
	o.transportEv = nil
	if o.activeGauge {
		metrics.SessionsActive.Dec()
		metrics.SessionDuration.Observe(time.Since(o.startedAt).Seconds())
		o.activeGauge = false
	}
}

// finish moves the session to ended, telling the agent first when one is
// connected, then generates feedback in the background.
func (o *Orchestrator) finish(reason string) {
	if o.state == StateEnded || o.state == StateIdle {
		return
	}
	if o.tr != nil {
		_ = o.tr.Send(protocol.EndConversation{})
	}
	o.teardown()
	o.gen++ // orphan in-flight synthesis, playback and transcription
	o.endReason = reason
	log.Printf("session %s: finished (%s), %d turns", o.sessionID, reason, len(o.turns))
	o.setState(StateEnded)
	o.generateFeedback()
}

// failSession is the terminal error path: resources released, reason
// recorded, state set to error. The transcript survives for inspection.
func (o *Orchestrator) failSession(reason, detail string) {
	o.teardown()
	o.gen++
	o.errReason = reason
	if detail != "" {
		log.Printf("session %s: failed with %s: %s", o.sessionID, reason, detail)
	}
	o.setState(StateError)
}

func (o *Orchestrator) setState(s State) {
	if o.state == s {
		return
	}
	o.state = s
	snap := o.snapshotLocked()
	select {
	case o.stateCh <- snap:
	default:
		log.Println("session: state stream full, dropping snapshot")
	}
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	return Snapshot{
		SessionID:        o.sessionID,
		Mode:             o.mode,
		State:            o.state,
		Category:         o.category,
		StartedAt:        o.startedAt,
		RemainingSeconds: o.remaining,
		LastPrompt:       o.lastPrompt,
		ErrReason:        o.errReason,
		EndReason:        o.endReason,
		TurnCount:        len(o.turns),
	}
}

func (o *Orchestrator) appendTurn(kind TurnKind, text string, duration float64) {
	t := Turn{
		ID:              uuid.NewString(),
		Kind:            kind,
		Text:            text,
		Timestamp:       time.Now(),
		DurationSeconds: duration,
	}
	o.turns = append(o.turns, t)
	if kind != TurnUserResponse {
		o.agentTurns++
	}
	metrics.TurnsTotal.WithLabelValues(string(kind)).Inc()
	select {
	case o.turnCh <- t:
	default:
		log.Println("session: turn stream full, dropping turn event")
	}
}

// nextAgentTurnKind classifies live agent utterances: the first one opens
// the interview, everything after is treated as a follow-up or next
// question indistinguishably.
func (o *Orchestrator) nextAgentTurnKind() TurnKind {
	if o.agentTurns == 0 {
		return TurnAgentQuestion
	}
	return TurnAgentFollowUp
}

// generateFeedback runs after finish. The rule-based generator handles
// even an empty session, so this always produces a review.
func (o *Orchestrator) generateFeedback() {
	if o.deps.Feedback == nil {
		return
	}
	gen := o.gen
	sid := o.sessionID
	responses := buildResponses(o.turns)
	turnsCopy := append([]Turn(nil), o.turns...)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
		defer cancel()
		fb, err := o.deps.Feedback.Generate(ctx, responses)
		if err != nil {
			log.Printf("session %s: feedback generation failed: %v", sid, err)
			return
		}
		o.post(gen, func() {
			o.fb = &fb
		})
		if o.deps.Archive != nil {
			if aerr := o.deps.Archive.Archive(ctx, sid, turnsCopy, fb); aerr != nil {
				log.Printf("session %s: archive failed: %v", sid, aerr)
			}
		}
	}()
}

// buildResponses pairs each user turn with the agent prompt preceding it.
func buildResponses(turns []Turn) []feedback.Response {
	var out []feedback.Response
	var lastAgent *Turn
	for i := range turns {
		t := turns[i]
		if t.Kind != TurnUserResponse {
			lastAgent = &turns[i]
			continue
		}
		r := feedback.Response{
			QuestionID:      t.ID,
			ResponseText:    t.Text,
			DurationSeconds: t.DurationSeconds,
			Timestamp:       t.Timestamp,
		}
		if lastAgent != nil {
			r.QuestionID = lastAgent.ID
			r.QuestionText = lastAgent.Text
		}
		out = append(out, r)
	}
	return out
}
