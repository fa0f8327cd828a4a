package phone

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/twilio/twilio-go/twiml"

	"github.com/tqmkrishnadev/nextrole/internal/session"
)

// promptWait bounds how long a webhook handler waits for the orchestrator
// to produce the next question before giving up on the call.
const promptWait = 8 * time.Second

// Handlers drive a fallback interview through Twilio voice webhooks.
type Handlers struct {
	Orch *session.Orchestrator
}

func NewHandlers(orch *session.Orchestrator) Handlers {
	return Handlers{Orch: orch}
}

// Register mounts the webhook routes. The caller is expected to wrap the
// router with Auth.
func (h Handlers) Register(e *echo.Echo) {
	e.POST("/phone/voice", h.voice)
	e.POST("/phone/answer", h.answer)
	e.POST("/phone/status", h.status)
}

// voice is the inbound-call webhook: it starts a fallback session for the
// caller and asks the first question.
func (h Handlers) voice(c echo.Context) error {
	params, ok := c.Get("twilioParams").(map[string]string)
	if !ok {
		return c.String(http.StatusInternalServerError, "failed to get Twilio parameters")
	}
	from := params["From"]
	c.Echo().Logger.Infof("Inbound interview call from %s", from)

	err := h.Orch.StartFallback(session.Profile{Name: from, Category: "behavioral"})
	if errors.Is(err, session.ErrSessionActive) {
		return h.say(c, "An interview is already in progress. Please call back later. Goodbye!", true)
	}
	if err != nil {
		c.Echo().Logger.Errorf("Failed to start phone interview: %v", err)
		return h.say(c, "We could not start your interview. Please try again later. Goodbye!", true)
	}

	question, done := h.awaitPrompt(c.Request().Context())
	if done || question == "" {
		return h.say(c, "We could not prepare your interview. Goodbye!", true)
	}
	intro := "Welcome to your mock interview. Answer each question after the tone of my voice ends. Let's begin. " + question
	return h.ask(c, intro)
}

// answer consumes the speech-recognized answer and asks the next question
// or wraps up.
func (h Handlers) answer(c echo.Context) error {
	params, ok := c.Get("twilioParams").(map[string]string)
	if !ok {
		return c.String(http.StatusInternalServerError, "failed to get Twilio parameters")
	}
	speech := params["SpeechResult"]
	if speech == "" {
		c.Echo().Logger.Info("Empty speech result, recording an empty answer")
	}

	if err := h.Orch.SubmitAnswerText(speech); err != nil {
		if errors.Is(err, session.ErrInvalidState) {
			return h.say(c, "Your interview is no longer active. Goodbye!", true)
		}
		c.Echo().Logger.Errorf("Failed to record phone answer: %v", err)
		return h.say(c, "Something went wrong recording your answer. Goodbye!", true)
	}

	question, done := h.awaitPrompt(c.Request().Context())
	if done {
		return h.say(c, "That completes your interview. Your feedback report is being prepared. Thank you and goodbye!", true)
	}
	if question == "" {
		return h.say(c, "We lost track of your interview. Goodbye!", true)
	}
	return h.ask(c, question)
}

// status is the call status callback: a hung-up call finishes the session
// so feedback still gets generated.
func (h Handlers) status(c echo.Context) error {
	params, ok := c.Get("twilioParams").(map[string]string)
	if !ok {
		return c.String(http.StatusInternalServerError, "failed to get Twilio parameters")
	}
	callStatus := params["CallStatus"]
	if callStatus == "completed" || callStatus == "failed" || callStatus == "no-answer" {
		c.Echo().Logger.Infof("Call ended with status %s, finishing session", callStatus)
		if err := h.Orch.Finish(); err != nil {
			c.Echo().Logger.Errorf("Failed to finish session after call end: %v", err)
		}
	}
	return c.String(http.StatusOK, "OK")
}

// awaitPrompt waits for the orchestrator to reach the next question. done
// reports that the interview ended instead.
func (h Handlers) awaitPrompt(ctx context.Context) (question string, done bool) {
	deadline := time.Now().Add(promptWait)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return "", false
		default:
		}
		snap := h.Orch.Snapshot()
		switch snap.State {
		case session.StateWaitingForUser:
			return snap.LastPrompt, false
		case session.StateEnded:
			return "", true
		case session.StateError, session.StateIdle:
			return "", false
		}
		time.Sleep(50 * time.Millisecond)
	}
	return "", false
}

// ask speaks the question and gathers a spoken answer.
func (h Handlers) ask(c echo.Context, question string) error {
	say := &twiml.VoiceSay{Message: question}
	gather := &twiml.VoiceGather{
		Action:        "/phone/answer",
		Method:        "POST",
		Input:         "speech",
		SpeechTimeout: "auto",
		Timeout:       "10",
	}
	redirect := &twiml.VoiceRedirect{Url: "/phone/answer", Method: "POST"}
	response, err := twiml.Voice([]twiml.Element{say, gather, redirect})
	if err != nil {
		return c.String(http.StatusInternalServerError, "failed to build TwiML")
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/xml")
	return c.String(http.StatusOK, response)
}

// say speaks a closing message, optionally hanging up.
func (h Handlers) say(c echo.Context, message string, hangup bool) error {
	elements := []twiml.Element{&twiml.VoiceSay{Message: message}}
	if hangup {
		elements = append(elements, &twiml.VoiceHangup{})
	}
	response, err := twiml.Voice(elements)
	if err != nil {
		return c.String(http.StatusInternalServerError, "failed to build TwiML")
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/xml")
	return c.String(http.StatusOK, response)
}
