// Package httpserver exposes the interview orchestrator over HTTP: REST
// routes for session control, a WebSocket event stream, WebRTC signaling
// for browser audio, and the Prometheus scrape endpoint.
package httpserver

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tqmkrishnadev/nextrole/internal/audio"
	"github.com/tqmkrishnadev/nextrole/internal/session"
)

// ProfileSource prefills candidate profiles by email. Optional.
type ProfileSource interface {
	Fetch(ctx context.Context, email string) (session.Profile, error)
}

// OfferHandler answers WebRTC offers. *audio.WebRTCDevice satisfies it.
type OfferHandler interface {
	HandleOffer(ctx context.Context, offer audio.SessionDescription) (audio.SessionDescription, error)
}

// Server wires the orchestrator to Echo.
type Server struct {
	orch     *session.Orchestrator
	profiles ProfileSource
	rtc      OfferHandler
	hub      *eventHub
	echo     *echo.Echo
}

// New builds the server and registers all routes. profiles and rtc may be
// nil; their routes then report the feature as unavailable.
func New(orch *session.Orchestrator, profiles ProfileSource, rtc OfferHandler) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	s := &Server{
		orch:     orch,
		profiles: profiles,
		rtc:      rtc,
		hub:      newEventHub(orch.States(), orch.TurnEvents()),
		echo:     e,
	}

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.POST("/interviews", s.startInterview)
	e.GET("/interviews/current", s.currentInterview)
	e.POST("/interviews/current/answer/begin", s.beginAnswer)
	e.POST("/interviews/current/answer/end", s.endAnswer)
	e.POST("/interviews/current/answer/text", s.answerText)
	e.POST("/interviews/current/finish", s.finishInterview)
	e.POST("/interviews/current/reset", s.resetInterview)
	e.GET("/interviews/current/feedback", s.currentFeedback)
	e.GET("/interviews/current/events", s.events)

	e.POST("/rtc/offer", s.rtcOffer)

	return s
}

// Echo returns the underlying router, for serving and for tests.
func (s *Server) Echo() *echo.Echo { return s.echo }

// Start serves on the given address until the listener fails.
func (s *Server) Start(address string) error { return s.echo.Start(address) }

// Shutdown drains in-flight requests and closes the event hub.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.close()
	return s.echo.Shutdown(ctx)
}

type startRequest struct {
	Name       string   `json:"name"`
	Email      string   `json:"email"`
	Experience string   `json:"experience"`
	Skills     []string `json:"skills"`
	Role       string   `json:"role"`
	Category   string   `json:"category"`
	// Mode "fallback" skips the remote agent entirely.
	Mode string `json:"mode"`
}

// startInterview starts a live session, falling back to the local engine
// when no agent is configured.
func (s *Server) startInterview(c echo.Context) error {
	var req startRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	p := session.Profile{
		Name:       req.Name,
		Email:      req.Email,
		Experience: req.Experience,
		Skills:     req.Skills,
		Role:       req.Role,
		Category:   req.Category,
	}
	if s.profiles != nil && req.Email != "" && req.Name == "" {
		stored, err := s.profiles.Fetch(c.Request().Context(), req.Email)
		if err != nil {
			log.Printf("httpserver: profile lookup for %s failed: %v", req.Email, err)
		} else {
			if p.Category == "" {
				p.Category = stored.Category
			}
			stored.Category = p.Category
			p = stored
		}
	}

	var err error
	if req.Mode == string(session.ModeFallback) {
		err = s.orch.StartFallback(p)
	} else {
		err = s.orch.Start(c.Request().Context(), p)
		if errors.Is(err, session.ErrConfiguration) {
			log.Println("httpserver: no agent configured, starting fallback interview")
			err = s.orch.StartFallback(p)
		}
	}
	switch {
	case errors.Is(err, session.ErrSessionActive):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, s.orch.Snapshot())
}

type interviewView struct {
	session.Snapshot
	Turns []session.Turn `json:"turns"`
}

func (s *Server) currentInterview(c echo.Context) error {
	return c.JSON(http.StatusOK, interviewView{
		Snapshot: s.orch.Snapshot(),
		Turns:    s.orch.Transcript(),
	})
}

func (s *Server) beginAnswer(c echo.Context) error {
	return s.control(c, s.orch.BeginAnswer(c.Request().Context()))
}

func (s *Server) endAnswer(c echo.Context) error {
	return s.control(c, s.orch.EndAnswer())
}

type answerTextRequest struct {
	Text string `json:"text"`
}

func (s *Server) answerText(c echo.Context) error {
	var req answerTextRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	return s.control(c, s.orch.SubmitAnswerText(req.Text))
}

func (s *Server) finishInterview(c echo.Context) error {
	return s.control(c, s.orch.Finish())
}

func (s *Server) resetInterview(c echo.Context) error {
	return s.control(c, s.orch.Reset())
}

// control maps orchestrator errors to HTTP statuses and otherwise answers
// with the fresh snapshot.
func (s *Server) control(c echo.Context, err error) error {
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, s.orch.Snapshot())
	case errors.Is(err, session.ErrInvalidState):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, session.ErrPermission):
		return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
	case errors.Is(err, session.ErrClosed):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
}

func (s *Server) currentFeedback(c echo.Context) error {
	fb, ok := s.orch.LastFeedback()
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "feedback not available yet"})
	}
	return c.JSON(http.StatusOK, fb)
}

func (s *Server) rtcOffer(c echo.Context) error {
	if s.rtc == nil {
		return c.JSON(http.StatusNotImplemented, echo.Map{"error": "browser audio not configured"})
	}
	var offer audio.SessionDescription
	if err := c.Bind(&offer); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid offer"})
	}
	answer, err := s.rtc.HandleOffer(c.Request().Context(), offer)
	if err != nil {
		log.Printf("httpserver: webrtc offer failed: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "webrtc negotiation failed"})
	}
	return c.JSON(http.StatusOK, answer)
}
