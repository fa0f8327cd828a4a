package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tqmkrishnadev/nextrole/internal/audio"
	"github.com/tqmkrishnadev/nextrole/internal/config"
	"github.com/tqmkrishnadev/nextrole/internal/fallback"
	"github.com/tqmkrishnadev/nextrole/internal/feedback"
	"github.com/tqmkrishnadev/nextrole/internal/httpserver"
	"github.com/tqmkrishnadev/nextrole/internal/phone"
	"github.com/tqmkrishnadev/nextrole/internal/profile"
	"github.com/tqmkrishnadev/nextrole/internal/session"
	"github.com/tqmkrishnadev/nextrole/internal/stt"
	"github.com/tqmkrishnadev/nextrole/internal/transport"
	"github.com/tqmkrishnadev/nextrole/internal/tts"
)

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()

	deps := session.Deps{
		Script:        fallback.NewEngine(),
		BudgetSeconds: cfg.SessionBudgetSeconds,
		SilenceWindow: audio.CommitSilence,
	}

	if cfg.AgentWSURL != "" {
		deps.NewTransport = func() session.Transport {
			return transport.NewAgent(cfg.AgentWSURL, cfg.AgentKey)
		}
	}

	// Browser audio rides WebRTC; without ICE config the server still runs
	// interviews over typed answers and the phone entry.
	var rtcDevice *audio.WebRTCDevice
	if cfg.ICEServersJSON != "" {
		rtcDevice = audio.NewWebRTCDevice(cfg.ICEServersJSON)
		deps.Device = rtcDevice
	} else {
		deps.Device = audio.NewMemoryDevice()
	}

	switch {
	case cfg.ElevenLabsKey != "":
		deps.TTS = tts.NewElevenLabsClient(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID)
	case cfg.DeepgramKey != "":
		deps.TTS = tts.NewDeepgramClient(cfg.DeepgramKey, cfg.DeepgramTTSModel)
	}
	if cfg.DeepgramKey != "" {
		deps.STT = stt.NewDeepgramClient(cfg.DeepgramKey)
	}

	if cfg.FeedbackKey != "" {
		deps.Feedback = feedback.NewLLMGenerator(cfg.FeedbackKey, cfg.FeedbackModelID)
	} else {
		deps.Feedback = feedback.NewRuleBased()
	}

	var profiles httpserver.ProfileSource
	if cfg.SupabaseURL != "" && cfg.SupabaseKey != "" {
		store, err := profile.NewStore(profile.Config{
			URL:            cfg.SupabaseURL,
			ServiceRoleKey: cfg.SupabaseKey,
			Bucket:         cfg.SupabaseBucket,
		})
		if err != nil {
			log.Printf("supabase disabled: %v", err)
		} else {
			profiles = store
			deps.Archive = store
		}
	} else {
		log.Println("Warning: Supabase not configured - profiles and archiving disabled")
	}

	orch := session.New(deps)
	defer orch.Close()

	if rtcDevice != nil {
		rtcDevice.SetCaptureObserver(orch.ObserveCapture)
	}

	var offers httpserver.OfferHandler
	if rtcDevice != nil {
		offers = rtcDevice
	}
	srv := httpserver.New(orch, profiles, offers)

	if cfg.TwilioAuthToken != "" {
		srv.Echo().Use(phone.Auth(func() string { return cfg.TwilioAuthToken }))
		phone.NewHandlers(orch).Register(srv.Echo())
		log.Println("phone interview webhooks enabled")
	} else {
		log.Println("Warning: TWILIO_AUTH_TOKEN not set - phone interviews disabled")
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddress)
		serverErrors <- srv.Start(cfg.HTTPAddress)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
	if rtcDevice != nil {
		rtcDevice.Close()
	}
}
