package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// DefaultSessionBudgetSeconds is the interview time budget applied when
// SESSION_BUDGET_SECONDS is unset or invalid.
const DefaultSessionBudgetSeconds = 600

// Config holds application configuration.
type Config struct {
	HTTPAddress string

	// Remote interview agent. An empty AgentWSURL routes sessions to the
	// local fallback engine.
	AgentWSURL string
	AgentKey   string

	ElevenLabsKey     string
	ElevenLabsVoiceID string
	DeepgramKey       string
	DeepgramTTSModel  string

	FeedbackKey     string
	FeedbackModelID string

	SupabaseURL    string
	SupabaseKey    string
	SupabaseBucket string

	TwilioAccountSID string
	TwilioAuthToken  string

	ICEServersJSON string

	SessionBudgetSeconds int
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("Error loading .env file")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	agentURL := os.Getenv("AGENT_WS_URL")
	if agentURL == "" {
		log.Println("Warning: AGENT_WS_URL not set - live interviews disabled, sessions will run in fallback mode")
	}
	agentKey := os.Getenv("AGENT_API_KEY")
	if agentURL != "" && agentKey == "" {
		log.Println("Warning: AGENT_API_KEY not set - agent connection will be rejected")
	}

	elevenKey := os.Getenv("ELEVENLABS_API_KEY")
	voiceID := os.Getenv("ELEVENLABS_VOICE_ID")
	deepgramKey := os.Getenv("DEEPGRAM_API_KEY")
	if elevenKey == "" && deepgramKey == "" {
		log.Println("Warning: no TTS key set (ELEVENLABS_API_KEY / DEEPGRAM_API_KEY) - fallback questions will not be spoken")
	}
	deepgramModel := os.Getenv("DEEPGRAM_TTS_MODEL")

	feedbackKey := os.Getenv("FEEDBACK_API_KEY")
	feedbackModel := os.Getenv("FEEDBACK_MODEL_ID")
	if feedbackModel == "" {
		feedbackModel = "llama-4-maverick-17b-128e-instruct"
	}
	if feedbackKey == "" {
		log.Println("Warning: FEEDBACK_API_KEY not set - feedback will use the rule-based generator only")
	}

	iceJSON := os.Getenv("ICE_SERVERS_JSON")
	if iceJSON == "" {
		iceJSON = `[{"urls":["stun:stun.l.google.com:19302"]}]`
	}

	budget := DefaultSessionBudgetSeconds
	if v := os.Getenv("SESSION_BUDGET_SECONDS"); v != "" {
		if n, perr := strconv.Atoi(v); perr == nil && n > 0 {
			budget = n
		} else {
			log.Printf("Warning: invalid SESSION_BUDGET_SECONDS=%q - using default %d", v, DefaultSessionBudgetSeconds)
		}
	}

	log.Printf("config: HTTP_ADDRESS=%s", addr)
	return Config{
		HTTPAddress:          addr,
		AgentWSURL:           agentURL,
		AgentKey:             agentKey,
		ElevenLabsKey:        elevenKey,
		ElevenLabsVoiceID:    voiceID,
		DeepgramKey:          deepgramKey,
		DeepgramTTSModel:     deepgramModel,
		FeedbackKey:          feedbackKey,
		FeedbackModelID:      feedbackModel,
		SupabaseURL:          os.Getenv("SUPABASE_URL"),
		SupabaseKey:          os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseBucket:       os.Getenv("SUPABASE_BUCKET"),
		TwilioAccountSID:     os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:      os.Getenv("TWILIO_AUTH_TOKEN"),
		ICEServersJSON:       iceJSON,
		SessionBudgetSeconds: budget,
	}
}
