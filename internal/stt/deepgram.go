// Package stt transcribes finalized answer recordings. Engine is a
// pluggable backend so on-device recognition can replace the hosted call
// without touching the session code.
package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tqmkrishnadev/nextrole/internal/audio"
)

// Engine turns a finalized capture buffer into text.
type Engine interface {
	Transcribe(ctx context.Context, buf audio.Buffer) (string, error)
}

// DeepgramClient calls the Deepgram prerecorded listen endpoint.
type DeepgramClient struct {
	HTTPClient *http.Client
	APIKey     string
	Model      string
}

func NewDeepgramClient(apiKey string) *DeepgramClient {
	return &DeepgramClient{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		APIKey:     apiKey,
		Model:      "nova-2",
	}
}

type listenResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Transcribe posts the raw audio and returns the top alternative. An empty
// buffer transcribes to an empty string without a network call.
func (c *DeepgramClient) Transcribe(ctx context.Context, buf audio.Buffer) (string, error) {
	if c.APIKey == "" {
		return "", fmt.Errorf("deepgram stt: api key missing")
	}
	if buf.Empty() {
		return "", nil
	}

	u := url.URL{Scheme: "https", Host: "api.deepgram.com", Path: "/v1/listen"}
	q := u.Query()
	q.Set("model", c.Model)
	q.Set("smart_format", "true")
	codec, rate := splitFormat(buf.Format)
	if codec == "pcm_s16le" {
		q.Set("encoding", "linear16")
		q.Set("sample_rate", rate)
		q.Set("channels", "1")
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(buf.Bytes))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Token "+c.APIKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("deepgram stt: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("deepgram stt: status=%d body=%s", resp.StatusCode, string(b))
	}

	var lr listenResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return "", fmt.Errorf("deepgram stt: decode response: %w", err)
	}
	if len(lr.Results.Channels) == 0 || len(lr.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	return strings.TrimSpace(lr.Results.Channels[0].Alternatives[0].Transcript), nil
}

// splitFormat separates a "codec/sampleRate/channels" tag.
func splitFormat(format string) (codec, sampleRate string) {
	parts := strings.Split(format, "/")
	if len(parts) > 0 {
		codec = parts[0]
	}
	if len(parts) > 1 {
		sampleRate = parts[1]
	}
	return codec, sampleRate
}
