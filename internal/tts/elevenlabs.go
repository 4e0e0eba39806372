package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pavelanni/interviewer/internal/upstream"
)

const (
	defaultElevenLabsURL   = "https://api.elevenlabs.io"
	defaultElevenLabsModel = "eleven_turbo_v2_5"
	maxAudioBytes          = 20 << 20
)

// voiceIDs maps the OpenAI-style voice names the client uses to ElevenLabs
// voices.
var voiceIDs = map[string]string{
	"alloy":   "9BWtsMINqrJLrRacOk9x", // Aria
	"echo":    "CwhRBWXzGAHq8TQ4Fs17", // Roger
	"fable":   "EXAVITQu4vr4xnSDxMaL", // Sarah
	"onyx":    "JBFqnCBsd6RMkjVDRZzb", // George
	"nova":    "9BWtsMINqrJLrRacOk9x", // Aria
	"shimmer": "XB0fDUnXU5powFXDhCwa", // Charlotte
}

// VoiceID returns the ElevenLabs voice for name, falling back to the
// default voice.
func VoiceID(name string) string {
	if id, ok := voiceIDs[strings.ToLower(name)]; ok {
		return id
	}
	return voiceIDs[DefaultVoice]
}

// ElevenLabs synthesizes speech with the ElevenLabs REST API.
type ElevenLabs struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewElevenLabs creates an ElevenLabs synthesizer. Empty baseURL and model
// select the public endpoint and eleven_turbo_v2_5.
func NewElevenLabs(baseURL, apiKey, model string, timeout time.Duration) *ElevenLabs {
	if baseURL == "" {
		baseURL = defaultElevenLabsURL
	}
	if model == "" {
		model = defaultElevenLabsModel
	}
	return &ElevenLabs{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

func (e *ElevenLabs) Name() string { return "elevenlabs" }

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type elevenLabsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// Synthesize returns MP3 audio for text.
func (e *ElevenLabs) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if e.apiKey == "" {
		return nil, upstream.ErrNotConfigured
	}

	body, err := json.Marshal(elevenLabsRequest{
		Text:    text,
		ModelID: e.model,
		VoiceSettings: voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode tts request: %w", err)
	}

	url := e.baseURL + "/v1/text-to-speech/" + VoiceID(voice)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build tts request: %w", err)
	}
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, upstream.FromStatus("tts", resp.StatusCode, string(msg))
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, fmt.Errorf("read tts audio: %w", err)
	}
	return audio, nil
}
