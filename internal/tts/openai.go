package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/interviewer/internal/upstream"
)

var openAIVoices = map[string]openai.SpeechVoice{
	"alloy":   openai.VoiceAlloy,
	"echo":    openai.VoiceEcho,
	"fable":   openai.VoiceFable,
	"onyx":    openai.VoiceOnyx,
	"nova":    openai.VoiceNova,
	"shimmer": openai.VoiceShimmer,
}

// OpenAISpeech synthesizes speech with an OpenAI-compatible /audio/speech
// endpoint. Voice names are passed through.
type OpenAISpeech struct {
	api     *openai.Client
	model   openai.SpeechModel
	key     string
	timeout time.Duration
}

// NewOpenAISpeech creates a synthesizer. An empty model selects tts-1; a
// zero timeout leaves calls bounded only by their context.
func NewOpenAISpeech(baseURL, apiKey, model string, timeout time.Duration) *OpenAISpeech {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if model == "" {
		model = string(openai.TTSModel1)
	}
	return &OpenAISpeech{
		api:     openai.NewClientWithConfig(config),
		model:   openai.SpeechModel(model),
		key:     apiKey,
		timeout: timeout,
	}
}

func (o *OpenAISpeech) Name() string { return "openai" }

// Synthesize returns MP3 audio for text.
func (o *OpenAISpeech) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if o.key == "" {
		return nil, upstream.ErrNotConfigured
	}
	v, ok := openAIVoices[strings.ToLower(voice)]
	if !ok {
		v = openai.VoiceNova
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	resp, err := o.api.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          o.model,
		Input:          text,
		Voice:          v,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
			return nil, upstream.FromStatus("tts", apiErr.HTTPStatusCode, apiErr.Message)
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
			return nil, upstream.FromStatus("tts", reqErr.HTTPStatusCode, string(reqErr.Body))
		}
		return nil, fmt.Errorf("tts request: %w", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(io.LimitReader(resp, maxAudioBytes))
	if err != nil {
		return nil, fmt.Errorf("read tts audio: %w", err)
	}
	return audio, nil
}
