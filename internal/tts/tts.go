// Package tts synthesizes interviewer speech through a hosted
// text-to-speech service.
package tts

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/pavelanni/interviewer/internal/metrics"
)

// ChunkSize is the block size used when base64-encoding audio.
const ChunkSize = 0x8000

// DefaultVoice is used when the request names no voice or an unknown one.
const DefaultVoice = "nova"

// ErrEmptyText means there is nothing to synthesize.
var ErrEmptyText = errors.New("text is required")

// Synthesizer turns text into MP3 audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
	Name() string
}

// Cache stores synthesized audio between requests.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Result is the speech payload returned to clients.
type Result struct {
	AudioContent string `json:"audioContent"`
	Format       string `json:"format"`
}

// Service synthesizes speech, optionally through a cache.
type Service struct {
	synth Synthesizer
	cache Cache
	ttl   time.Duration
}

// NewService creates a Service. cache may be nil.
func NewService(synth Synthesizer, cache Cache, ttl time.Duration) *Service {
	return &Service{synth: synth, cache: cache, ttl: ttl}
}

// Speak synthesizes text with the named voice and returns base64 MP3.
// Cache failures are logged and otherwise ignored.
func (s *Service) Speak(ctx context.Context, text, voice string) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if voice == "" {
		voice = DefaultVoice
	}

	key := cacheKey(s.synth.Name(), voice, text)
	if s.cache != nil {
		audio, ok, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			metrics.TTSCache.WithLabelValues("error").Inc()
			slog.Warn("tts cache get failed", "error", err)
		case ok:
			metrics.TTSCache.WithLabelValues("hit").Inc()
			return &Result{AudioContent: EncodeChunked(audio, ChunkSize), Format: "mp3"}, nil
		default:
			metrics.TTSCache.WithLabelValues("miss").Inc()
		}
	}

	start := time.Now()
	audio, err := s.synth.Synthesize(ctx, text, voice)
	metrics.ObserveUpstream("tts", start, err)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, audio, s.ttl); err != nil {
			slog.Warn("tts cache set failed", "error", err)
		}
	}
	return &Result{AudioContent: EncodeChunked(audio, ChunkSize), Format: "mp3"}, nil
}

// EncodeChunked base64-encodes data by feeding it to the encoder in blocks
// of chunk bytes. The encoder carries partial groups across blocks, so the
// output equals a one-shot encoding for any chunk size.
func EncodeChunked(data []byte, chunk int) string {
	if chunk <= 0 {
		chunk = ChunkSize
	}
	var sb strings.Builder
	sb.Grow(base64.StdEncoding.EncodedLen(len(data)))
	enc := base64.NewEncoder(base64.StdEncoding, &sb)
	for i := 0; i < len(data); i += chunk {
		end := min(i+chunk, len(data))
		// strings.Builder never fails a write.
		_, _ = enc.Write(data[i:end])
	}
	_ = enc.Close()
	return sb.String()
}

func cacheKey(provider, voice, text string) string {
	sum := sha256.Sum256([]byte(provider + "|" + voice + "|" + text))
	return hex.EncodeToString(sum[:])
}
