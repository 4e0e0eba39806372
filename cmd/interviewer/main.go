package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/interviewer/internal/cache"
	"github.com/pavelanni/interviewer/internal/handler"
	appI18n "github.com/pavelanni/interviewer/internal/i18n"
	"github.com/pavelanni/interviewer/internal/llm"
	"github.com/pavelanni/interviewer/internal/llm/prompts"
	"github.com/pavelanni/interviewer/internal/model"
	"github.com/pavelanni/interviewer/internal/questions"
	"github.com/pavelanni/interviewer/internal/store"
	"github.com/pavelanni/interviewer/internal/tts"
	"github.com/pavelanni/interviewer/internal/voice"
)

const (
	llmKeyEnv = "INTERVIEWER_LLM_KEY"
	ttsKeyEnv = "INTERVIEWER_TTS_KEY"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "load .env:", err)
	}
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "interviewer",
		Short: "Interview practice backend with AI grading and voice",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "interviewer.db", "SQLite database path")
	f.StringSliceP("questions", "q", nil, "Extra question bank YAML files (repeatable)")
	f.IntP("num-questions", "n", 8, "Questions per interview")
	f.String("llm-url", "https://api.openai.com/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "", "API key for the LLM (or set "+llmKeyEnv+")")
	f.String("llm-model", "gpt-4o-mini", "Chat model used for grading and question generation")
	f.String("stt-model", "whisper-1", "Transcription model")
	f.String("tts-provider", "elevenlabs", "Speech provider (elevenlabs, openai)")
	f.String("tts-url", "", "Speech API base URL (empty for the provider default)")
	f.String("tts-key", "", "API key for the speech provider (or set "+ttsKeyEnv+")")
	f.String("tts-model", "", "Speech model (empty for the provider default)")
	f.String("default-voice", tts.DefaultVoice, "Voice used when a request names none")
	f.String("redis-addr", "", "Redis address for the speech cache (empty disables caching)")
	f.String("redis-password", "", "Redis password")
	f.Int("redis-db", 0, "Redis database number")
	f.Duration("tts-cache-ttl", 24*time.Hour, "How long synthesized audio stays cached")
	f.Duration("upstream-timeout", 60*time.Second, "Timeout for each upstream AI request")
	f.Int64("max-audio-bytes", 10<<20, "Maximum size of one recorded answer")
	f.Duration("recording-ttl", 10*time.Minute, "Idle recordings are discarded after this")
	f.Int("max-recordings", 50, "Maximum recordings held in memory at once")
	f.StringSlice("cors-origins", []string{"*"}, "Allowed CORS origins")
	f.StringP("lang", "l", "en", "Default language for messages (en, ru)")
	f.String("admin-password", "", "Password for the admin export endpoint (or set INTERVIEWER_ADMIN_PASSWORD)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export saved interview sessions as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "interviewer.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("INTERVIEWER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("interviewer")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/interviewer")
	v.AddConfigPath("/etc/interviewer")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	bank, err := loadQuestions(v.GetStringSlice("questions"))
	if err != nil {
		return fmt.Errorf("load questions: %w", err)
	}

	promptSet, err := prompts.Default()
	if err != nil {
		return fmt.Errorf("load prompts: %w", err)
	}

	timeout := v.GetDuration("upstream-timeout")
	llmClient := llm.New(llm.Config{
		BaseURL:            v.GetString("llm-url"),
		APIKey:             v.GetString("llm-key"),
		Model:              v.GetString("llm-model"),
		TranscriptionModel: v.GetString("stt-model"),
		Timeout:            timeout,
	}, promptSet)
	if !llmClient.Configured() {
		slog.Warn("LLM key not set, grading and transcription will fail", "env", llmKeyEnv)
	}

	speaker, closeCache, err := newSpeaker(ctx, v)
	if err != nil {
		return err
	}
	defer closeCache()

	maxAudio := v.GetInt64("max-audio-bytes")
	recorder := voice.NewManager(llmClient, voice.Config{
		MaxBytes:  maxAudio,
		MaxActive: v.GetInt("max-recordings"),
		Timeout:   timeout,
		TTL:       v.GetDuration("recording-ttl"),
	})
	defer recorder.Close()
	go recorder.Run(ctx)
	go cleanupAuthSessions(ctx, db)

	adminHash, err := hashAdminPassword(v.GetString("admin-password"))
	if err != nil {
		return err
	}

	h := handler.New(handler.Deps{
		Store:       db,
		Bank:        bank,
		Grader:      llmClient,
		Speaker:     speaker,
		Transcriber: llmClient,
		Recorder:    recorder,
		AdminHash:   adminHash,
		Config: model.ServerConfig{
			NumQuestions:  v.GetInt("num-questions"),
			CORSOrigins:   v.GetStringSlice("cors-origins"),
			LLMKeyName:    llmKeyEnv,
			TTSKeyName:    ttsKeyEnv,
			DefaultVoice:  v.GetString("default-voice"),
			MaxAudioBytes: maxAudio,
		},
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware())
	h.Routes(r)

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", addr,
			"llm_url", v.GetString("llm-url"),
			"model", v.GetString("llm-model"),
			"tts_provider", v.GetString("tts-provider"),
			"lang", lang,
			"num_questions", v.GetInt("num-questions"),
			"roles", len(bank.Roles),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

// loadQuestions merges extra bank files over the built-in banks.
func loadQuestions(paths []string) (*questions.Bank, error) {
	bank := questions.Default().Clone()
	for _, path := range paths {
		extra, err := questions.LoadFile(path)
		if err != nil {
			return nil, err
		}
		if err := bank.Merge(extra); err != nil {
			return nil, fmt.Errorf("merge %s: %w", path, err)
		}
		slog.Info("loaded question bank", "path", path, "roles", len(extra.Roles))
	}
	return bank, nil
}

// newSpeaker builds the speech service with an optional Redis cache. A
// Redis server that does not answer is logged and skipped.
func newSpeaker(ctx context.Context, v *viper.Viper) (*tts.Service, func(), error) {
	var synth tts.Synthesizer
	switch provider := strings.ToLower(v.GetString("tts-provider")); provider {
	case "elevenlabs":
		synth = tts.NewElevenLabs(v.GetString("tts-url"), v.GetString("tts-key"), v.GetString("tts-model"), v.GetDuration("upstream-timeout"))
	case "openai":
		baseURL := v.GetString("tts-url")
		if baseURL == "" {
			baseURL = v.GetString("llm-url")
		}
		synth = tts.NewOpenAISpeech(baseURL, v.GetString("tts-key"), v.GetString("tts-model"), v.GetDuration("upstream-timeout"))
	default:
		return nil, nil, fmt.Errorf("unknown tts provider %q", provider)
	}
	if v.GetString("tts-key") == "" {
		slog.Warn("speech key not set, speech synthesis will fail", "env", ttsKeyEnv)
	}

	addr := v.GetString("redis-addr")
	if addr == "" {
		return tts.NewService(synth, nil, 0), func() {}, nil
	}

	rc := cache.New(cache.NewRedisClient(addr, v.GetString("redis-password"), v.GetInt("redis-db")))
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rc.Ping(pingCtx); err != nil {
		slog.Warn("redis unavailable, speech cache disabled", "addr", addr, "error", err)
		_ = rc.Close()
		return tts.NewService(synth, nil, 0), func() {}, nil
	}
	slog.Info("speech cache enabled", "addr", addr, "ttl", v.GetDuration("tts-cache-ttl"))
	closeFn := func() {
		if err := rc.Close(); err != nil {
			slog.Warn("close redis", "error", err)
		}
	}
	return tts.NewService(synth, rc, v.GetDuration("tts-cache-ttl")), closeFn, nil
}

func hashAdminPassword(password string) ([]byte, error) {
	if password == "" {
		slog.Warn("admin password not set, admin export is disabled")
		return nil, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash admin password: %w", err)
	}
	return hash, nil
}

// cleanupAuthSessions drops expired profile tokens once an hour.
func cleanupAuthSessions(ctx context.Context, db *store.Store) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := db.CleanupExpiredSessions()
			if err != nil {
				slog.Error("failed to clean up auth sessions", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("removed expired auth sessions", "count", n)
			}
		}
	}
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	results, err := db.ExportAllSessions()
	if err != nil {
		return fmt.Errorf("export sessions: %w", err)
	}

	export := model.SessionExport{
		ExportedAt:    time.Now().UTC(),
		TotalSessions: len(results),
		Results:       results,
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, _ = fmt.Fprintln(w)

	slog.Info("exported sessions", "count", len(results), "output", outPath)
	return nil
}
