package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nanooro/dagnerai/adapters/hasher"
	"github.com/nanooro/dagnerai/adapters/http"
	"github.com/nanooro/dagnerai/adapters/llm"
	"github.com/nanooro/dagnerai/adapters/message_broker"
	"github.com/nanooro/dagnerai/adapters/roster"
	"github.com/nanooro/dagnerai/adapters/speech"
	"github.com/nanooro/dagnerai/adapters/transcript"
	"github.com/nanooro/dagnerai/adapters/tts"
	"github.com/nanooro/dagnerai/adapters/websocket"
	"github.com/nanooro/dagnerai/domain"
	"github.com/nanooro/dagnerai/usecase"
	"github.com/nanooro/dagnerai/utils/config"
	"github.com/nanooro/dagnerai/utils/log"
)

func main() {
	defer log.Sync()

	if err := run(); err != nil {
		log.With().Fatal("Server stopped", zap.Error(err))
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log.Init(cfg.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	characters, err := roster.Builtin()
	if err != nil {
		return err
	}
	knowledge := usecase.NewKnowledgeStore(characters)

	gemini, err := llm.NewGeminiClient(ctx, llm.GeminiConfig{
		APIKey:     cfg.GeminiAPIKey,
		Model:      cfg.GeminiModel,
		APIVersion: cfg.GeminiAPIVersion,
		BaseURL:    cfg.GeminiBaseURL,
	})
	if err != nil {
		return err
	}

	broker := message_broker.NewChannelMessageBroker()
	defer broker.Close()

	opts := []usecase.ChatServiceOption{
		usecase.WithBroker(broker),
		usecase.WithHasher(hasher.Short()),
	}
	archive, closeArchive, err := newArchive(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeArchive()
	if archive != nil {
		opts = append(opts, usecase.WithArchive(archive))
	}
	svc := usecase.NewChatService(gemini, knowledge, opts...)
	if cfg.SessionIdleTTL > 0 {
		go svc.Sweep(ctx, min(cfg.SessionIdleTTL, time.Minute), cfg.SessionIdleTTL)
	}

	var handlerOpts []http.Option
	if cfg.VoiceEnabled {
		googleTTS, err := tts.NewGoogleTTS(ctx, cfg.VoiceLanguage)
		if err != nil {
			return err
		}
		defer googleTTS.Close()
		googleSpeech, err := speech.NewGoogleSpeech(ctx, cfg.VoiceLanguage)
		if err != nil {
			return err
		}
		defer googleSpeech.Close()
		handlerOpts = append(handlerOpts, http.WithVoice(googleTTS, googleSpeech))
	}

	chatHandler := http.NewChatHandler(svc, http.Config{
		JWTSecret:     cfg.JWTSecret,
		JWTExpiry:     cfg.JWTExpiry,
		APIKey:        cfg.APIKey,
		APISecret:     cfg.APISecret,
		MaxConcurrent: cfg.MaxConcurrent,
	}, handlerOpts...)

	server := websocket.NewServer(svc, broker)
	if err := server.Listen(ctx); err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true

	// Security middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.Secure())
	e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(cfg.RateLimit))))

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{echo.GET, echo.POST, echo.PUT, echo.DELETE, echo.OPTIONS},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			"X-API-Key",
			"X-API-Secret",
		},
		MaxAge: 86400, // 24 hours
	}))

	e.Use(middleware.BodyLimit(cfg.BodyLimit))

	// JWT auth for WebSocket (same as HTTP)
	wsGroup := e.Group("/ws")
	wsGroup.Use(chatHandler.JWTMiddleware)
	wsGroup.GET("", server.Handler)

	chatHandler.Register(e)

	logger := log.With(zap.String("addr", cfg.Addr))
	logger.Info("Starting server",
		zap.String("model", cfg.GeminiModel),
		zap.String("archive", cfg.Archive),
		zap.Bool("voice", cfg.VoiceEnabled),
		zap.Int("characters", len(knowledge.Carousel())),
		zap.Int("topics", broker.GetTopicCount()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Start(cfg.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func newArchive(ctx context.Context, cfg config.Config) (domain.TranscriptArchive, func(), error) {
	switch cfg.Archive {
	case config.ArchiveFile:
		archive, err := transcript.NewFileArchive(cfg.ArchiveDir)
		if err != nil {
			return nil, nil, err
		}
		return archive, func() {}, nil

	case config.ArchiveRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
		}
		return transcript.NewRedisArchive(client, cfg.RedisTTL), func() { client.Close() }, nil

	default:
		return nil, func() {}, nil
	}
}
