package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/nanooro/dagnerai/domain"
	"github.com/nanooro/dagnerai/usecase"
	"github.com/nanooro/dagnerai/utils/log"
)

const (
	// ChatViewPath is where a carousel selection leads to.
	ChatViewPath = "/ws"

	MaxAudioSize = 10 * 1024 * 1024 // 10MB
)

type Config struct {
	JWTSecret     string
	JWTExpiry     time.Duration
	APIKey        string
	APISecret     string
	MaxConcurrent int
}

type ChatHandler struct {
	chatService *usecase.ChatService
	synthesizer domain.Synthesizer
	transcriber domain.Transcriber
	jwtSecret   []byte
	jwtExpiry   time.Duration
	apiKey      string
	apiSecret   string
	semaphore   chan struct{}
}

type JWTClaims struct {
	ClientID string `json:"client_id"`
	jwt.RegisteredClaims
}

type MessageRequest struct {
	Message string `json:"message"`
}

type CharacterRequest struct {
	Character string `json:"character"`
}

type SubmitResponse struct {
	Accepted     bool             `json:"accepted"`
	Reason       string           `json:"reason,omitempty"`
	Transcript   string           `json:"transcript,omitempty"`
	Reply        *domain.Turn     `json:"reply,omitempty"`
	Conversation usecase.Snapshot `json:"conversation"`
}

type CarouselCard struct {
	Index      int                  `json:"index"`
	Entry      domain.CarouselEntry `json:"entry"`
	ChatTarget string               `json:"chat_target"`
}

type CharacterResponse struct {
	Name     string                  `json:"name"`
	Greeting string                  `json:"greeting"`
	Profile  domain.CharacterProfile `json:"profile"`
	Flat     usecase.FlatProfile     `json:"flat"`
}

type FacetResponse struct {
	Name  string        `json:"name"`
	Facet usecase.Facet `json:"facet"`
	Info  string        `json:"info"`
}

type Option func(*ChatHandler)

// WithVoice enables the text-to-speech and speech-to-text routes.
func WithVoice(synthesizer domain.Synthesizer, transcriber domain.Transcriber) Option {
	return func(h *ChatHandler) {
		h.synthesizer = synthesizer
		h.transcriber = transcriber
	}
}

func NewChatHandler(chatService *usecase.ChatService, cfg Config, opts ...Option) *ChatHandler {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 10
	}
	if cfg.JWTExpiry <= 0 {
		cfg.JWTExpiry = 24 * time.Hour
	}
	h := &ChatHandler{
		chatService: chatService,
		jwtSecret:   []byte(cfg.JWTSecret),
		jwtExpiry:   cfg.JWTExpiry,
		apiKey:      cfg.APIKey,
		apiSecret:   cfg.APISecret,
		semaphore:   make(chan struct{}, cfg.MaxConcurrent),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the API under /api/v1.
func (h *ChatHandler) Register(e *echo.Echo) {
	api := e.Group("/api/v1")

	// Public endpoints (no auth required)
	api.GET("/health", h.HealthCheck)
	api.POST("/auth/token", h.GenerateJWT)
	api.GET("/characters", h.ListCharacters)
	api.GET("/characters/:name", h.GetCharacter)
	api.GET("/characters/:name/facets/:facet", h.GetFacet)
	api.GET("/carousel", h.GetCarousel)

	chats := api.Group("/chats")
	chats.Use(h.JWTMiddleware)
	chats.POST("", h.OpenChat)
	chats.GET("/:id", h.GetChat)
	chats.DELETE("/:id", h.CloseChat)
	chats.PUT("/:id/character", h.SwitchCharacter)
	chats.GET("/:id/archive", h.GetArchive)
	chats.POST("/:id/messages", h.SendMessage, h.RateLimitMiddleware)
	chats.POST("/:id/voice", h.SendVoice, h.RateLimitMiddleware)
	chats.GET("/:id/turns/:index/audio", h.SpeakTurn, h.RateLimitMiddleware)
}

// GenerateJWT creates a JWT token for authenticated clients
func (h *ChatHandler) GenerateJWT(c echo.Context) error {
	key := c.Request().Header.Get("X-API-Key")
	secret := c.Request().Header.Get("X-API-Secret")

	if key == "" || key != h.apiKey || secret != h.apiSecret {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials")
	}

	now := time.Now()
	claims := &JWTClaims{
		ClientID: key,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(h.jwtExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "dagnerai",
			Subject:   "character-chat",
		},
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.jwtSecret)
	if err != nil {
		log.WithCtx(c.Request().Context()).Error("Error signing JWT", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate token")
	}

	return c.JSON(http.StatusOK, map[string]string{
		"token": tokenString,
		"type":  "Bearer",
	})
}

// JWTMiddleware accepts "Authorization: Bearer <token>" or, for websocket
// clients that cannot set headers, a token query parameter.
func (h *ChatHandler) JWTMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		tokenString := c.QueryParam("token")
		if authHeader := c.Request().Header.Get("Authorization"); authHeader != "" {
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization format")
			}
		}
		if tokenString == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Missing authorization header")
		}

		token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return h.jwtSecret, nil
		})
		if err != nil {
			log.WithCtx(c.Request().Context()).Debug("JWT validation error", zap.Error(err))
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
		}

		claims, ok := token.Claims.(*JWTClaims)
		if !ok || !token.Valid {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token claims")
		}

		c.Set("client_id", claims.ClientID)
		ctx := log.WithValue(c.Request().Context(), log.ClientIDKey, claims.ClientID)
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

// RateLimitMiddleware bounds the number of concurrent model calls.
func (h *ChatHandler) RateLimitMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		select {
		case h.semaphore <- struct{}{}:
			defer func() { <-h.semaphore }()
			return next(c)
		default:
			return echo.NewHTTPError(http.StatusTooManyRequests, "Too many concurrent requests")
		}
	}
}

func (h *ChatHandler) HealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "character-chat",
		"sessions":  h.chatService.SessionCount(),
		"voice":     h.synthesizer != nil && h.transcriber != nil,
	})
}

func (h *ChatHandler) ListCharacters(c echo.Context) error {
	entries := h.chatService.Knowledge().Carousel()
	cards := make([]CarouselCard, len(entries))
	for i, e := range entries {
		cards[i] = CarouselCard{Index: i, Entry: e, ChatTarget: usecase.ChatTarget(ChatViewPath, e.Name)}
	}
	return c.JSON(http.StatusOK, cards)
}

func (h *ChatHandler) GetCharacter(c echo.Context) error {
	name := c.Param("name")
	knowledge := h.chatService.Knowledge()

	profile, ok := knowledge.Profile(name)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, usecase.UnknownCharacterInfo)
	}
	flat, _ := knowledge.Flatten(name)

	return c.JSON(http.StatusOK, CharacterResponse{
		Name:     name,
		Greeting: knowledge.Greeting(name),
		Profile:  profile,
		Flat:     flat,
	})
}

// GetFacet answers unknown characters with the sentinel text rather than
// an error.
func (h *ChatHandler) GetFacet(c echo.Context) error {
	facet, err := usecase.ParseFacet(c.Param("facet"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	name := c.Param("name")

	return c.JSON(http.StatusOK, FacetResponse{
		Name:  name,
		Facet: facet,
		Info:  h.chatService.Knowledge().Info(name, facet),
	})
}

// GetCarousel returns the card at ?index= (wrapped) with its neighbours.
func (h *ChatHandler) GetCarousel(c echo.Context) error {
	index := 0
	if raw := c.QueryParam("index"); raw != "" {
		var err error
		if index, err = strconv.Atoi(raw); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "index must be an integer")
		}
	}

	carousel, err := usecase.NewCarousel(h.chatService.Knowledge().Carousel())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	current := carousel.Seek(index)
	at := carousel.Index()
	prev := carousel.Prev()
	carousel.Next()
	next := carousel.Next()

	return c.JSON(http.StatusOK, map[string]interface{}{
		"current": CarouselCard{Index: at, Entry: current, ChatTarget: usecase.ChatTarget(ChatViewPath, current.Name)},
		"prev":    prev,
		"next":    next,
		"size":    carousel.Len(),
	})
}

func (h *ChatHandler) OpenChat(c echo.Context) error {
	character := c.QueryParam("character")
	if character == "" {
		req := new(CharacterRequest)
		if c.Request().ContentLength > 0 {
			if err := c.Bind(req); err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, err.Error())
			}
		}
		character = req.Character
	}

	conv := h.chatService.Open(c.Request().Context(), clientID(c), character)
	return c.JSON(http.StatusCreated, conv.Snapshot())
}

func (h *ChatHandler) GetChat(c echo.Context) error {
	conv, err := h.conversation(c)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, conv.Snapshot())
}

func (h *ChatHandler) CloseChat(c echo.Context) error {
	if _, err := h.conversation(c); err != nil {
		return toHTTPError(err)
	}
	if err := h.chatService.Close(c.Request().Context(), c.Param("id")); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *ChatHandler) SwitchCharacter(c echo.Context) error {
	req := new(CharacterRequest)
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if _, err := h.conversation(c); err != nil {
		return toHTTPError(err)
	}

	conv, err := h.chatService.SwitchCharacter(c.Request().Context(), c.Param("id"), req.Character)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, conv.Snapshot())
}

func (h *ChatHandler) GetArchive(c echo.Context) error {
	id := c.Param("id")
	transcripts, err := h.chatService.Archived(c.Request().Context(), id, clientID(c))
	if err != nil {
		log.WithCtx(c.Request().Context()).Error("Error loading archive", zap.String("session_id", id), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load archive")
	}
	return c.JSON(http.StatusOK, transcripts)
}

func (h *ChatHandler) SendMessage(c echo.Context) error {
	req := new(MessageRequest)
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return h.submit(c, req.Message, "")
}

// SendVoice transcribes a LINEAR16 recording and submits it as a message.
func (h *ChatHandler) SendVoice(c echo.Context) error {
	if h.transcriber == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Voice is disabled")
	}
	if _, err := h.conversation(c); err != nil {
		return toHTTPError(err)
	}

	audio, err := io.ReadAll(io.LimitReader(c.Request().Body, MaxAudioSize))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Failed to read audio")
	}
	if len(audio) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "Empty audio")
	}

	text, err := h.transcriber.Transcribe(c.Request().Context(), audio)
	if err != nil {
		log.WithCtx(c.Request().Context()).Error("Transcription error", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "Failed to transcribe audio")
	}
	return h.submit(c, text, text)
}

// SpeakTurn synthesizes one turn of the conversation as MP3.
func (h *ChatHandler) SpeakTurn(c echo.Context) error {
	if h.synthesizer == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Voice is disabled")
	}
	conv, err := h.conversation(c)
	if err != nil {
		return toHTTPError(err)
	}

	index, err := strconv.Atoi(c.Param("index"))
	turns := conv.Snapshot().Turns
	if err != nil || index < 0 || index >= len(turns) {
		return echo.NewHTTPError(http.StatusNotFound, "Turn not found")
	}

	turn := turns[index]
	voice := domain.VoiceNeutral
	if turn.Role == domain.CharacterRole {
		voice = h.chatService.Knowledge().Voice(conv.Character())
	}

	audio, err := h.synthesizer.Synthesize(c.Request().Context(), voice, turn.Content)
	if err != nil {
		log.WithCtx(c.Request().Context()).Error("Synthesis error", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "Failed to synthesize speech")
	}
	return c.Blob(http.StatusOK, "audio/mpeg", audio)
}

func (h *ChatHandler) submit(c echo.Context, text, transcript string) error {
	conv, err := h.conversation(c)
	if err != nil {
		return toHTTPError(err)
	}

	reply, err := conv.Submit(c.Request().Context(), text)
	switch {
	case errors.Is(err, usecase.ErrEmptyInput):
		return c.JSON(http.StatusOK, SubmitResponse{
			Accepted:     false,
			Reason:       "empty",
			Transcript:   transcript,
			Conversation: conv.Snapshot(),
		})
	case err != nil:
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, SubmitResponse{
		Accepted:     true,
		Transcript:   transcript,
		Reply:        &reply,
		Conversation: conv.Snapshot(),
	})
}

// conversation looks up the :id session among those of the calling client.
func (h *ChatHandler) conversation(c echo.Context) (*usecase.Conversation, error) {
	return h.chatService.GetOwned(c.Param("id"), clientID(c))
}

func clientID(c echo.Context) string {
	id, _ := c.Get("client_id").(string)
	return id
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Your session was not found")
	case errors.Is(err, usecase.ErrBusy):
		return echo.NewHTTPError(http.StatusConflict, "A reply is still pending")
	case errors.Is(err, usecase.ErrConversationReset):
		return echo.NewHTTPError(http.StatusConflict, "The conversation was reset")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
