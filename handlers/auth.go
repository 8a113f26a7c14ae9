package handlers

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/yourusername/stockmeta/middleware"
	"github.com/yourusername/stockmeta/services"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type AuthHandler struct {
	clients   map[string]services.APIClient
	secret    string
	ttl       time.Duration
	validator *validator.Validate
	log       *zap.Logger
}

type TokenRequest struct {
	ClientID string `json:"client_id" validate:"required,max=100"`
	APIKey   string `json:"api_key" validate:"required,max=200"`
}

func NewAuthHandler(cfg services.AuthConfig, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	clients := make(map[string]services.APIClient, len(cfg.Clients))
	for _, cl := range cfg.Clients {
		clients[cl.ID] = cl
	}
	return &AuthHandler{
		clients:   clients,
		secret:    cfg.JWTSecret,
		ttl:       cfg.TokenTTL,
		validator: validator.New(),
		log:       log,
	}
}

// Token exchanges a client id and API key for a bearer token.
func (h *AuthHandler) Token(c *fiber.Ctx) error {
	var req TokenRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Validation failed", "details": err.Error()})
	}
	client, ok := h.clients[req.ClientID]
	if !ok || bcrypt.CompareHashAndPassword([]byte(client.KeyHash), []byte(req.APIKey)) != nil {
		h.log.Info("token request rejected", zap.String("client_id", req.ClientID))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid credentials"})
	}
	token, err := middleware.GenerateToken(h.secret, client.ID, client.Name, h.ttl)
	if err != nil {
		h.log.Error("failed to sign token", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to generate token"})
	}
	return c.JSON(fiber.Map{"token": token, "expires_in": int(h.effectiveTTL().Seconds())})
}

func (h *AuthHandler) effectiveTTL() time.Duration {
	if h.ttl <= 0 {
		return 24 * time.Hour
	}
	return h.ttl
}

// Health reports that the process is serving requests.
func Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}
