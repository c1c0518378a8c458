package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clinicore/encounter-api/internal/config"
	"github.com/clinicore/encounter-api/internal/handler"
	"github.com/clinicore/encounter-api/pkg/auth"
	"github.com/clinicore/encounter-api/pkg/security"
)

type TokenRequest struct {
	ClientID     string `json:"client_id" binding:"required,uuid"`
	ClientSecret string `json:"client_secret" binding:"required"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Handler issues access tokens to the API clients listed in configuration.
// Client IDs are service account UUIDs; secrets are checked against their
// bcrypt hashes.
type Handler struct {
	clients map[string]config.APIClient
	jwtSvc  auth.JWTService
	hasher  security.SecretHasher
}

func NewHandler(cfg config.AuthConfig, jwtSvc auth.JWTService) *Handler {
	clients := make(map[string]config.APIClient, len(cfg.Clients))
	for _, c := range cfg.Clients {
		clients[c.ID] = c
	}
	return &Handler{
		clients: clients,
		jwtSvc:  jwtSvc,
		hasher:  security.NewBcryptHasher(12),
	}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	authGroup := rg.Group("/auth")
	{
		authGroup.POST("/token", h.Token)
	}
}

func (h *Handler) Token(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	client, ok := h.clients[req.ClientID]
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid credentials"))
		return
	}

	if err := h.hasher.Compare(client.SecretHash, req.ClientSecret); err != nil {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid credentials"))
		return
	}

	token, err := h.jwtSvc.GenerateToken(client.ID, client.Role)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
	}))
}
