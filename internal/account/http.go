package account

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/abduss/swiftshare/internal/logger"
)

// RegisterRoutes mounts account endpoints under the provided router group.
func RegisterRoutes(router *gin.RouterGroup, service *Service, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	handler := &httpHandler{service: service, logger: log}
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/quick", handler.quickAccess)
		authGroup.POST("/login", handler.login)
	}
	router.GET("/users/:email", handler.lookup)
	router.GET("/me", AuthMiddleware(service), handler.me)
}

type httpHandler struct {
	service *Service
	logger  *zap.Logger
}

type quickRequest struct {
	Email string `json:"email" binding:"required,email"`
	Name  string `json:"name" binding:"required,max=128"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

type accountResponse struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Name      *string    `json:"name,omitempty"`
	Mode      string     `json:"mode"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

type authResponse struct {
	Message string          `json:"message"`
	Account accountResponse `json:"user"`
	Token   struct {
		AccessToken       string `json:"access_token"`
		AccessTokenExpiry int64  `json:"access_token_expires_at"`
	} `json:"tokens"`
}

func (h *httpHandler) quickAccess(c *gin.Context) {
	var req quickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and name are required"})
		return
	}

	result, err := h.service.QuickAccess(c.Request.Context(), QuickAccessInput{Email: req.Email, Name: req.Name})
	if err != nil {
		h.writeError(c, err, "grant quick access")
		return
	}
	c.JSON(http.StatusOK, marshalAuthResponse(result, "Quick access granted"))
}

func (h *httpHandler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	result, err := h.service.Login(c.Request.Context(), LoginInput{Email: req.Email, Password: req.Password})
	if err != nil {
		h.writeError(c, err, "authenticate")
		return
	}

	if result.Created {
		c.JSON(http.StatusCreated, marshalAuthResponse(result, "Account created and logged in"))
		return
	}
	c.JSON(http.StatusOK, marshalAuthResponse(result, "Login successful"))
}

func (h *httpHandler) lookup(c *gin.Context) {
	acct, err := h.service.Lookup(c.Request.Context(), c.Param("email"))
	if err != nil {
		h.writeError(c, err, "look up account")
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": marshalAccount(acct)})
}

func (h *httpHandler) me(c *gin.Context) {
	claims, ok := CurrentClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":         claims.AccountID.String(),
		"email":      claims.Email,
		"mode":       claims.Mode,
		"expires_at": claims.ExpiresAt.Unix(),
	})
}

func (h *httpHandler) writeError(c *gin.Context, err error, action string) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid password"})
	case errors.Is(err, ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	default:
		logger.FromContext(c, h.logger).Error(action, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to " + action})
	}
}

func marshalAccount(acct Account) accountResponse {
	resp := accountResponse{
		ID:    acct.ID.String(),
		Email: acct.Email,
		Name:  acct.Name,
		Mode:  acct.Mode,
	}
	if !acct.CreatedAt.IsZero() {
		created := acct.CreatedAt.UTC()
		resp.CreatedAt = &created
	}
	return resp
}

func marshalAuthResponse(result AuthResult, message string) authResponse {
	resp := authResponse{Message: message, Account: marshalAccount(result.Account)}
	resp.Token.AccessToken = result.Token.Token
	resp.Token.AccessTokenExpiry = result.Token.ExpiresAt.Unix()
	return resp
}
