package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// Credential is one configured caller: a client id plus the bcrypt hash of
// its secret, and the role its tokens carry.
type Credential struct {
	ClientID   string
	SecretHash string
	Role       string
}

// Handler exchanges configured client credentials for JWT tokens. User
// authentication lives outside this service; this covers the service-to-
// service and admin-tooling callers only.
type Handler struct {
	credentials []Credential
}

// NewHandler creates a new auth handler
func NewHandler(credentials []Credential) *Handler {
	return &Handler{credentials: credentials}
}

// TokenRequest represents the token exchange request body
type TokenRequest struct {
	ClientID     string `json:"clientId" binding:"required"`
	ClientSecret string `json:"clientSecret" binding:"required"`
}

// TokenResponse represents the token exchange response
type TokenResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

// Token handles the credential-for-token exchange
func (h *Handler) Token(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	for _, cred := range h.credentials {
		if cred.ClientID != req.ClientID {
			continue
		}
		if !CheckPassword(req.ClientSecret, cred.SecretHash) {
			break
		}
		token, err := GenerateToken(cred.ClientID, cred.Role)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
			return
		}
		c.JSON(http.StatusOK, TokenResponse{Token: token, Role: cred.Role})
		return
	}

	c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid client credentials"})
}

// RegisterRoutes registers auth routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/token", h.Token)
}

// HashPassword hashes a secret using bcrypt
func HashPassword(secret string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword compares a secret with its bcrypt hash
func CheckPassword(secret, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
