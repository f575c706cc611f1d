// Package handlers contains the gin HTTP handlers.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"payables-relay/internal/config"
	"payables-relay/internal/middleware"
)

// AuthHandler mints wallet sessions.
type AuthHandler struct {
	cfg *config.Config
	log *logrus.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(cfg *config.Config, log *logrus.Logger) *AuthHandler {
	return &AuthHandler{cfg: cfg, log: log}
}

// CreateSessionHandler exchanges a wallet signature for a session JWT so
// the frontend signs the challenge once instead of on every request.
// POST /api/auth/session
func (h *AuthHandler) CreateSessionHandler(c *gin.Context) {
	wallet, chainName, err := middleware.VerifySignatureHeaders(
		c.GetHeader(middleware.HeaderWalletAddress),
		c.GetHeader(middleware.HeaderWalletChain),
		c.GetHeader(middleware.HeaderWalletSignature),
		c.GetHeader(middleware.HeaderWalletPubkey),
	)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"message": err.Error(),
		})
		return
	}

	ttl := time.Duration(h.cfg.Auth.TokenTTLMinutes) * time.Minute
	token, err := middleware.GenerateSessionToken(h.cfg.Auth.JWTSecret, wallet, chainName, ttl)
	if err != nil {
		h.log.WithError(err).Error("Failed to mint session token")
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "failed to create session",
		})
		return
	}

	h.log.WithFields(logrus.Fields{"wallet": wallet, "chain": chainName}).Info("Session created")
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "session created",
		"data": gin.H{
			"token":     token,
			"wallet":    wallet,
			"chain":     chainName,
			"expiresIn": int(ttl.Seconds()),
		},
	})
}
