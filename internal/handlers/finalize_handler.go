package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"payables-relay/internal/middleware"
	"payables-relay/internal/services"
)

// FinalizeHandler exposes the finalization endpoints. Every endpoint
// requires an authenticated wallet; the service enforces that the wallet
// actually owns the entity on chain.
type FinalizeHandler struct {
	svc *services.FinalizeService
	log *logrus.Logger
}

// NewFinalizeHandler creates a FinalizeHandler.
func NewFinalizeHandler(svc *services.FinalizeService, log *logrus.Logger) *FinalizeHandler {
	return &FinalizeHandler{svc: svc, log: log}
}

// FinalizePayableRequest is the payable finalization body.
type FinalizePayableRequest struct {
	Chain       string `json:"chain" binding:"required"`
	EntityID    string `json:"entityId" binding:"required"`
	Description string `json:"description"`
	Email       string `json:"email"`
}

// FinalizePaymentRequest is the payment finalization body.
type FinalizePaymentRequest struct {
	Chain    string `json:"chain" binding:"required"`
	EntityID string `json:"entityId" binding:"required"`
	Email    string `json:"email"`
}

// FinalizeWithdrawalRequest is the withdrawal finalization body.
type FinalizeWithdrawalRequest struct {
	Chain    string `json:"chain" binding:"required"`
	EntityID string `json:"entityId" binding:"required"`
}

// FinalizePayableHandler records a payable the wallet just created on chain.
// POST /api/payables
func (h *FinalizeHandler) FinalizePayableHandler(c *gin.Context) {
	var req FinalizePayableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	wallet, _, ok := middleware.AuthedWallet(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "not authenticated"})
		return
	}

	res, err := h.svc.FinalizePayable(c.Request.Context(), req.Chain, req.EntityID, wallet, req.Description, req.Email)
	if err != nil {
		respondFinalizeError(c, err)
		return
	}
	respondOK(c, finalizeMessage(res), res.Entity)
}

// FinalizePaymentHandler records a payment the wallet just made on chain.
// POST /api/payments
func (h *FinalizeHandler) FinalizePaymentHandler(c *gin.Context) {
	var req FinalizePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	wallet, _, ok := middleware.AuthedWallet(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "not authenticated"})
		return
	}

	res, err := h.svc.FinalizePayment(c.Request.Context(), req.Chain, req.EntityID, wallet, req.Email)
	if err != nil {
		respondFinalizeError(c, err)
		return
	}
	respondOK(c, finalizeMessage(res), res.Entity)
}

// FinalizeWithdrawalHandler records a withdrawal the wallet just made.
// POST /api/withdrawals
func (h *FinalizeHandler) FinalizeWithdrawalHandler(c *gin.Context) {
	var req FinalizeWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	wallet, _, ok := middleware.AuthedWallet(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "not authenticated"})
		return
	}

	res, err := h.svc.FinalizeWithdrawal(c.Request.Context(), req.Chain, req.EntityID, wallet)
	if err != nil {
		respondFinalizeError(c, err)
		return
	}
	respondOK(c, finalizeMessage(res), res.Entity)
}

func finalizeMessage(res *services.FinalizeResult) string {
	if res.AlreadyFinalized {
		return "already finalized"
	}
	return "finalized"
}
