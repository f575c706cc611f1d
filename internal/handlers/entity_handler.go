package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"payables-relay/internal/resolver"
	"payables-relay/internal/services"
)

// EntityHandler exposes the public read endpoints.
type EntityHandler struct {
	svc *services.QueryService
	log *logrus.Logger
}

// NewEntityHandler creates an EntityHandler.
func NewEntityHandler(svc *services.QueryService, log *logrus.Logger) *EntityHandler {
	return &EntityHandler{svc: svc, log: log}
}

// GetPayableHandler returns one payable.
// GET /api/payables/:chain/:id
func (h *EntityHandler) GetPayableHandler(c *gin.Context) {
	p, err := h.svc.GetPayable(c.Request.Context(), c.Param("chain"), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "ok", p)
}

// GetPaymentHandler returns one payer-side payment.
// GET /api/payments/:chain/:id
func (h *EntityHandler) GetPaymentHandler(c *gin.Context) {
	p, err := h.svc.GetPayment(c.Request.Context(), c.Param("chain"), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "ok", p)
}

// GetPayablePaymentHandler returns one payable-side payment.
// GET /api/payable-payments/:chain/:id
func (h *EntityHandler) GetPayablePaymentHandler(c *gin.Context) {
	p, err := h.svc.GetPayablePayment(c.Request.Context(), c.Param("chain"), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "ok", p)
}

// GetWithdrawalHandler returns one withdrawal.
// GET /api/withdrawals/:chain/:id
func (h *EntityHandler) GetWithdrawalHandler(c *gin.Context) {
	w, err := h.svc.GetWithdrawal(c.Request.Context(), c.Param("chain"), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "ok", w)
}

// GetUserHandler returns a wallet's activity record.
// GET /api/users/:chain/:wallet
func (h *EntityHandler) GetUserHandler(c *gin.Context) {
	u, err := h.svc.GetUser(c.Request.Context(), c.Param("chain"), c.Param("wallet"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "ok", u)
}

// ListPayablesHandler lists a wallet's payables, most recent first.
// GET /api/payables/:chain?wallet=...&page=1&pageSize=25
func (h *EntityHandler) ListPayablesHandler(c *gin.Context) {
	wallet, page, pageSize, ok := listParams(c)
	if !ok {
		return
	}
	out, err := h.svc.ListPayables(c.Request.Context(), c.Param("chain"), wallet, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "ok", out)
}

// ListPaymentsHandler lists a wallet's payments, most recent first.
// GET /api/payments/:chain?wallet=...
func (h *EntityHandler) ListPaymentsHandler(c *gin.Context) {
	wallet, page, pageSize, ok := listParams(c)
	if !ok {
		return
	}
	out, err := h.svc.ListPayments(c.Request.Context(), c.Param("chain"), wallet, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "ok", out)
}

// ListWithdrawalsHandler lists a wallet's withdrawals, most recent first.
// GET /api/withdrawals/:chain?wallet=...
func (h *EntityHandler) ListWithdrawalsHandler(c *gin.Context) {
	wallet, page, pageSize, ok := listParams(c)
	if !ok {
		return
	}
	out, err := h.svc.ListWithdrawals(c.Request.Context(), c.Param("chain"), wallet, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "ok", out)
}

// ListPayablePaymentsHandler lists the payments a payable received.
// GET /api/payable-payments/:chain?payable=...
func (h *EntityHandler) ListPayablePaymentsHandler(c *gin.Context) {
	payableID := c.Query("payable")
	if payableID == "" {
		c.JSON(400, gin.H{"success": false, "message": "payable query parameter is required"})
		return
	}
	page, pageSize := pageParams(c)
	out, err := h.svc.ListPayablePayments(c.Request.Context(), c.Param("chain"), payableID, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "ok", out)
}

// ListPayableWithdrawalsHandler lists the recorded withdrawals taken from
// a payable.
// GET /api/payable-withdrawals/:chain?payable=...
func (h *EntityHandler) ListPayableWithdrawalsHandler(c *gin.Context) {
	payableID := c.Query("payable")
	if payableID == "" {
		c.JSON(400, gin.H{"success": false, "message": "payable query parameter is required"})
		return
	}
	page, pageSize := pageParams(c)
	out, err := h.svc.ListPayableWithdrawals(c.Request.Context(), c.Param("chain"), payableID, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "ok", out)
}

func listParams(c *gin.Context) (wallet string, page, pageSize int, ok bool) {
	wallet = c.Query("wallet")
	if wallet == "" {
		c.JSON(400, gin.H{"success": false, "message": "wallet query parameter is required"})
		return "", 0, 0, false
	}
	page, pageSize = pageParams(c)
	return wallet, page, pageSize, true
}

func pageParams(c *gin.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(c.DefaultQuery("pageSize", strconv.Itoa(resolver.DefaultPageSize)))
	return page, pageSize
}
