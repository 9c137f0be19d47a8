package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/csschan/unitpay-sub001/internal/dto"
	"github.com/csschan/unitpay-sub001/internal/repository"
	"github.com/csschan/unitpay-sub001/internal/services"
)

// PaymentIntentHandler exposes the intent lifecycle over HTTP.
type PaymentIntentHandler struct {
	coordinator *services.ClaimCoordinator
	intentRepo  repository.PaymentIntentRepository
	logger      *logrus.Logger
}

func NewPaymentIntentHandler(
	coordinator *services.ClaimCoordinator,
	intentRepo repository.PaymentIntentRepository,
	logger *logrus.Logger,
) *PaymentIntentHandler {
	return &PaymentIntentHandler{
		coordinator: coordinator,
		intentRepo:  intentRepo,
		logger:      logger,
	}
}

// CreatePaymentIntent POST /api/payment-intent
func (h *PaymentIntentHandler) CreatePaymentIntent(c *gin.Context) {
	var req dto.CreatePaymentIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	intent, matchedLP, err := h.coordinator.CreateIntent(c.Request.Context(), services.CreateIntentParams{
		Amount:              req.Amount,
		Currency:            req.Currency,
		Platform:            req.Platform,
		UserWalletAddress:   req.UserWalletAddress,
		Description:         req.Description,
		MerchantPaypalEmail: req.MerchantPaypalEmail,
		Network:             req.Network,
		AutoMatchLP:         req.AutoMatchLP,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"intent_id": intent.ID,
		"platform":  intent.Platform,
		"amount":    intent.Amount,
		"user":      intent.UserWalletAddress,
	}).Info("payment intent created")

	resp := gin.H{"success": true, "data": intent}
	if matchedLP != nil {
		resp["matchedLP"] = gin.H{
			"walletAddress": matchedLP.WalletAddress,
			"feeRate":       matchedLP.FeeRate,
		}
	}
	c.JSON(http.StatusCreated, resp)
}

// GetPaymentIntent GET /api/payment-intent/:id
func (h *PaymentIntentHandler) GetPaymentIntent(c *gin.Context) {
	intent, err := h.intentRepo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": intent})
}

// GetUserPaymentIntents GET /api/payment-intents/user/:address
func (h *PaymentIntentHandler) GetUserPaymentIntents(c *gin.Context) {
	intents, err := h.intentRepo.FindByUser(c.Request.Context(), c.Param("address"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": intents, "count": len(intents)})
}

// GetLPPaymentIntents GET /api/payment-intents/lp/:address
func (h *PaymentIntentHandler) GetLPPaymentIntents(c *gin.Context) {
	intents, err := h.intentRepo.FindByLP(c.Request.Context(), c.Param("address"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": intents, "count": len(intents)})
}

// CancelPaymentIntent PUT /api/payment-intent/:id/cancel
func (h *PaymentIntentHandler) CancelPaymentIntent(c *gin.Context) {
	var req dto.CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	intent, err := h.coordinator.Cancel(c.Request.Context(), c.Param("id"), req.UserWalletAddress)
	if err != nil {
		respondError(c, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"intent_id": intent.ID,
		"user":      req.UserWalletAddress,
	}).Info("payment intent cancelled")
	c.JSON(http.StatusOK, gin.H{"success": true, "data": intent})
}

// ConfirmPaymentIntent POST /api/payment-intents/:id/confirm
// The user's confirmation that the fiat arrived.
func (h *PaymentIntentHandler) ConfirmPaymentIntent(c *gin.Context) {
	var req dto.ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	intent, err := h.coordinator.UserConfirm(c.Request.Context(), c.Param("id"), req.UserWalletAddress)
	if err != nil {
		respondError(c, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"intent_id": intent.ID,
		"user":      req.UserWalletAddress,
	}).Info("payment intent confirmed by user")
	c.JSON(http.StatusOK, gin.H{"success": true, "data": intent})
}
