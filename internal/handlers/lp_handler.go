package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/csschan/unitpay-sub001/internal/dto"
	"github.com/csschan/unitpay-sub001/internal/models"
	"github.com/csschan/unitpay-sub001/internal/repository"
	"github.com/csschan/unitpay-sub001/internal/services"
	"github.com/csschan/unitpay-sub001/internal/types"
)

// LPHandler exposes LP registration, quota administration and the task pool.
type LPHandler struct {
	lpRepo      repository.LPRepository
	intentRepo  repository.PaymentIntentRepository
	coordinator *services.ClaimCoordinator
	matcher     *services.LPMatchingService
	logger      *logrus.Logger
}

func NewLPHandler(
	lpRepo repository.LPRepository,
	intentRepo repository.PaymentIntentRepository,
	coordinator *services.ClaimCoordinator,
	matcher *services.LPMatchingService,
	logger *logrus.Logger,
) *LPHandler {
	return &LPHandler{
		lpRepo:      lpRepo,
		intentRepo:  intentRepo,
		coordinator: coordinator,
		matcher:     matcher,
		logger:      logger,
	}
}

// RegisterLP POST /api/lp/register
func (h *LPHandler) RegisterLP(c *gin.Context) {
	var req dto.RegisterLPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	network := req.Network
	if network == "" {
		network = "eth"
	}
	addr, err := types.ParseAddressForNetwork(req.WalletAddress, network)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid wallet address: " + err.Error()})
		return
	}
	if len(req.SupportedPlatforms) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "supportedPlatforms must not be empty"})
		return
	}
	for _, p := range req.SupportedPlatforms {
		if !models.IsSupportedPlatform(p) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "unsupported platform: " + string(p)})
			return
		}
	}
	if req.PerTransactionQuota > req.TotalQuota {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "perTransactionQuota cannot exceed totalQuota"})
		return
	}
	feeRate := req.FeeRate
	if feeRate < 0 || feeRate > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "feeRate must be between 0 and 100"})
		return
	}

	lp := &models.LP{
		ID:                  uuid.New().String(),
		WalletAddress:       addr.String(),
		Name:                req.Name,
		Email:               req.Email,
		PaypalEmail:         req.PaypalEmail,
		SupportedPlatforms:  req.SupportedPlatforms,
		FeeRate:             feeRate,
		TotalQuota:          req.TotalQuota,
		AvailableQuota:      req.TotalQuota,
		PerTransactionQuota: req.PerTransactionQuota,
		IsActive:            true,
	}
	if err := h.lpRepo.Create(c.Request.Context(), lp); err != nil {
		respondError(c, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"lp_address":  lp.WalletAddress,
		"total_quota": lp.TotalQuota,
		"platforms":   lp.SupportedPlatforms,
	}).Info("LP registered")
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": lp})
}

// UpdateQuota PUT /api/lp/quota (admin)
func (h *LPHandler) UpdateQuota(c *gin.Context) {
	var req dto.UpdateQuotaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	if req.PerTransactionQuota > req.TotalQuota {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "perTransactionQuota cannot exceed totalQuota"})
		return
	}

	addr, err := types.ParseAddress(req.WalletAddress)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid wallet address: " + err.Error()})
		return
	}

	lp, err := h.lpRepo.UpdateQuotaLimits(c.Request.Context(), addr.String(), req.TotalQuota, req.PerTransactionQuota)
	if err != nil {
		respondError(c, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"lp_address":  lp.WalletAddress,
		"total_quota": lp.TotalQuota,
		"per_tx":      lp.PerTransactionQuota,
		"admin":       c.GetString("admin_username"),
	}).Info("LP quota limits updated")
	c.JSON(http.StatusOK, gin.H{"success": true, "data": lp})
}

// GetLP GET /api/lp/:address
func (h *LPHandler) GetLP(c *gin.Context) {
	lp, err := h.lpRepo.GetByWalletAddress(c.Request.Context(), c.Param("address"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": lp})
}

// GetAvailableLPs GET /api/lp/available?platform=&amount=
func (h *LPHandler) GetAvailableLPs(c *gin.Context) {
	platform := models.PaymentPlatform(c.Query("platform"))
	amount, _ := strconv.ParseFloat(c.Query("amount"), 64)

	lps, err := h.matcher.AvailableLPs(c.Request.Context(), platform, amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": lps, "count": len(lps)})
}

// GetTaskPool GET /api/lp/task-pool?lpWalletAddress=&platform=&minAmount=&maxAmount=
// Open intents anyone can claim, plus the querying LP's own in-flight tasks.
func (h *LPHandler) GetTaskPool(c *gin.Context) {
	filter := repository.TaskPoolFilter{
		Platform: models.PaymentPlatform(c.Query("platform")),
	}
	if v := c.Query("minAmount"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			filter.MinAmount = &f
		}
	}
	if v := c.Query("maxAmount"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			filter.MaxAmount = &f
		}
	}

	tasks, err := h.intentRepo.TaskPool(c.Request.Context(), c.Query("lpWalletAddress"), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": tasks, "count": len(tasks)})
}

// ClaimTask POST /api/lp/task/:id/claim
func (h *LPHandler) ClaimTask(c *gin.Context) {
	var req dto.ClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	intent, err := h.coordinator.Claim(c.Request.Context(), c.Param("id"), req.LPWalletAddress)
	if err != nil {
		respondError(c, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"intent_id":  intent.ID,
		"lp_address": req.LPWalletAddress,
		"expires_at": intent.ExpiresAt,
	}).Info("task claimed")
	c.JSON(http.StatusOK, gin.H{"success": true, "data": intent})
}

// MarkTaskPaid POST /api/lp/task/:id/mark-paid
func (h *LPHandler) MarkTaskPaid(c *gin.Context) {
	var req dto.MarkPaidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	intent, err := h.coordinator.MarkPaid(c.Request.Context(), c.Param("id"), req.LPWalletAddress, &req.PaymentProof)
	if err != nil {
		respondError(c, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"intent_id":  intent.ID,
		"lp_address": req.LPWalletAddress,
		"platform":   req.PaymentProof.Platform,
	}).Info("task marked paid")
	c.JSON(http.StatusOK, gin.H{"success": true, "data": intent})
}
