package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/csschan/unitpay-sub001/internal/services"
)

// SettlementHandler starts settlement and reports job progress.
type SettlementHandler struct {
	queue  *services.SettlementQueueService
	logger *logrus.Logger
}

func NewSettlementHandler(queue *services.SettlementQueueService, logger *logrus.Logger) *SettlementHandler {
	return &SettlementHandler{queue: queue, logger: logger}
}

// StartSettlement POST /api/settlement/start {paymentIntentId}
func (h *SettlementHandler) StartSettlement(c *gin.Context) {
	var req struct {
		PaymentIntentID string `json:"paymentIntentId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	job, err := h.queue.EnqueueForIntent(c.Request.Context(), req.PaymentIntentID)
	if err != nil {
		respondError(c, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"intent_id": req.PaymentIntentID,
		"job_id":    job.ID,
		"network":   job.Network,
	}).Info("settlement started")
	c.JSON(http.StatusAccepted, gin.H{"success": true, "data": job})
}

// GetSettlementStatus GET /api/settlement/:id/status (id is the intent id)
func (h *SettlementHandler) GetSettlementStatus(c *gin.Context) {
	job, err := h.queue.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": job})
}
