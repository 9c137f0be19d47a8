package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/csschan/unitpay-sub001/internal/repository"
	"github.com/csschan/unitpay-sub001/internal/services"
)

// respondError maps domain errors onto HTTP statuses with the standard
// {success:false, message} envelope.
func respondError(c *gin.Context, err error) {
	var validationErr *services.ValidationError
	var transitionErr *services.InvalidStateTransitionError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": validationErr.Error()})
	case errors.As(err, &transitionErr):
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"message": transitionErr.Error(),
			"status":  transitionErr.Current,
		})
	case errors.Is(err, repository.ErrIntentNotFound),
		errors.Is(err, repository.ErrLPNotFound),
		errors.Is(err, repository.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": err.Error()})
	case errors.Is(err, repository.ErrLPExists):
		c.JSON(http.StatusConflict, gin.H{"success": false, "message": err.Error()})
	case errors.Is(err, services.ErrInsufficientQuota):
		c.JSON(http.StatusConflict, gin.H{"success": false, "message": err.Error()})
	case errors.Is(err, services.ErrVerificationFailed):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "message": err.Error()})
	case errors.Is(err, repository.ErrStaleState):
		c.JSON(http.StatusConflict, gin.H{"success": false, "message": "resource was modified concurrently, retry"})
	default:
		logrus.WithError(err).Error("unhandled error in request")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "internal server error"})
	}
}
