package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/careops/services/automation/internal/models"
)

// writeError maps the domain error taxonomy onto HTTP statuses: validation
// to 400, missing entities to 404, transition/slot/version conflicts to 409,
// everything else to 500.
func writeError(c *gin.Context, err error) {
	var (
		validation *models.ValidationError
		notFound   *models.NotFoundError
		transition *models.InvalidTransitionError
		conflict   *models.SlotConflictError
		stale      *models.StaleEntityError
	)
	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": validation.Error()})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound.Error()})
	case errors.As(err, &transition):
		c.JSON(http.StatusConflict, gin.H{
			"error":   transition.Error(),
			"allowed": transition.Allowed,
		})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": conflict.Error()})
	case errors.As(err, &stale):
		c.JSON(http.StatusConflict, gin.H{"error": stale.Error()})
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
