package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"payables-relay/internal/cberrors"
)

// respondError maps the typed error taxonomy onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, cberrors.ErrUnknownChain),
		errors.Is(err, cberrors.ErrUnsupportedChain),
		errors.Is(err, cberrors.ErrUnknownForeignChain),
		errors.Is(err, cberrors.ErrUnresolvedToken):
		status = http.StatusBadRequest
	case errors.Is(err, cberrors.ErrEntityNotFound):
		status = http.StatusNotFound
	case errors.Is(err, cberrors.ErrUnauthorizedHost):
		status = http.StatusForbidden
	case errors.Is(err, cberrors.ErrDuplicateFinalization):
		status = http.StatusConflict
	case cberrors.IsTransient(err):
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{
		"success": false,
		"message": err.Error(),
	})
}

// respondFinalizeError maps finalize-surface errors. A finalize request
// names an entity the caller asserts already exists on chain, so a failed
// lookup there is a bad request, not a missing resource.
func respondFinalizeError(c *gin.Context, err error) {
	if errors.Is(err, cberrors.ErrEntityNotFound) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": err.Error(),
		})
		return
	}
	respondError(c, err)
}

func respondOK(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": message,
		"data":    data,
	})
}
