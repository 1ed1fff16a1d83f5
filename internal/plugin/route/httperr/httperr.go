// Package httperr maps aggregator and store errors onto HTTP responses and
// holds the request parsing helpers shared by the route plugins.
package httperr

import (
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	registrystore "github.com/chirino/unimsg/internal/registry/store"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HandleError writes the JSON error response for err.
func HandleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var validation *registrystore.ValidationError
	var invariant *registrystore.InvariantError

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": validation.ErrorCode(), "error": err.Error(), "field": validation.Field})
	case errors.As(err, &invariant):
		log.Error("Invariant violated", "op", invariant.Op, "err", err, "path", c.Request.URL.Path)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	default:
		_ = c.Error(err)
		log.Warn("Request failed", "err", err, "path", c.Request.URL.Path)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// PathID parses the UUID path parameter name. A malformed id cannot name an
// existing resource, so it is answered with 404 and ok is false.
func PathID(c *gin.Context, name, resource string) (uuid.UUID, bool) {
	raw := c.Param(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		HandleError(c, &registrystore.NotFoundError{Resource: resource, ID: raw})
		return uuid.Nil, false
	}
	return id, true
}

// BindJSON decodes the request body into req, answering 400 on failure.
func BindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": registrystore.CodeValidation, "error": err.Error()})
		return false
	}
	return true
}
