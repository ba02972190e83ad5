package http

import (
	"errors"
	"net/http"

	"github.com/jmehdipour/actionflow/internal/repository"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

// storeError maps repository errors onto JSON error responses.
func storeError(c echo.Context, op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrInvalidEvent), errors.Is(err, repository.ErrInvalidAction):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
	default:
		log.Errorf("%s failed: %v", op, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
	}
}
