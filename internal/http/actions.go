package http

import (
	"net/http"
	"strings"

	"github.com/jmehdipour/actionflow/internal/repository"
	"github.com/jmehdipour/actionflow/internal/service/ingest"
	"github.com/labstack/echo/v4"
)

type enqueueActionReq struct {
	actionReq
	ConversationID string `json:"conversation_id"`
}

func enqueueActionHandler(svc *ingest.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req enqueueActionReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		a, err := svc.Enqueue(c.Request().Context(), req.model(strings.TrimSpace(req.ConversationID)))
		if err != nil {
			return storeError(c, "enqueue action", err)
		}

		return c.JSON(http.StatusAccepted, map[string]any{
			"enqueued": true,
			"id":       a.ID,
			"type":     a.Type.String(),
			"known":    a.Type.Known(),
		})
	}
}

func getActionHandler(repo repository.ActionsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		a, err := repo.Get(c.Request().Context(), c.Param("id"))
		if err != nil {
			return storeError(c, "get action", err)
		}
		return c.JSON(http.StatusOK, a)
	}
}

func listReceiptsHandler(repo repository.ReceiptsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		rs, err := repo.ListBySource(c.Request().Context(), c.Param("id"))
		if err != nil {
			return storeError(c, "list receipts", err)
		}
		return c.JSON(http.StatusOK, map[string]any{
			"count":   len(rs),
			"results": rs,
		})
	}
}
