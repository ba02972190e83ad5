package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jmehdipour/actionflow/internal/model"
	"github.com/jmehdipour/actionflow/internal/repository"
	echo "github.com/labstack/echo/v4"
)

func receiptsReportHandler(chRepo repository.CHReceiptsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		if chRepo == nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "reporting disabled"})
		}

		f := repository.ReceiptFilter{Limit: 50}
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				f.Limit = n
			}
		}
		if v := c.QueryParam("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				f.Offset = n
			}
		}

		switch st := model.ReceiptStatus(strings.TrimSpace(c.QueryParam("status"))); st {
		case model.ReceiptExecuted, model.ReceiptFailed:
			f.Status = st
		}
		if raw := strings.TrimSpace(c.QueryParam("action_type")); raw != "" {
			f.ActionType, _ = model.ParseActionType(raw)
		}
		f.ConversationID = strings.TrimSpace(c.QueryParam("conversation_id"))
		if v := c.QueryParam("since"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "since must be RFC3339"})
			}
			f.Since = t
		}

		rows, err := chRepo.List(c.Request().Context(), f)
		if err != nil {
			c.Logger().Errorf("clickhouse list failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   f.Limit,
			"offset":  f.Offset,
			"count":   len(rows),
			"results": rows,
		})
	}
}
