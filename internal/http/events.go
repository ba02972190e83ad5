package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/jmehdipour/actionflow/internal/model"
	"github.com/jmehdipour/actionflow/internal/service/ingest"
	"github.com/labstack/echo/v4"
)

type actionReq struct {
	Type           string        `json:"action_type"`
	OrganizationID string        `json:"organization_id"`
	Channel        string        `json:"channel"`
	Payload        model.Payload `json:"payload"`
	Priority       int           `json:"priority"`
}

func (r actionReq) model(conversationID string) model.Action {
	typ, _ := model.ParseActionType(r.Type)
	return model.Action{
		Type:           typ,
		ConversationID: conversationID,
		OrganizationID: strings.TrimSpace(r.OrganizationID),
		Channel:        strings.TrimSpace(r.Channel),
		Payload:        r.Payload,
		Priority:       r.Priority,
	}
}

type appendEventReq struct {
	Type      string        `json:"event_type"`
	Subtype   string        `json:"subtype"`
	Actor     string        `json:"actor"`
	Payload   model.Payload `json:"payload"`
	CreatedAt *time.Time    `json:"created_at"`
	Actions   []actionReq   `json:"actions"`
}

func appendEventHandler(svc *ingest.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req appendEventReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		convID := strings.TrimSpace(c.Param("id"))
		env := ingest.Envelope{Event: model.Event{
			ConversationID: convID,
			Type:           model.EventType(strings.TrimSpace(req.Type)),
			Subtype:        strings.TrimSpace(req.Subtype),
			Actor:          strings.TrimSpace(req.Actor),
			Payload:        req.Payload,
		}}
		if req.CreatedAt != nil {
			env.Event.CreatedAt = *req.CreatedAt
		}
		for _, a := range req.Actions {
			env.Actions = append(env.Actions, a.model(convID))
		}

		rec, err := svc.Record(c.Request().Context(), env)
		if err != nil {
			return storeError(c, "record event", err)
		}

		return c.JSON(http.StatusCreated, rec)
	}
}

func listEventsHandler(svc *ingest.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		evs, err := svc.Events(c.Request().Context(), c.Param("id"))
		if err != nil {
			return storeError(c, "list events", err)
		}
		return c.JSON(http.StatusOK, map[string]any{
			"count":   len(evs),
			"results": evs,
		})
	}
}

func statusHandler(svc *ingest.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, err := svc.Status(c.Request().Context(), c.Param("id"))
		if err != nil {
			return storeError(c, "project status", err)
		}
		return c.JSON(http.StatusOK, map[string]any{
			"conversation_id": c.Param("id"),
			"status":          p.Status,
			"missing":         p.Missing,
		})
	}
}
