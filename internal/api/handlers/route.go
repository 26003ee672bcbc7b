package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/modelmux/internal/ai"
	"github.com/irfndi/modelmux/internal/middleware"
	"github.com/irfndi/modelmux/internal/services"
)

// PromptRouter is the routing surface exposed over HTTP. RouterService
// satisfies this.
type PromptRouter interface {
	RoutePrompt(ctx context.Context, req services.RoutePromptRequest) (*services.RouterResponse, error)
}

type RouteHandler struct {
	router PromptRouter
}

func NewRouteHandler(router PromptRouter) *RouteHandler {
	return &RouteHandler{
		router: router,
	}
}

type RoutePromptBody struct {
	Prompt         string `json:"prompt"`
	PriorityPreset string `json:"priorityPreset"`
	UserID         string `json:"userId"`
	SessionID      string `json:"sessionId"`
}

// RoutePrompt classifies the prompt, routes it to a backend and returns
// the completion. Caller mistakes map to 400, routing failures to 500.
func (h *RouteHandler) RoutePrompt(c *gin.Context) {
	var body RoutePromptBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	preset, err := ai.ParsePreset(body.PriorityPreset)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid priorityPreset", "details": err.Error()})
		return
	}

	resp, err := h.router.RoutePrompt(c.Request.Context(), services.RoutePromptRequest{
		Prompt:    body.Prompt,
		Preset:    preset,
		UserID:    body.UserID,
		SessionID: body.SessionID,
	})
	if err != nil {
		var inputErr *services.InputError
		if errors.As(err, &inputErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": inputErr.Error()})
			return
		}
		middleware.RecordError(c, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "routing failed", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}
