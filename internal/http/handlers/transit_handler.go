// README: Transit query handler; runs one user message through the trip planner.
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"transitguide/internal/envelope"
)

// Planner answers a single user message.
type Planner interface {
	Handle(ctx context.Context, userText string) envelope.Envelope[string]
}

type TransitHandler struct {
	planner Planner
	timeout time.Duration
	log     *zap.Logger
}

func NewTransitHandler(planner Planner, timeout time.Duration, log *zap.Logger) *TransitHandler {
	return &TransitHandler{planner: planner, timeout: timeout, log: log}
}

type transitQueryReq struct {
	UID     string `json:"uid"`
	Message string `json:"message"`
}

// Query handles POST /api/transit/query. Pipeline failures are still 200: the
// envelope carries the message to show the user.
func (h *TransitHandler) Query(c *gin.Context) {
	var req transitQueryReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}

	req.UID = strings.TrimSpace(req.UID)
	req.Message = strings.TrimSpace(req.Message)
	if req.UID == "" || req.Message == "" {
		writeError(c, http.StatusBadRequest, "missing uid or message")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	res := h.planner.Handle(ctx, req.Message)
	h.log.Debug("transit query answered",
		zap.String("uid", req.UID),
		zap.Bool("ok", res.OK),
		zap.String("kind", string(res.Kind)),
	)
	writeJSON(c, http.StatusOK, res)
}
