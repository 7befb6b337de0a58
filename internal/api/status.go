package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const statusOK = "ok"

func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error) {
	if h.log != nil && err != nil {
		h.log.Errorw(logKey, "err", err)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": statusOK})
}

func (h *Handler) status(c *gin.Context) {
	st, err := h.ctrl.Status(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to load status", "status_failed", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// getEvents lists controller events, filtered by the 'from'/'to' (RFC3339,
// 'YYYY-MM-DD HH:MM:SS', or 'YYYY-MM-DD') and 'type' query parameters.
func (h *Handler) getEvents(c *gin.Context) {
	f, err := parseEventFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	events := h.ctrl.Events(f)
	c.JSON(http.StatusOK, gin.H{"count": len(events), "events": events})
}

// trigger forces an immediate conditions refresh and FSM tick. Requires a
// bearer token obtained from /control/token.
func (h *Handler) trigger(c *gin.Context) {
	if err := h.ctrl.TriggerEvaluation(c.Request.Context()); err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, "evaluation failed", "trigger_failed", err)
		return
	}
	st, err := h.ctrl.Status(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "triggered"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "triggered", "state": st})
}
