package ops

import (
	"context"
	"net/http"
	"time"

	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/platform/httpkit"

	"github.com/gin-gonic/gin"
)

type handler struct {
	queues  []QueueInspector
	cursors CursorLister
	health  HealthChecker
}

func (h *handler) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if h.health != nil {
		if err := h.health.Ping(ctx); err != nil {
			httpkit.Error(c, http.StatusServiceUnavailable, "store unreachable")
			return
		}
	}
	httpkit.OK(c, gin.H{"status": "ok"})
}

func (h *handler) queueStats(c *gin.Context) {
	q := h.findQueue(c.Param("name"))
	if q == nil {
		httpkit.Error(c, http.StatusNotFound, "unknown queue")
		return
	}

	stats, err := q.Stats(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"queue": q.Name(), "stats": stats})
}

func (h *handler) deadLetters(c *gin.Context) {
	q := h.findQueue(c.Param("name"))
	if q == nil {
		httpkit.Error(c, http.StatusNotFound, "unknown queue")
		return
	}

	records, err := q.DeadLetters(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"queue": q.Name(), "deadLetters": records})
}

func (h *handler) cancelJob(c *gin.Context) {
	q := h.findQueue(c.Param("name"))
	if q == nil {
		httpkit.Error(c, http.StatusNotFound, "unknown queue")
		return
	}

	if err := q.Cancel(c.Request.Context(), c.Param("id")); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"cancelled": c.Param("id")})
}

func (h *handler) listCursors(c *gin.Context) {
	cursors, err := h.cursors.List()
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"cursors": cursors})
}

func (h *handler) findQueue(name string) QueueInspector {
	for _, q := range h.queues {
		if q.Name() == name {
			return q
		}
	}
	return nil
}
