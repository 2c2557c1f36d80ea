package handlers

import (
	"embed"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mrarosh/Pear-code/pkg/types"
)

//go:embed static/index.html
var static embed.FS

type HealthHandler struct {
	started time.Time
	now     func() time.Time
}

func NewHealthHandler(started time.Time) *HealthHandler {
	return &HealthHandler{started: started, now: time.Now}
}

// GetHealth handles GET /health
func (h *HealthHandler) GetHealth(c *gin.Context) {
	now := h.now()
	c.JSON(http.StatusOK, types.HealthResponse{
		Status:    "OK",
		Timestamp: now.UTC().Format(timestampLayout),
		Uptime:    now.Sub(h.started).Seconds(),
	})
}

// Index handles GET /
func Index(c *gin.Context) {
	page, err := static.ReadFile("static/index.html")
	if err != nil {
		c.String(http.StatusInternalServerError, "page unavailable")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}
