package fetchctl

import (
	"net/http"

	"xrepost/pkg/pipeline"

	"github.com/gin-gonic/gin"
)

// Controller is the control surface of the fleet scheduler.
type Controller interface {
	Start() bool
	Stop() pipeline.StopResult
	Status() pipeline.State
}

// Handler serves start, stop and status of the collection loop.
type Handler struct {
	Fleet Controller
}

func NewHandler(fleet Controller) *Handler {
	return &Handler{Fleet: fleet}
}

// Start launches the loop and returns at once.
func (h *Handler) Start(c *gin.Context) {
	if !h.Fleet.Start() {
		c.JSON(http.StatusOK, gin.H{"status": "already running"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "started"})
}

// Stop blocks up to the grace period while the current tick drains.
func (h *Handler) Stop(c *gin.Context) {
	switch h.Fleet.Stop() {
	case pipeline.StopNotRunning:
		c.JSON(http.StatusOK, gin.H{"status": "not running"})
	case pipeline.StopTimedOut:
		c.JSON(http.StatusOK, gin.H{"status": "stopped", "drained": false})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "stopped", "drained": true})
	}
}

// Status reports running or idle. A stopping fleet still counts as running.
func (h *Handler) Status(c *gin.Context) {
	status := "idle"
	if h.Fleet.Status() != pipeline.StateIdle {
		status = "running"
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}
