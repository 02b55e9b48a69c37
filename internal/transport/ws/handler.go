package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/TRob9/claude-github-buddy/internal/common/logger"
	"github.com/TRob9/claude-github-buddy/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The browser client is served from a different origin in
	// development; auth happens at the API gateway in front.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades stream requests and binds them to sessions.
type Handler struct {
	registry *session.Registry
	logger   *logger.Logger
}

// NewHandler creates the websocket handler.
func NewHandler(registry *session.Registry, log *logger.Logger) *Handler {
	return &Handler{registry: registry, logger: log}
}

// Stream handles GET /api/v1/sessions/:id/stream. The session id rides
// in the path; an unknown id creates the session lazily.
func (h *Handler) Stream(c *gin.Context) {
	sessionID := c.Param("id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session id is required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return
	}

	client := NewClient(conn, h.registry, sessionID, h.logger)
	go client.Run()
}
