package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"teamchat/internal/domain"
	"teamchat/internal/service"
)

// ChatHandler mantiene dependencias para los endpoints de mensajes de equipo.
type ChatHandler struct {
	logger   *zap.Logger
	messages *service.MessageService
}

// NewChatHandler crea una instancia de ChatHandler con dependencias necesarias.
func NewChatHandler(logger *zap.Logger, messages *service.MessageService) *ChatHandler {
	return &ChatHandler{
		logger:   logger,
		messages: messages,
	}
}

// ListMessages maneja GET /teams/:teamID/messages.
// El query param opcional "since" (RFC3339Nano) acota a mensajes posteriores.
func (h *ChatHandler) ListMessages(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return
	}

	var since *time.Time
	if raw := strings.TrimSpace(c.Query("since")); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			h.logger.Warn("invalid since cursor", zap.String("since", raw), zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since cursor"})
			return
		}
		since = &parsed
	}

	messages, err := h.messages.ListSince(c.Request.Context(), c.Param("teamID"), claims.UserID, since)
	if err != nil {
		h.logger.Error("list messages failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list messages"})
		return
	}
	if messages == nil {
		messages = []domain.Message{}
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// PostMessage maneja POST /teams/:teamID/messages.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return
	}

	var req struct {
		Body string `json:"body" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid post message request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	msg, err := h.messages.Post(c.Request.Context(), c.Param("teamID"), claims.UserID, claims.DisplayName, req.Body)
	if err != nil {
		if errors.Is(err, service.ErrMessageInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		h.logger.Error("create message failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not post message"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// DeleteMessage maneja DELETE /messages/:messageID?mode=mine|everyone.
func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return
	}

	mode := domain.DeleteMode(strings.TrimSpace(c.Query("mode")))
	if !mode.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid delete mode"})
		return
	}

	err := h.messages.Delete(c.Request.Context(), claims.UserID, c.Param("messageID"), mode)
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, service.ErrMessageInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
	case errors.Is(err, service.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
	case errors.Is(err, service.ErrMessageForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "only the author can delete for everyone"})
	default:
		h.logger.Error("delete message failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete message"})
	}
}
