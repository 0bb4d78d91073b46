package api

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var chatUpgrader = websocket.Upgrader{
	ReadBufferSize:  8 * 1024,
	WriteBufferSize: 8 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type wsClientMessage struct {
	Type           string `json:"type"`
	UserID         string `json:"user_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Content        string `json:"content,omitempty"`
}

// handleChatWebsocket serves a persistent chat session over one websocket
// connection. The client opens with {"type":"start","user_id":...} or an
// existing conversation id, then sends {"type":"message","content":...}
// frames; each one produces a {"type":"response"} frame carrying the
// assistant turn.
func (h *Handler) handleChatWebsocket(c *gin.Context) {
	conn, err := chatUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warnf("chat websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	sendJSON := func(payload interface{}) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(payload)
	}

	sendError := func(message string, detail error) {
		errMsg := gin.H{"type": "error", "error": message}
		if detail != nil {
			errMsg["detail"] = detail.Error()
			h.logger.Warnf("chat websocket error: %s: %v", message, detail)
		}
		_ = sendJSON(errMsg)
	}

	ctx := c.Request.Context()
	conversationID := strings.TrimSpace(c.Query("conversation_id"))

	for {
		var msg wsClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warnf("chat websocket read failed: %v", err)
			}
			return
		}

		switch msg.Type {
		case "start":
			userID := strings.TrimSpace(msg.UserID)
			if userID == "" {
				sendError("user_id is required to start a conversation", nil)
				continue
			}

			conversation, err := h.chatService.CreateConversation(ctx, userID)
			if err != nil {
				sendError("failed to create conversation", err)
				continue
			}

			conversationID = conversation.ID
			if err := sendJSON(gin.H{"type": "conversation", "conversation_id": conversationID}); err != nil {
				return
			}

		case "message":
			target := strings.TrimSpace(msg.ConversationID)
			if target == "" {
				target = conversationID
			}
			if target == "" {
				sendError("no conversation started", nil)
				continue
			}
			if strings.TrimSpace(msg.Content) == "" {
				sendError("content is required", nil)
				continue
			}

			reply, err := h.chatService.GenerateResponse(ctx, target, msg.Content, true)
			if err != nil {
				sendError("failed to generate response", err)
				continue
			}

			if err := sendJSON(gin.H{
				"type":            "response",
				"conversation_id": target,
				"response":        reply,
			}); err != nil {
				return
			}

		default:
			sendError("unknown message type", nil)
		}
	}
}
