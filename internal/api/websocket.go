package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// WebSocket message types for the notification stream
const (
	// Client -> Server messages
	MsgTypePing = "ping"

	// Server -> Client messages
	MsgTypeConnected    = "connected"
	MsgTypeNotification = "notification"
	MsgTypePong         = "pong"
	MsgTypeError        = "error"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// WebSocket message structure
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// NotificationHandlerImpl implements the NotificationHandler interface
type NotificationHandlerImpl struct {
	source         NotificationSource
	upgrader       websocket.Upgrader
	maxMessageSize int64
}

// NewNotificationHandler creates a notification handler. maxMessageSize bounds
// inbound client frames in bytes.
func NewNotificationHandler(source NotificationSource, maxMessageSize int64) NotificationHandler {
	if maxMessageSize <= 0 {
		maxMessageSize = 64 * 1024
	}
	return &NotificationHandlerImpl{
		source: source,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow connections from dev server
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
		},
		maxMessageSize: maxMessageSize,
	}
}

// HandleListNotifications returns the recent notifications, oldest first
func (h *NotificationHandlerImpl) HandleListNotifications(c echo.Context) error {
	return c.JSON(http.StatusOK, h.source.Recent())
}

// HandleNotificationSocket upgrades to WebSocket and pushes every new notification
func (h *NotificationHandlerImpl) HandleNotificationSocket(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	notifications, cancel := h.source.Subscribe(16)
	defer cancel()

	fmt.Println("[WebSocket] Client connected for notifications")

	ws.SetReadLimit(h.maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(wsPongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	// The reader goroutine owns reads; replies to client messages are
	// written on this goroutine.
	replies := make(chan WSMessage, 4)
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			var msg WSMessage
			if err := ws.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					fmt.Printf("[WebSocket] Connection error: %v\n", err)
				}
				return
			}
			ws.SetReadDeadline(time.Now().Add(wsPongWait))

			reply := WSMessage{Type: MsgTypePong}
			if msg.Type != MsgTypePing {
				payload, _ := json.Marshal(map[string]string{"error": "unknown message type: " + msg.Type})
				reply = WSMessage{Type: MsgTypeError, Payload: payload}
			}
			select {
			case replies <- reply:
			default:
			}
		}
	}()

	if err := h.send(ws, WSMessage{Type: MsgTypeConnected}); err != nil {
		return nil
	}

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case n, ok := <-notifications:
			if !ok {
				return nil
			}
			payload, _ := json.Marshal(n)
			if err := h.send(ws, WSMessage{Type: MsgTypeNotification, ID: n.ID, Payload: payload}); err != nil {
				return nil
			}

		case reply := <-replies:
			if err := h.send(ws, reply); err != nil {
				return nil
			}

		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}

		case <-closed:
			fmt.Println("[WebSocket] Client disconnected")
			return nil

		case <-c.Request().Context().Done():
			return nil
		}
	}
}

func (h *NotificationHandlerImpl) send(ws *websocket.Conn, msg WSMessage) error {
	msg.Timestamp = time.Now().UnixMilli()
	ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return ws.WriteJSON(msg)
}
