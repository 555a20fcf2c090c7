package websocket

import (
	"encoding/json"

	"github.com/gofiber/websocket/v2"
)

// ServeWs attaches a socket to a session. initial, when non-nil, is the
// first frame the socket receives.
func ServeWs(hub *Hub, c *websocket.Conn, sessionID string, initial []byte) {
	client := &Client{Hub: hub, Conn: c, SessionID: sessionID, Send: make(chan []byte, 256)}
	if initial != nil {
		client.Send <- initial
	}
	client.Hub.register <- client

	go client.writePump()
	client.readPump()
}

// EncodeFrame builds the bytes of a single frame, for initial payloads.
func EncodeFrame(frameType string, data interface{}) ([]byte, error) {
	return json.Marshal(Frame{Type: frameType, Data: data})
}
