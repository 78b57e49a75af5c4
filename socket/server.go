package socket

import (
	"log"

	socketio "github.com/googollee/go-socket.io"
)

// NewServer builds the realtime server. Clients emit "join" with their user id
// after connecting; every push targets the per-user room so a user receives
// events on all of their devices.
func NewServer() *socketio.Server {
	server := socketio.NewServer(nil)

	server.OnConnect("/", func(conn socketio.Conn) error {
		log.Printf("ℹ️ Socket connected: %s", conn.ID())
		return nil
	})

	server.OnEvent("/", "join", func(conn socketio.Conn, userID string) {
		if userID == "" {
			return
		}
		conn.Join(userID)
		log.Printf("✅ Socket %s joined room %s", conn.ID(), userID)
	})

	server.OnEvent("/", "leave", func(conn socketio.Conn, userID string) {
		if userID == "" {
			return
		}
		conn.Leave(userID)
	})

	server.OnError("/", func(conn socketio.Conn, err error) {
		log.Printf("❌ Socket error: %v", err)
	})

	server.OnDisconnect("/", func(conn socketio.Conn, reason string) {
		log.Printf("ℹ️ Socket disconnected: %s (%s)", conn.ID(), reason)
	})

	return server
}
