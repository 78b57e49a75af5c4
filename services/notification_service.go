package services

import (
	"log"

	socketio "github.com/googollee/go-socket.io"
)

// Notifier delivers fire-and-forget events to a user's connected clients.
// Delivery failure must never affect the state transition that triggered it,
// so the interface has no error return.
type Notifier interface {
	Notify(userID, event string, payload map[string]interface{})
}

// SocketNotifier broadcasts events to the per-user Socket.IO room. Clients
// join their own room after connecting; offline users simply miss the event.
type SocketNotifier struct {
	Server *socketio.Server
}

func (n *SocketNotifier) Notify(userID, event string, payload map[string]interface{}) {
	if n.Server == nil {
		return
	}
	if ok := n.Server.BroadcastToRoom("/", userID, event, payload); !ok {
		log.Printf("ℹ️ No connected clients for user %s, dropping %s event", userID, event)
	}
}

// notify is the nil-safe helper services use after a commit.
func notify(n Notifier, userID, event string, payload map[string]interface{}) {
	if n == nil || userID == "" {
		return
	}
	n.Notify(userID, event, payload)
}
