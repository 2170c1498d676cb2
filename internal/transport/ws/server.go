// Package ws implements the WebSocket transport: one connection per session,
// exchanging JSON messages with the Session/Task Manager. The message loop
// follows gorilla/websocket's own documented half-duplex pattern (one reader
// goroutine, one writer goroutine fed by a channel).
package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"goa.design/clue/log"

	"github.com/solace-ai/orchestrator/internal/plan"
	"github.com/solace-ai/orchestrator/internal/session"
)

// inMessage is the wire shape of every client->server message.
type inMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Request   string `json:"request,omitempty"`
}

// outMessage is the wire shape of every server->client message.
type outMessage struct {
	Type          string     `json:"type"`
	InteractionID string     `json:"interaction_id,omitempty"`
	Plan          *plan.Plan `json:"plan,omitempty"`
	StepResult    any        `json:"step_result,omitempty"`
	Reply         *plan.Reply `json:"reply,omitempty"`
	Error         string     `json:"error,omitempty"`
}

// Server upgrades HTTP connections to WebSocket and bridges them to a
// session.Manager.
type Server struct {
	manager  *session.Manager
	upgrader websocket.Upgrader
}

// New constructs a Server.
func New(manager *session.Manager) *Server {
	return &Server{manager: manager, upgrader: websocket.Upgrader{}}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf(ctx, "ws: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	out := make(chan outMessage, 16)
	done := make(chan struct{})
	go s.writeLoop(conn, out, done)
	defer close(done)

	for {
		var msg inMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf(ctx, "ws: read error: %v", err)
			}
			return
		}
		s.handle(ctx, msg, out)
	}
}

func (s *Server) writeLoop(conn *websocket.Conn, out <-chan outMessage, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case msg := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}

func (s *Server) handle(ctx context.Context, msg inMessage, out chan<- outMessage) {
	switch msg.Type {
	case "request":
		s.handleRequest(ctx, msg, out)
	case "cancel":
		s.manager.Cancel(msg.SessionID)
	case "clear":
		if err := s.manager.Clear(ctx, msg.SessionID); err != nil {
			out <- outMessage{Type: "error", Error: err.Error()}
		}
	default:
		out <- outMessage{Type: "error", Error: "unknown message type: " + msg.Type}
	}
}

func (s *Server) handleRequest(ctx context.Context, msg inMessage, out chan<- outMessage) {
	err := s.manager.Submit(ctx, msg.SessionID, msg.Request, func(tc session.TaskComplete) {
		if tc.Err != nil {
			out <- outMessage{Type: "error", Error: tc.Err.Error()}
			return
		}
		reply := tc.Reply
		out <- outMessage{Type: "reply", Reply: &reply}
	})
	if err != nil {
		out <- outMessage{Type: "error", Error: err.Error()}
	}
}
