package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"salechain/core/events"
)

const wsWriteTimeout = 10 * time.Second

// handleEventsWS streams committed events. Query parameters: cursor resumes
// after a previously seen sequence, type filters by event type prefix.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))
	prefix := strings.TrimSpace(r.URL.Query().Get("type"))
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ctx := conn.CloseRead(r.Context())
	if err := s.streamEvents(ctx, conn, cursor, prefix); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, cursor, prefix string) error {
	return s.node.Events().Follow(ctx, cursor, func(env events.Envelope) error {
		return writeEnvelope(ctx, conn, env, prefix)
	})
}

func writeEnvelope(ctx context.Context, conn *websocket.Conn, env events.Envelope, prefix string) error {
	if prefix != "" && !strings.HasPrefix(env.Event.Type, prefix) {
		return nil
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
