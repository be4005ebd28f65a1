package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"vaultchain/core/events"
)

const wsWriteTimeout = 10 * time.Second

// streamEvents upgrades to a websocket and pushes committed events, optionally
// filtered by type, starting after ?cursor=.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))
	eventType := strings.TrimSpace(r.URL.Query().Get("type"))
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ctx := conn.CloseRead(r.Context())
	if err := s.pumpEvents(ctx, conn, cursor, eventType); err != nil {
		if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) pumpEvents(ctx context.Context, conn *websocket.Conn, cursor, eventType string) error {
	updates, cancel, backlog := s.app.Feed.Subscribe(cursor)
	defer cancel()

	for _, update := range backlog {
		if err := writeUpdate(ctx, conn, update, eventType); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update := <-updates:
			if err := writeUpdate(ctx, conn, update, eventType); err != nil {
				return err
			}
		}
	}
}

func writeUpdate(ctx context.Context, conn *websocket.Conn, update events.Update, eventType string) error {
	if eventType != "" && update.Event.Type != eventType {
		return nil
	}
	data, err := json.Marshal(update)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
