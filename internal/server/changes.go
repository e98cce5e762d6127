package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"studyplan/internal/events"
)

const changeWriteTimeout = 5 * time.Second

// handleChanges streams the caller's committed changes over a websocket.
// Messages are best effort; a client that falls behind should re-list.
func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	owner, authErr := ownerFromContext(r.Context())
	if authErr != nil {
		respondStatusError(w, authErr)
		return
	}
	// subscribe before the handshake completes so nothing committed after
	// the client sees the upgrade is missed
	sub := s.app.Hub.Subscribe(events.Filter{Owner: owner}, 64)
	defer sub.Close()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		s.logger.Printf("changes: accept for %s failed: %v", owner, err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "unexpected close")

	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-sub.C:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := writeChange(ctx, conn, c); err != nil {
				return
			}
		}
	}
}

func writeChange(ctx context.Context, conn *websocket.Conn, c events.Change) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, changeWriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
