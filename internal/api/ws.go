package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/empsgit/tram-monitor-ekb/domain"
)

// handleWebSocket serves the persistent /ws/vehicles subscription described
// in spec.md §6: a read-only stream of snapshot/update frames. Grounded on
// drobiAlex-wabus-backend's use of coder/websocket for a real-time transit
// backend, in the absence of any websocket library in the teacher itself.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		if s.log != nil {
			s.log.Warn("websocket accept failed", zap.Error(err))
		}
		return
	}
	defer conn.CloseNow()

	table := s.tracker.Current()
	current := make([]domain.VehicleState, 0, len(table.Vehicles))
	for _, v := range table.Vehicles {
		current = append(current, v)
	}

	sub := s.broadcaster.Subscribe(current, table.Diagnostics.GeneratedAt, time.Now())
	defer s.broadcaster.Unsubscribe(sub)

	// Detect client disconnects promptly: coder/websocket surfaces them as
	// a read error on the connection, so a background reader (the client
	// sends nothing, per spec.md §6) drives cancellation.
	readCtx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(readCtx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-readCtx.Done():
			return
		case frame, ok := <-sub.Frames():
			if !ok {
				return
			}
			payload, err := json.Marshal(frame)
			if err != nil {
				continue
			}
			writeCtx, cancelWrite := context.WithTimeout(r.Context(), 5*time.Second)
			err = conn.Write(writeCtx, websocket.MessageText, payload)
			cancelWrite()
			if err != nil {
				return
			}
		}
	}
}
