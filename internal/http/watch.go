package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"kiptrack/internal/services"
)

const (
	watchWriteWait  = 10 * time.Second
	watchPongWait   = 60 * time.Second
	watchPingPeriod = (watchPongWait * 9) / 10
	watchReadLimit  = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// handleWatch streams the student's summary over a websocket: once on
// connect and again after every change. Client messages are ignored.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	studentID := r.PathValue("id")
	summaries, err := s.deps.Watcher.Watch(ctx, studentID)
	if err != nil {
		errorFor(r.Context(), err).Write(w)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		slog.WarnContext(r.Context(), "Websocket upgrade failed", "student_id", studentID, "error", err)
		return
	}
	defer conn.Close()

	slog.InfoContext(r.Context(), "Watch started", "student_id", studentID)
	go readPump(conn, cancel)
	writePump(ctx, conn, summaries)
	slog.InfoContext(r.Context(), "Watch ended", "student_id", studentID)
}

// readPump drains client frames so control messages are processed, and
// cancels the watch when the connection drops.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(watchReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(watchPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(watchPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(ctx context.Context, conn *websocket.Conn, summaries <-chan services.Summary) {
	ticker := time.NewTicker(watchPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case summary, ok := <-summaries:
			if !ok {
				closeWatch(conn)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(watchWriteWait))
			if err := conn.WriteJSON(toSummaryJSON(summary)); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(watchWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			closeWatch(conn)
			return
		}
	}
}

func closeWatch(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(watchWriteWait))
}
