package api

import (
	"net/http"
	"time"

	"github.com/UkralStul/content-service/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const (
	streamBuffer = 16
	writeWait    = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamComments отдаёт по websocket события треда комментариев поста.
// Клиент ничего не присылает; чтение нужно только чтобы заметить закрытие соединения.
func (s *Server) streamComments(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "id")
	if _, err := s.Engine.Comments(r.Context(), postID); err != nil {
		s.writeError(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade уже записал ответ клиенту
		s.Log.Debug("websocket upgrade failed", "post_id", postID, "error", err)
		return
	}
	defer conn.Close()

	events, cancel := s.Observer.Subscribe(postID, streamBuffer)
	defer cancel()
	metrics.SubscriberConnected()
	defer metrics.SubscriberDisconnected()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				s.Log.Debug("websocket write failed", "post_id", postID, "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
