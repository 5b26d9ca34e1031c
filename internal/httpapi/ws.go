package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/wardenlabs/warden/internal/hub"
	"github.com/wardenlabs/warden/internal/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API serves a trusted operator UI; origin enforcement belongs
	// to the deployment's proxy.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleRunSocket bridges the run's hub stream onto a WebSocket. Client
// frames are read and discarded as keep-alives. The socket closes when
// the client goes away, the subscriber is evicted for falling behind,
// or the run reaches a terminal status (unless keep_open_after_terminal
// is set).
func (s *Server) handleRunSocket(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	if _, err := s.st.GetRun(r.Context(), runID); err != nil {
		writeStoreError(w, err)
		return
	}
	keepOpen := r.URL.Query().Get("keep_open_after_terminal") == "true"

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade wrote the handshake error itself.
		return
	}
	defer conn.Close()

	sub := s.hub.Subscribe(runID)
	defer s.hub.Unsubscribe(sub)

	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-clientGone:
			return
		case msg, ok := <-sub.C():
			if !ok {
				// Evicted for falling behind.
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "subscriber evicted"),
					closeDeadline())
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
			if msg.Kind == hub.KindStatus && !keepOpen && terminalStatus(msg.Data) {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"),
					closeDeadline())
				return
			}
		}
	}
}

func closeDeadline() time.Time {
	return time.Now().Add(time.Second)
}

func terminalStatus(data any) bool {
	m, ok := data.(map[string]any)
	if !ok {
		return false
	}
	status, _ := m["status"].(string)
	return model.RunStatus(status).Terminal()
}
