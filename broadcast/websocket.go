package broadcast

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const maxClientMessage = 4096

// Handler upgrades every request to a WebSocket subscriber of h. Origins
// are not checked: dashboards are served from other local origins.
func Handler(h *Hub, log zerolog.Logger) http.Handler {
	up := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written the error response.
			log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
			return
		}
		conn.SetReadLimit(maxClientMessage)

		err = h.Serve(conn)
		if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
			log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("subscriber connection ended")
		}
	})
}
