package api

import (
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// installWS streams install progress events to the UI. The connection closes
// after a terminal event (done or failure) or when the client goes away.
func (api *API) installWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		api.logger.Error("failed to upgrade install ws", "err", err)

		return
	}
	defer conn.Close()

	events, cancel := api.supervisor.SubscribeProgress()
	defer cancel()

	// drain client frames so pings and close frames are processed
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()

				return
			}
		}
	}()

	for event := range events {
		if err := conn.WriteJSON(event); err != nil {
			return
		}

		if event.Done {
			return
		}
	}
}
