package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"nhooyr.io/websocket"

	"gregoryjjb/pinloop/loop"
	"gregoryjjb/pinloop/pubsub"
)

// createWebsocketHandler streams every dispatched callback to the client as
// a JSON text message. Clients that fall behind lose messages rather than
// slowing the dispatcher.
func createWebsocketHandler(events *pubsub.Pubsub[loop.Dispatch]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Subscribe before the handshake completes so nothing published
		// after the client sees the upgrade is missed.
		id, ch := events.Subscribe()
		defer events.Unsubscribe(id)

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			http.Error(w, fmt.Sprintf("websocket upgrade failed: %s", err), http.StatusInternalServerError)
			return
		}
		defer c.Close(websocket.StatusInternalError, "the sky is falling")

		// Nothing is read from clients; this only notices them going away.
		ctx := c.CloseRead(r.Context())

		for {
			select {
			case <-ctx.Done():
				c.Close(websocket.StatusNormalClosure, "")
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				js, err := json.Marshal(msg)
				if err != nil {
					log.Err(err).Msg("Failed to marshal dispatch for websocket")
					continue
				}
				if err := writeTimeout(ctx, 5*time.Second, c, js); err != nil {
					log.Debug().Err(err).Msg("Websocket write failed, dropping client")
					return
				}
			}
		}
	}
}

func writeTimeout(ctx context.Context, timeout time.Duration, c *websocket.Conn, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return c.Write(ctx, websocket.MessageText, msg)
}
