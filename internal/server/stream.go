package server

import (
	"context"
	"log"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"gigboard/internal/notify"
)

// registerNotificationStream exposes a per-user SSE feed. A freelancer keeps
// this open to hear about hires the moment they happen; anything pushed while
// they are away lands in the durable notification list instead.
func registerNotificationStream(api huma.API, hub *notify.Hub) {
	if hub == nil {
		return
	}
	sse.Register(api, huma.Operation{
		OperationID: "notification-stream",
		Method:      http.MethodGet,
		Path:        "/me/notifications/stream",
		Summary:     "Live notification stream",
	}, map[string]any{
		"hired": notify.Event{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return
		}
		ch, cancel := hub.Subscribe(userID)
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if err := send.Data(evt); err != nil {
					log.Printf("notification stream: send to %s: %v", userID, err)
					return
				}
			}
		}
	})
}
