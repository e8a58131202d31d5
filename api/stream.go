package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"devboard/bus"
)

// streamEvents serves the live-update stream over SSE. Each connection joins
// the caller's own room; events are written as named SSE events in the order
// the bus delivers them.
func streamEvents(auth Authenticator, stream Streamer, cache ActivityCache) echo.HandlerFunc {
	return func(c echo.Context) error {
		// EventSource cannot set headers, so the token may come via query.
		token := c.QueryParam("token")
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if authHeader == "" && token != "" {
			authHeader = "Bearer " + token
		}
		userID, err := auth.UserIDFromAuthHeader(authHeader)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}
		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		c.Response().WriteHeader(http.StatusOK)
		// Write an initial comment to ensure headers are flushed to the client.
		if _, err := c.Response().Write([]byte(":ok\n\n")); err != nil {
			return nil
		}
		flusher.Flush()

		connID := uuid.NewString()
		ch := stream.Connect(connID)
		stream.Join(connID, bus.RoomForUser(userID))
		defer stream.Disconnect(connID)

		ctx := c.Request().Context()
		if snap, ok := cache.LoadActivity(ctx, userID); ok {
			if err := writeSSE(c, flusher, bus.EventActivityUpdate, mustJSON(snap)); err != nil {
				return nil
			}
		}

		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case ev := <-ch:
				if err := writeSSE(c, flusher, ev.Name, ev.Data); err != nil {
					return nil
				}
			case <-ticker.C:
				// Comment heartbeat keeps intermediaries from closing the stream.
				if _, err := c.Response().Write([]byte(":keepalive\n\n")); err != nil {
					return nil
				}
				flusher.Flush()
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}

func writeSSE(c echo.Context, flusher http.Flusher, name string, data []byte) error {
	if _, err := c.Response().Write([]byte("event: " + name + "\n")); err != nil {
		return err
	}
	if _, err := c.Response().Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := c.Response().Write(data); err != nil {
		return err
	}
	if _, err := c.Response().Write([]byte("\n\n")); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
