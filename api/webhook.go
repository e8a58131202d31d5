package api

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"devboard/webhook"
)

// githubWebhook accepts GitHub webhook deliveries after verifying the
// HMAC signature against the shared secret.
func githubWebhook(secret string) echo.HandlerFunc {
	return func(c echo.Context) error {
		if secret == "" {
			return c.String(http.StatusServiceUnavailable, "webhooks not configured")
		}
		payload, err := io.ReadAll(io.LimitReader(c.Request().Body, requestBodyMaxSize))
		if err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		signature := c.Request().Header.Get("X-Hub-Signature-256")
		if !webhook.Verify(payload, signature, secret) {
			return c.String(http.StatusUnauthorized, "invalid signature")
		}
		log.Infof("webhook received: %s", c.Request().Header.Get("X-GitHub-Event"))
		return c.NoContent(http.StatusAccepted)
	}
}
