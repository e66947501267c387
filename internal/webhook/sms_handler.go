package webhook

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// emptyTwiML acknowledges a webhook without instructing the provider to do
// anything further.
const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// SignatureVerifier checks the authenticity header the SMS provider attaches
// to webhook requests.
type SignatureVerifier interface {
	Validate(webhookURL string, params url.Values, signature string) bool
}

// SMSWebhookHandler receives inbound SMS events from the gateway provider.
type SMSWebhookHandler struct {
	router     *InboundRouter
	verifier   SignatureVerifier
	webhookURL string
}

// NewSMSWebhookHandler creates a webhook handler. webhookURL is the public
// URL the provider posts to, required for signature verification.
func NewSMSWebhookHandler(router *InboundRouter, verifier SignatureVerifier, webhookURL string) *SMSWebhookHandler {
	return &SMSWebhookHandler{
		router:     router,
		verifier:   verifier,
		webhookURL: webhookURL,
	}
}

// HandleInboundSMS processes an inbound SMS webhook
// @Summary Process inbound SMS webhook
// @Description Receive an inbound SMS event from the gateway provider and route it to its conversation
// @Tags webhook
// @Accept x-www-form-urlencoded
// @Produce xml
// @Success 200 {string} string "TwiML acknowledgement"
// @Failure 403 {object} map[string]string
// @Router /webhook/sms [post]
func (h *SMSWebhookHandler) HandleInboundSMS(c echo.Context) error {
	if err := c.Request().ParseForm(); err != nil {
		log.Warn().Err(err).Msg("inbound webhook with unparseable form")
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid form data"})
	}
	params := c.Request().PostForm

	signature := c.Request().Header.Get("X-Twilio-Signature")
	if !h.verifier.Validate(h.webhookURL, params, signature) {
		log.Warn().Str("remote", c.RealIP()).Msg("inbound webhook with invalid signature rejected")
		return c.JSON(http.StatusForbidden, map[string]string{"error": "invalid signature"})
	}

	from := params.Get("From")
	to := params.Get("To")
	body := params.Get("Body")
	messageSID := params.Get("MessageSid")

	// Routing failures must not bubble up as 5xx: the provider would retry
	// delivery indefinitely. Unmatched and errored events alike are logged
	// and acknowledged.
	routed, err := h.router.Route(c.Request().Context(), from, to, body, messageSID)
	if err != nil {
		log.Error().Err(err).Str("from", from).Str("message_sid", messageSID).Msg("inbound routing error, acknowledging anyway")
	} else if routed == nil {
		log.Info().Str("from", from).Str("to", to).Str("message_sid", messageSID).Msg("inbound sms acknowledged without a matching conversation")
	}

	return c.Blob(http.StatusOK, "text/xml", []byte(emptyTwiML))
}
