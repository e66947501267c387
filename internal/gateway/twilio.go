package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// TwilioGateway sends SMS through the Twilio Messages REST API.
type TwilioGateway struct {
	baseURL    string
	accountSID string
	authToken  string
	httpClient *http.Client
}

// twilioMessageResponse is the subset of the Messages API response we use.
type twilioMessageResponse struct {
	SID          string `json:"sid"`
	Status       string `json:"status"`
	ErrorCode    *int   `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// NewTwilioGateway creates a Twilio-backed gateway.
func NewTwilioGateway(baseURL, accountSID, authToken string) *TwilioGateway {
	return &TwilioGateway{
		baseURL:    strings.TrimRight(baseURL, "/"),
		accountSID: accountSID,
		authToken:  authToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SendSMS sends a single message. The context carries the per-delivery
// timeout set by the caller.
func (g *TwilioGateway) SendSMS(ctx context.Context, from, to, body string) (*SendResult, error) {
	form := url.Values{}
	form.Set("From", from)
	form.Set("To", to)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", g.baseURL, g.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(g.accountSID, g.authToken)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	var decoded twilioMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("twilio API returned status %d: %s", resp.StatusCode, decoded.ErrorMessage)
	}

	result := &SendResult{
		SID:          decoded.SID,
		Status:       decoded.Status,
		ErrorMessage: decoded.ErrorMessage,
	}
	if decoded.ErrorCode != nil {
		result.ErrorCode = *decoded.ErrorCode
	}

	log.Debug().Str("to", to).Str("sid", result.SID).Str("status", result.Status).Msg("SMS submitted to gateway")
	return result, nil
}

// SignatureValidator verifies the X-Twilio-Signature header on inbound
// webhooks: HMAC-SHA1 over the full webhook URL concatenated with the sorted
// POST parameters, keyed with the account auth token, base64 encoded.
type SignatureValidator struct {
	authToken string
}

// NewSignatureValidator creates a validator for the given auth token.
func NewSignatureValidator(authToken string) *SignatureValidator {
	return &SignatureValidator{authToken: authToken}
}

// Validate reports whether signature matches the payload for webhookURL.
func (v *SignatureValidator) Validate(webhookURL string, params url.Values, signature string) bool {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf strings.Builder
	buf.WriteString(webhookURL)
	for _, k := range keys {
		buf.WriteString(k)
		buf.WriteString(params.Get(k))
	}

	mac := hmac.New(sha1.New, []byte(v.authToken))
	mac.Write([]byte(buf.String()))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
