package main

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/twilio/twilio-go/twiml"
)

// messageCreator is the part of the Twilio REST API the gateway uses.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioHandler implements Provider for Twilio
type TwilioHandler struct {
	BaseCarrierHandler
	api            messageCreator
	statusCallback string
}

// NewTwilioHandler builds the REST client once. Without credentials every send fails with
// ErrProviderNotConfigured.
func NewTwilioHandler(accountSID, authToken, statusCallback string) *TwilioHandler {
	h := &TwilioHandler{
		BaseCarrierHandler: BaseCarrierHandler{name: "twilio"},
		statusCallback:     statusCallback,
	}
	if accountSID != "" && authToken != "" {
		restClient := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		})
		h.api = restClient.Api
	}
	return h
}

// Configured reports whether credentials were supplied.
func (h *TwilioHandler) Configured() bool {
	return h.api != nil
}

func (h *TwilioHandler) Send(ctx context.Context, to, from, body string) (string, error) {
	if h.api == nil {
		return "", ErrProviderNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(from)
	params.SetBody(body)
	if h.statusCallback != "" {
		params.SetStatusCallback(h.statusCallback)
	}

	msg, err := h.api.CreateMessage(params)
	if err != nil {
		return "", twilioError(err)
	}
	if msg == nil || msg.Sid == nil || *msg.Sid == "" {
		return "", ErrMissingProviderID
	}
	return *msg.Sid, nil
}

func twilioError(err error) error {
	var restErr *client.TwilioRestError
	if errors.As(err, &restErr) {
		return &ProviderError{Status: restErr.Status, Code: restErr.Code, Message: restErr.Message}
	}
	return err
}

// RenderTwiML wraps reply in a single-message TwiML response.
func RenderTwiML(reply string) (string, error) {
	if reply == "" {
		return twiml.Messages(nil)
	}
	return twiml.Messages([]twiml.Element{&twiml.MessagingMessage{Body: reply}})
}

// WebhookValidator checks the X-Twilio-Signature header of provider callbacks.
type WebhookValidator struct {
	validator client.RequestValidator
	publicURL string
}

func NewWebhookValidator(authToken, publicURL string) *WebhookValidator {
	return &WebhookValidator{
		validator: client.NewRequestValidator(authToken),
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

// Validate reports whether r carries a valid signature for its form parameters.
// The request form must already be parsed.
func (v *WebhookValidator) Validate(r *http.Request) bool {
	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" {
		return false
	}
	params := make(map[string]string, len(r.PostForm))
	for k, vals := range r.PostForm {
		if len(vals) > 0 {
			params[k] = vals[0]
		}
	}
	return v.validator.Validate(v.publicURL+r.URL.RequestURI(), params, signature)
}
