package main

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/kataras/iris/v12"
	"github.com/sirupsen/logrus"

	"bloodconnect-msggw/phone"
)

// newWebApp registers every HTTP route on a fresh iris application.
func (gateway *Gateway) newWebApp() *iris.Application {
	app := iris.New()
	app.Logger().SetLevel("warn")

	app.Get("/health", gateway.webHealthCheck)

	whatsapp := app.Party("/api/whatsapp")
	whatsapp.Post("/webhook", gateway.webInbound)
	whatsapp.Post("/status", gateway.webStatusCallback)

	app.Post("/api/send-whatsapp", gateway.basicAuthMiddleware, gateway.webSend)
	app.Get("/api/send-whatsapp", gateway.basicAuthMiddleware, gateway.webProviderStatus)

	return app
}

// basicAuthMiddleware enforces Basic Authentication using the configured API key as password.
// Operator routes are open when no key is configured.
func (gateway *Gateway) basicAuthMiddleware(ctx iris.Context) {
	expectedAPIKey := gateway.Config.APIKey
	if expectedAPIKey == "" {
		ctx.Next()
		return
	}

	authHeader := ctx.GetHeader("Authorization")
	if authHeader == "" {
		gateway.unauthorized(ctx, "Authorization header missing")
		return
	}

	const prefix = "Basic "
	if !strings.HasPrefix(authHeader, prefix) {
		gateway.unauthorized(ctx, "Invalid Authorization header format")
		return
	}

	decodedBytes, err := base64.StdEncoding.DecodeString(authHeader[len(prefix):])
	if err != nil {
		gateway.unauthorized(ctx, "Failed to decode credentials")
		return
	}

	// username is ignored; the API key is the password
	_, apiKey, ok := strings.Cut(string(decodedBytes), ":")
	if !ok {
		gateway.unauthorized(ctx, "Invalid credentials format")
		return
	}

	if subtle.ConstantTimeCompare([]byte(apiKey), []byte(expectedAPIKey)) != 1 {
		gateway.unauthorized(ctx, "Invalid API key")
		return
	}

	ctx.Next()
}

// unauthorized responds with a 401 status and a WWW-Authenticate header
func (gateway *Gateway) unauthorized(ctx iris.Context, message string) {
	gateway.LogManager.SendLog(gateway.LogManager.BuildLog(
		"Web.Auth",
		message,
		logrus.WarnLevel,
		map[string]interface{}{
			"client_ip": ctx.RemoteAddr(),
		},
	))

	ctx.Header("WWW-Authenticate", `Basic realm="Restricted"`)
	ctx.StatusCode(http.StatusUnauthorized)
	ctx.WriteString("Unauthorized")
}

// webInbound answers a provider's inbound-message webhook with a TwiML reply.
func (gateway *Gateway) webInbound(ctx iris.Context) {
	start := time.Now()
	outcome := "replied"
	defer func() {
		gateway.Metrics.ObserveWebhookLatency(outcome, time.Since(start).Seconds())
	}()

	if err := ctx.Request().ParseForm(); err != nil {
		outcome = "bad_request"
		ctx.StatusCode(http.StatusBadRequest)
		ctx.WriteString("invalid form body")
		return
	}

	if gateway.Validator != nil && !gateway.Validator.Validate(ctx.Request()) {
		outcome = "forbidden"
		gateway.LogManager.SendLog(gateway.LogManager.BuildLog(
			"Web.Inbound",
			"InvalidSignature",
			logrus.WarnLevel,
			map[string]interface{}{
				"client_ip": ctx.RemoteAddr(),
			},
		))
		ctx.StatusCode(http.StatusForbidden)
		ctx.WriteString("invalid signature")
		return
	}

	// media-only messages carry an empty Body, so only a missing field is rejected
	if _, ok := ctx.Request().PostForm["Body"]; !ok {
		outcome = "bad_request"
		ctx.StatusCode(http.StatusBadRequest)
		ctx.WriteString("Body is required")
		return
	}

	ev := InboundEvent{
		RawFrom:    ctx.FormValue("From"),
		To:         ctx.FormValue("To"),
		Body:       ctx.FormValue("Body"),
		MessageSid: ctx.FormValue("MessageSid"),
	}
	if strings.TrimSpace(ev.RawFrom) == "" {
		outcome = "bad_request"
		ctx.StatusCode(http.StatusBadRequest)
		ctx.WriteString("From is required")
		return
	}

	reply, err := gateway.Inbound.Handle(ctx.Request().Context(), ev)
	if errors.Is(err, phone.ErrInvalidInput) {
		outcome = "bad_request"
		ctx.StatusCode(http.StatusBadRequest)
		ctx.WriteString("invalid sender")
		return
	}
	if err != nil {
		// the fallback reply still goes out
		outcome = "fault"
	}

	twimlXML, err := RenderTwiML(reply.Text)
	if err != nil {
		outcome = "render_error"
		gateway.LogManager.SendLog(gateway.LogManager.BuildLog("Web.Inbound", "RenderError", logrus.ErrorLevel, nil, err))
		ctx.StatusCode(http.StatusInternalServerError)
		ctx.WriteString("failed to render reply")
		return
	}

	ctx.ContentType("application/xml")
	ctx.StatusCode(http.StatusOK)
	ctx.WriteString(twimlXML)
}

// webStatusCallback logs a provider delivery-status callback. Donor state is never touched.
func (gateway *Gateway) webStatusCallback(ctx iris.Context) {
	rec := MessageRecord{
		Direction:  DirectionStatus,
		To:         ctx.FormValue("To"),
		ProviderID: ctx.FormValue("MessageSid"),
		Status:     ctx.FormValue("MessageStatus"),
		ErrorText:  ctx.FormValue("ErrorCode"),
		Timestamp:  time.Now(),
	}
	gateway.Metrics.ObserveStatusCallback(rec.Status)

	fields := map[string]interface{}{
		"messageSid": rec.ProviderID,
		"status":     rec.Status,
		"to":         rec.To,
	}
	if gateway.Recorder != nil {
		if err := gateway.Recorder.Record(ctx.Request().Context(), rec); err != nil {
			gateway.LogManager.SendLog(gateway.LogManager.BuildLog("Web.Status", "RecordError", logrus.ErrorLevel, fields, err))
			ctx.StatusCode(http.StatusInternalServerError)
			ctx.JSON(iris.Map{"error": "Callback Failed"})
			return
		}
	}

	gateway.LogManager.SendLog(gateway.LogManager.BuildLog("Web.Status", "StatusUpdate", logrus.InfoLevel, fields))
	ctx.JSON(iris.Map{"success": true})
}

type sendRequest struct {
	PhoneNumber string          `json:"phoneNumber"`
	Message     string          `json:"message"`
	Recipients  *[]OutboundItem `json:"recipients"`
}

type sendResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type bulkResponse struct {
	Success bool `json:"success"`
	OutboundResult
}

// webSend sends one message ({phoneNumber, message}) or a broadcast
// ({recipients: [{phoneNumber, message}], message}). A recipient without its own message
// gets the top-level one.
func (gateway *Gateway) webSend(ctx iris.Context) {
	var req sendRequest
	if err := ctx.ReadJSON(&req); err != nil {
		ctx.StatusCode(http.StatusBadRequest)
		ctx.JSON(sendResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}

	if req.PhoneNumber != "" && req.Message != "" && req.Recipients == nil {
		err := gateway.Dispatcher.Send(ctx.Request().Context(), OutboundItem{Recipient: req.PhoneNumber, Message: req.Message})
		if err != nil {
			ctx.StatusCode(http.StatusInternalServerError)
			ctx.JSON(sendResponse{Error: err.Error()})
			return
		}
		ctx.JSON(sendResponse{Success: true, Message: "message sent"})
		return
	}

	if req.Recipients != nil {
		items := make([]OutboundItem, 0, len(*req.Recipients))
		for _, item := range *req.Recipients {
			if strings.TrimSpace(item.Message) == "" {
				item.Message = req.Message
			}
			if strings.TrimSpace(item.Message) == "" {
				ctx.StatusCode(http.StatusBadRequest)
				ctx.JSON(sendResponse{Error: "No message content provided for bulk send"})
				return
			}
			items = append(items, item)
		}

		result := gateway.Dispatcher.DispatchBulk(ctx.Request().Context(), items)
		ctx.JSON(bulkResponse{Success: result.FailureCount == 0, OutboundResult: result})
		return
	}

	ctx.StatusCode(http.StatusBadRequest)
	ctx.JSON(sendResponse{Error: "Invalid request. Provide either phoneNumber+message or recipients array"})
}

type configuredProvider interface {
	Configured() bool
}

// webProviderStatus reports whether outbound sends can reach the provider.
func (gateway *Gateway) webProviderStatus(ctx iris.Context) {
	ready := gateway.Provider != nil && gateway.Config.SenderNumber() != ""
	if cp, ok := gateway.Provider.(configuredProvider); ok && !cp.Configured() {
		ready = false
	}

	status := iris.Map{
		"ready":   ready,
		"channel": gateway.Config.Channel,
	}
	if gateway.Provider != nil {
		status["provider"] = gateway.Provider.Name()
	}
	if !ready {
		status["error"] = ErrProviderNotConfigured.Error()
	}
	if gateway.Stats != nil {
		since := time.Now().Add(-24 * time.Hour)
		counts := iris.Map{}
		for _, direction := range []string{DirectionOutbound, DirectionInbound} {
			n, err := gateway.Stats.CountByDirection(ctx.Request().Context(), direction, since)
			if err != nil {
				gateway.LogManager.SendLog(gateway.LogManager.BuildLog("Web.ProviderStatus", "CountError", logrus.WarnLevel, nil, err))
				continue
			}
			counts[direction] = n
		}
		status["last24h"] = counts
	}
	ctx.JSON(iris.Map{"status": status})
}

func (gateway *Gateway) webHealthCheck(ctx iris.Context) {
	ctx.StatusCode(http.StatusOK)
	ctx.JSON(iris.Map{"status": "ok"})
}
