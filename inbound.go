package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"bloodconnect-msggw/phone"
)

// fallbackReply answers a sender when the directory could not be read or written.
const fallbackReply = "We received your message and will process it shortly. Thank you for being a donor! ❤️"

// InboundReply is what the handler answers a sender with.
type InboundReply struct {
	Intent Intent
	Text   string
	Donor  *Donor
}

// InboundHandler turns one inbound provider message into exactly one reply.
type InboundHandler struct {
	Normalizer  *phone.Normalizer
	Directory   DonorDirectory
	Interpreter *Interpreter
	Recorder    Recorder
	Metrics     *GatewayMetrics
	LogManager  *LogManager
}

// Handle resolves the sender, applies any availability change and picks the reply.
//
// Unknown senders and unrecognized commands are replies, not errors. An invalid sender address
// returns phone.ErrInvalidInput and no reply. A directory fault returns the error together with
// a fallback reply, which the caller should still send.
func (h *InboundHandler) Handle(ctx context.Context, ev InboundEvent) (InboundReply, error) {
	logID := uuid.New().String()
	logFields := map[string]interface{}{
		"logID":      logID,
		"from":       ev.RawFrom,
		"messageSid": ev.MessageSid,
		"message":    PartiallyRedactMessage(ev.Body),
	}

	candidates, err := h.Normalizer.Normalize(ev.RawFrom)
	if err != nil {
		h.LogManager.SendLog(h.LogManager.BuildLog("Inbound", "InvalidSender", logrus.WarnLevel, logFields, err))
		return InboundReply{}, err
	}

	recordBestEffort(ctx, h.Recorder, h.LogManager, MessageRecord{
		LogID:      logID,
		Direction:  DirectionInbound,
		From:       ev.RawFrom,
		To:         ev.To,
		Body:       ev.Body,
		ProviderID: ev.MessageSid,
		Status:     "received",
		Timestamp:  time.Now(),
	})

	donor, err := FindByAnyPhone(ctx, h.Directory, candidates)
	switch {
	case errors.Is(err, ErrDonorNotFound):
		donor = nil
	case err != nil:
		return h.fallback(logFields, Intent{Kind: IntentUnrecognized}, fmt.Errorf("lookup sender: %w", err))
	}

	intent, text := h.Interpreter.Interpret(donor, ev.Body)
	if donor != nil {
		logFields["donorID"] = donor.ID
	}
	logFields["intent"] = string(intent.Kind)

	if available, ok := intent.Mutation(); ok {
		if err := h.Directory.SetAvailability(ctx, donor.ID, available); err != nil {
			return h.fallback(logFields, intent, fmt.Errorf("update availability: %w", err))
		}
		donor.IsAvailable = available
	}

	h.Metrics.ObserveInbound(intent.Kind, "replied")
	h.LogManager.SendLog(h.LogManager.BuildLog("Inbound", "Replied", logrus.InfoLevel, logFields))

	return InboundReply{Intent: intent, Text: text, Donor: donor}, nil
}

func (h *InboundHandler) fallback(logFields map[string]interface{}, intent Intent, err error) (InboundReply, error) {
	h.Metrics.ObserveInbound(intent.Kind, "fault")
	h.LogManager.SendLog(h.LogManager.BuildLog("Inbound", "DirectoryFault", logrus.ErrorLevel, logFields, err))
	return InboundReply{Intent: intent, Text: fallbackReply}, err
}
