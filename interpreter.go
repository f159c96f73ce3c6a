package main

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// IntentKind enumerates what an inbound message asks for.
type IntentKind string

const (
	IntentSetAvailable   IntentKind = "set_available"
	IntentSetUnavailable IntentKind = "set_unavailable"
	IntentQueryStatus    IntentKind = "query_status"
	IntentGreeting       IntentKind = "greeting"
	IntentUnrecognized   IntentKind = "unrecognized"
)

// Intent is the classified meaning of an inbound body.
type Intent struct {
	Kind          IntentKind
	UnknownSender bool
}

// Mutation returns the availability the intent sets, and whether it sets one at all.
func (i Intent) Mutation() (available bool, ok bool) {
	switch i.Kind {
	case IntentSetAvailable:
		return true, true
	case IntentSetUnavailable:
		return false, true
	default:
		return false, false
	}
}

// Interpreter maps a message body, plus the sender's donor record if any, to an intent and reply.
type Interpreter struct {
	BrandName string
	PortalURL string
}

func NewInterpreter(brandName, portalURL string) *Interpreter {
	return &Interpreter{
		BrandName: brandName,
		PortalURL: portalURL,
	}
}

// NormalizeBody trims and lower-cases a body for exact matching.
// A Caser is stateful, so one is built per call.
func NormalizeBody(body string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(body))
}

// Interpret applies the command table. donor is nil for unregistered senders.
func (in *Interpreter) Interpret(donor *Donor, body string) (Intent, string) {
	msg := NormalizeBody(body)

	if donor == nil {
		if strings.Contains(msg, "join") {
			return Intent{Kind: IntentGreeting, UnknownSender: true}, fmt.Sprintf(
				"Welcome to %s! It looks like you're not registered yet. Please visit our website to register as a donor and start saving lives: %s",
				in.BrandName, in.PortalURL)
		}
		return Intent{Kind: IntentUnrecognized, UnknownSender: true}, fmt.Sprintf(
			"Hi! This is the %s Automated System. We couldn't find your number in our donor database. Please register at our portal to receive emergency alerts.",
			in.BrandName)
	}

	switch msg {
	case "available", "yes":
		return Intent{Kind: IntentSetAvailable}, fmt.Sprintf(
			"Thank you %s! Your status has been updated to AVAILABLE. We will notify you if there's an emergency. Keep saving lives! ❤️",
			donor.Name)
	case "unavailable", "no":
		return Intent{Kind: IntentSetUnavailable}, fmt.Sprintf(
			"Understood %s. Your status has been updated to UNAVAILABLE. You won't receive emergency alerts for now. Reply 'AVAILABLE' to resume.",
			donor.Name)
	case "status":
		status := "❌ UNAVAILABLE"
		if donor.IsAvailable {
			status = "✅ AVAILABLE"
		}
		return Intent{Kind: IntentQueryStatus}, fmt.Sprintf(
			"Hello %s! Current status: %s. District: %s.",
			donor.Name, status, donor.District)
	default:
		return Intent{Kind: IntentUnrecognized}, fmt.Sprintf(
			"Hi %s, we received your message. To update your status, reply with 'AVAILABLE' or 'UNAVAILABLE'.",
			donor.Name)
	}
}
