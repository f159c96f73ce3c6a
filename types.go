package main

import (
	"time"
)

const (
	ChannelWhatsApp = "whatsapp"
	ChannelSMS      = "sms"
)

// Donor is the directory record the gateway reads. Only IsAvailable is ever written.
type Donor struct {
	ID             string    `json:"id" bson:"-"`
	Name           string    `json:"name" bson:"name"`
	District       string    `json:"district" bson:"district"`
	Area           string    `json:"area,omitempty" bson:"area,omitempty"`
	BloodGroup     string    `json:"bloodGroup,omitempty" bson:"bloodGroup,omitempty"`
	Phone          string    `json:"phone" bson:"phone"`
	WhatsAppNumber string    `json:"whatsappNumber,omitempty" bson:"whatsappNumber,omitempty"`
	IsAvailable    bool      `json:"isAvailable" bson:"isAvailable"`
	UpdatedAt      time.Time `json:"updatedAt,omitempty" bson:"-"`
}

// InboundEvent is one provider webhook delivery.
type InboundEvent struct {
	RawFrom    string
	To         string
	Body       string
	MessageSid string
}

// OutboundItem is a single (recipient, message) pair to dispatch.
type OutboundItem struct {
	Recipient string `json:"phoneNumber"`
	Message   string `json:"message"`
}

// SendFailure describes one recipient that could not be sent to.
type SendFailure struct {
	Recipient string `json:"phoneNumber"`
	Reason    string `json:"error"`
}

// OutboundResult aggregates one dispatch batch.
type OutboundResult struct {
	SuccessCount int           `json:"sent"`
	FailureCount int           `json:"failed"`
	Failures     []SendFailure `json:"errors"`
}
