package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bloodconnect-msggw/phone"
)

var (
	ErrProviderNotConfigured = errors.New("provider credentials not configured")
	ErrMissingProviderID     = errors.New("provider returned no message id")
)

// Provider sends one message through an upstream messaging provider and returns its message id.
type Provider interface {
	Send(ctx context.Context, to, from, body string) (string, error)
	Name() string
}

// BaseCarrierHandler provides common functionality for providers
type BaseCarrierHandler struct {
	name string
}

func (h *BaseCarrierHandler) Name() string {
	return h.name
}

// ProviderError is a rejection reported by the provider's API.
type ProviderError struct {
	Status  int
	Code    int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("status %d code %d: %s", e.Status, e.Code, e.Message)
}

// Addresser turns stored or operator-typed numbers into provider addresses for one channel.
type Addresser struct {
	Channel    string
	Normalizer *phone.Normalizer
}

// Format returns "+<digits>" for the sms channel and "whatsapp:+<digits>" for the whatsapp channel.
// A bare national number is qualified with the home country code.
func (a *Addresser) Format(raw string) (string, error) {
	intl, err := a.Normalizer.International(raw)
	if err != nil {
		return "", err
	}
	if strings.EqualFold(a.Channel, ChannelWhatsApp) {
		return phone.ChannelPrefix + intl, nil
	}
	return intl, nil
}
