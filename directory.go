package main

import (
	"context"
	"errors"
	"fmt"

	"bloodconnect-msggw/phone"
)

// Directory field names probed during lookup, in precedence order.
const (
	FieldPhone    = "phone"
	FieldWhatsApp = "whatsappNumber"
)

var lookupFields = []string{FieldPhone, FieldWhatsApp}

// ErrDonorNotFound is returned when no donor matches. It is a normal outcome.
var ErrDonorNotFound = errors.New("donor not found")

// DonorDirectory is the external donor store.
type DonorDirectory interface {
	// FindByField returns the first donor whose field equals value, or ErrDonorNotFound.
	FindByField(ctx context.Context, field, value string) (*Donor, error)
	// SetAvailability atomically sets isAvailable and bumps updatedAt.
	SetAvailability(ctx context.Context, donorID string, available bool) error
}

// Probe is one equality query in a lookup.
type Probe struct {
	Field string
	Value string
}

// LookupProbes returns the ordered probe list for a candidate set: the primary field across all
// candidates, then the chat-specific field across all candidates.
func LookupProbes(candidates phone.Candidates) []Probe {
	probes := make([]Probe, 0, len(lookupFields)*len(candidates))
	for _, field := range lookupFields {
		for _, value := range candidates {
			probes = append(probes, Probe{Field: field, Value: value})
		}
	}
	return probes
}

// FindByAnyPhone runs the probes in order and returns the first donor found.
func FindByAnyPhone(ctx context.Context, dir DonorDirectory, candidates phone.Candidates) (*Donor, error) {
	for _, p := range LookupProbes(candidates) {
		donor, err := dir.FindByField(ctx, p.Field, p.Value)
		if errors.Is(err, ErrDonorNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lookup %s=%s: %w", p.Field, p.Value, err)
		}
		return donor, nil
	}
	return nil, ErrDonorNotFound
}
