package main

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"bloodconnect-msggw/phone"
)

func testLogManager() *LogManager {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &LogManager{logger: logger}
}

func testNormalizer() *phone.Normalizer {
	return &phone.Normalizer{CountryCode: "91", NationalLength: 10}
}

// fakeDirectory stores donors keyed by ID and records every probe and mutation.
type fakeDirectory struct {
	mu        sync.Mutex
	donors    map[string]*Donor
	probes    []Probe
	updates   []bool
	findErr   error
	updateErr error
}

func newFakeDirectory(donors ...*Donor) *fakeDirectory {
	d := &fakeDirectory{donors: map[string]*Donor{}}
	for _, donor := range donors {
		d.donors[donor.ID] = donor
	}
	return d
}

func (d *fakeDirectory) FindByField(_ context.Context, field, value string) (*Donor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.probes = append(d.probes, Probe{Field: field, Value: value})
	if d.findErr != nil {
		return nil, d.findErr
	}
	for _, donor := range d.donors {
		if (field == FieldPhone && donor.Phone == value) || (field == FieldWhatsApp && donor.WhatsAppNumber == value) {
			cp := *donor
			return &cp, nil
		}
	}
	return nil, ErrDonorNotFound
}

func (d *fakeDirectory) SetAvailability(_ context.Context, donorID string, available bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.updates = append(d.updates, available)
	if d.updateErr != nil {
		return d.updateErr
	}
	donor, ok := d.donors[donorID]
	if !ok {
		return ErrDonorNotFound
	}
	donor.IsAvailable = available
	return nil
}

type sentMessage struct {
	To   string
	From string
	Body string
}

// fakeProvider records sends and fails the calls whose 1-based index is in failOn.
type fakeProvider struct {
	mu     sync.Mutex
	sent   []sentMessage
	failOn map[int]error
	calls  int
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Send(_ context.Context, to, from, body string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.sent = append(p.sent, sentMessage{To: to, From: from, Body: body})
	if err, ok := p.failOn[p.calls]; ok {
		return "", err
	}
	return "SM" + string(rune('0'+p.calls%10)), nil
}

var errProviderDown = errors.New("provider rejected message")

// memoryRecorder keeps message records in memory.
type memoryRecorder struct {
	mu      sync.Mutex
	records []MessageRecord
	err     error
}

func (r *memoryRecorder) Record(_ context.Context, rec MessageRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return r.err
}

func (r *memoryRecorder) byDirection(direction string) []MessageRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []MessageRecord
	for _, rec := range r.records {
		if rec.Direction == direction {
			out = append(out, rec)
		}
	}
	return out
}
