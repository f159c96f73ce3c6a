package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bloodconnect-msggw/phone"
)

func TestLookupProbes_Order(t *testing.T) {
	probes := LookupProbes(phone.Candidates{"a", "b"})
	assert.Equal(t, []Probe{
		{Field: FieldPhone, Value: "a"},
		{Field: FieldPhone, Value: "b"},
		{Field: FieldWhatsApp, Value: "a"},
		{Field: FieldWhatsApp, Value: "b"},
	}, probes)
}

func TestFindByAnyPhone_StoredWithCountryCode(t *testing.T) {
	n := testNormalizer()
	for _, raw := range []string{"9876543210", "919876543210", "+919876543210", "whatsapp:+919876543210"} {
		t.Run(raw, func(t *testing.T) {
			dir := newFakeDirectory(&Donor{ID: "d1", Name: "Asha", Phone: "+919876543210"})
			candidates, err := n.Normalize(raw)
			require.NoError(t, err)

			donor, err := FindByAnyPhone(context.Background(), dir, candidates)
			require.NoError(t, err)
			assert.Equal(t, "d1", donor.ID)
		})
	}
}

func TestFindByAnyPhone_PrimaryFieldWins(t *testing.T) {
	dir := newFakeDirectory(
		&Donor{ID: "chat", Name: "Chat", WhatsAppNumber: "+919876543210"},
		&Donor{ID: "primary", Name: "Primary", Phone: "9876543210"},
	)

	donor, err := FindByAnyPhone(context.Background(), dir, phone.Candidates{"+919876543210", "9876543210"})
	require.NoError(t, err)
	assert.Equal(t, "primary", donor.ID)
	assert.Equal(t, []Probe{
		{Field: FieldPhone, Value: "+919876543210"},
		{Field: FieldPhone, Value: "9876543210"},
	}, dir.probes)
}

func TestFindByAnyPhone_FallsBackToChatField(t *testing.T) {
	dir := newFakeDirectory(&Donor{ID: "chat", Name: "Chat", WhatsAppNumber: "9876543210"})

	donor, err := FindByAnyPhone(context.Background(), dir, phone.Candidates{"+919876543210", "9876543210"})
	require.NoError(t, err)
	assert.Equal(t, "chat", donor.ID)
	assert.Len(t, dir.probes, 4)
}

func TestFindByAnyPhone_NotFound(t *testing.T) {
	dir := newFakeDirectory()
	_, err := FindByAnyPhone(context.Background(), dir, phone.Candidates{"1", "2", "3"})
	assert.ErrorIs(t, err, ErrDonorNotFound)
	assert.Len(t, dir.probes, 6)
}

func TestFindByAnyPhone_StoreFault(t *testing.T) {
	storeErr := errors.New("connection reset")
	dir := newFakeDirectory()
	dir.findErr = storeErr

	_, err := FindByAnyPhone(context.Background(), dir, phone.Candidates{"1", "2"})
	assert.ErrorIs(t, err, storeErr)
	assert.Len(t, dir.probes, 1)
}
