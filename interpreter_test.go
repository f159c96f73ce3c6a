package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInterpret_RegisteredDonor(t *testing.T) {
	in := NewInterpreter("NSS BloodConnect", "https://portal.example")
	donor := &Donor{ID: "d1", Name: "Asha", District: "Ernakulam", IsAvailable: true}

	tests := []struct {
		body     string
		kind     IntentKind
		contains []string
	}{
		{"available", IntentSetAvailable, []string{"Asha", "AVAILABLE"}},
		{"  Available \n", IntentSetAvailable, []string{"Asha", "AVAILABLE"}},
		{"YES", IntentSetAvailable, []string{"Asha"}},
		{"unavailable", IntentSetUnavailable, []string{"Asha", "UNAVAILABLE", "won't receive emergency alerts"}},
		{"No", IntentSetUnavailable, []string{"UNAVAILABLE"}},
		{"status", IntentQueryStatus, []string{"Asha", "AVAILABLE", "Ernakulam"}},
		{"banana", IntentUnrecognized, []string{"Asha", "'AVAILABLE' or 'UNAVAILABLE'"}},
		{"available now", IntentUnrecognized, []string{"'AVAILABLE' or 'UNAVAILABLE'"}},
		{"join", IntentUnrecognized, []string{"Asha"}},
		{"", IntentUnrecognized, []string{"Asha"}},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			intent, reply := in.Interpret(donor, tt.body)
			assert.Equal(t, tt.kind, intent.Kind)
			assert.False(t, intent.UnknownSender)
			for _, want := range tt.contains {
				assert.Contains(t, reply, want)
			}
		})
	}
}

func TestInterpret_StatusReflectsAvailability(t *testing.T) {
	in := NewInterpreter("NSS BloodConnect", "https://portal.example")

	_, reply := in.Interpret(&Donor{Name: "Ravi", District: "Thrissur", IsAvailable: false}, "STATUS")
	assert.Contains(t, reply, "UNAVAILABLE")
	assert.Contains(t, reply, "Thrissur")
}

func TestInterpret_UnknownSender(t *testing.T) {
	in := NewInterpreter("NSS BloodConnect", "https://portal.example")

	intent, reply := in.Interpret(nil, "join abc")
	assert.Equal(t, Intent{Kind: IntentGreeting, UnknownSender: true}, intent)
	assert.Contains(t, reply, "https://portal.example")

	intent, reply = in.Interpret(nil, "I want to JOIN")
	assert.Equal(t, IntentGreeting, intent.Kind)
	assert.Contains(t, reply, "https://portal.example")

	intent, reply = in.Interpret(nil, "available")
	assert.Equal(t, Intent{Kind: IntentUnrecognized, UnknownSender: true}, intent)
	assert.Contains(t, reply, "couldn't find your number")
	assert.NotContains(t, reply, "https://portal.example")
}

func TestIntent_Mutation(t *testing.T) {
	available, ok := Intent{Kind: IntentSetAvailable}.Mutation()
	assert.True(t, ok)
	assert.True(t, available)

	available, ok = Intent{Kind: IntentSetUnavailable}.Mutation()
	assert.True(t, ok)
	assert.False(t, available)

	for _, kind := range []IntentKind{IntentQueryStatus, IntentGreeting, IntentUnrecognized} {
		_, ok := Intent{Kind: kind}.Mutation()
		assert.False(t, ok, kind)
	}
}
