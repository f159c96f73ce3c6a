package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(p Provider) (*Dispatcher, *[]time.Duration) {
	var slept []time.Duration
	d := NewDispatcher(p, &Addresser{Channel: ChannelWhatsApp, Normalizer: testNormalizer()}, "+14155238886", testLogManager())
	d.Delay = 100 * time.Millisecond
	d.sleep = func(delay time.Duration) { slept = append(slept, delay) }
	return d, &slept
}

func fiveRecipients() []OutboundItem {
	items := make([]OutboundItem, 5)
	for i := range items {
		items[i] = OutboundItem{Recipient: fmt.Sprintf("98765432%02d", i+1), Message: "Urgent: B+ needed"}
	}
	return items
}

func TestDispatchBulk_PartialFailure(t *testing.T) {
	p := &fakeProvider{failOn: map[int]error{3: errProviderDown}}
	d, slept := newTestDispatcher(p)
	recorder := &memoryRecorder{}
	d.Recorder = recorder

	result := d.DispatchBulk(context.Background(), fiveRecipients())

	assert.Equal(t, 4, result.SuccessCount)
	assert.Equal(t, 1, result.FailureCount)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "9876543203", result.Failures[0].Recipient)
	assert.Equal(t, errProviderDown.Error(), result.Failures[0].Reason)
	assert.Equal(t, 5, p.calls)

	assert.Equal(t, []time.Duration{100 * time.Millisecond, 100 * time.Millisecond, 100 * time.Millisecond, 100 * time.Millisecond}, *slept)

	for i, sent := range p.sent {
		assert.Equal(t, fmt.Sprintf("whatsapp:+9198765432%02d", i+1), sent.To)
		assert.Equal(t, "whatsapp:+14155238886", sent.From)
	}

	records := recorder.byDirection(DirectionOutbound)
	require.Len(t, records, 5)
	assert.Equal(t, sendStatusFailed, records[2].Status)
	assert.Equal(t, errProviderDown.Error(), records[2].ErrorText)
	for _, rec := range records {
		assert.Equal(t, records[0].LogID, rec.LogID)
	}
}

func TestDispatchBulk_Empty(t *testing.T) {
	p := &fakeProvider{}
	d, slept := newTestDispatcher(p)

	for _, items := range [][]OutboundItem{nil, {}} {
		result := d.DispatchBulk(context.Background(), items)
		assert.Equal(t, 0, result.SuccessCount)
		assert.Equal(t, 0, result.FailureCount)
		assert.NotNil(t, result.Failures)
		assert.Empty(t, result.Failures)
	}
	assert.Zero(t, p.calls)
	assert.Empty(t, *slept)
}

func TestDispatchBulk_InvalidRecipientAndEmptyMessage(t *testing.T) {
	p := &fakeProvider{}
	d, _ := newTestDispatcher(p)

	result := d.DispatchBulk(context.Background(), []OutboundItem{
		{Recipient: "call me", Message: "hi"},
		{Recipient: "9876543210", Message: "   "},
		{Recipient: "9876543211", Message: "hi"},
	})

	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, 2, result.FailureCount)
	require.Len(t, result.Failures, 2)
	assert.Contains(t, result.Failures[0].Reason, "invalid recipient")
	assert.Equal(t, ErrEmptyMessage.Error(), result.Failures[1].Reason)
	assert.Equal(t, 1, p.calls)
}

func TestDispatchBulk_NotConfigured(t *testing.T) {
	t.Run("no sender number", func(t *testing.T) {
		p := &fakeProvider{}
		d, _ := newTestDispatcher(p)
		d.Sender = ""

		result := d.DispatchBulk(context.Background(), fiveRecipients()[:2])
		assert.Equal(t, 2, result.FailureCount)
		for _, f := range result.Failures {
			assert.Equal(t, "provider credentials not configured", f.Reason)
		}
		assert.Zero(t, p.calls)
	})

	t.Run("no credentials", func(t *testing.T) {
		d, _ := newTestDispatcher(NewTwilioHandler("", "", ""))
		result := d.DispatchBulk(context.Background(), fiveRecipients()[:1])
		require.Len(t, result.Failures, 1)
		assert.Equal(t, "provider credentials not configured", result.Failures[0].Reason)
	})
}

func TestDispatchBulk_IgnoresCancellation(t *testing.T) {
	creator := &fakeCreator{sid: "SM1"}
	d, _ := newTestDispatcher(&TwilioHandler{api: creator})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := d.DispatchBulk(ctx, fiveRecipients())
	assert.Equal(t, 5, result.SuccessCount)
	assert.Empty(t, result.Failures)
	assert.Len(t, creator.params, 5)
}

func TestDispatchBulk_Concurrent(t *testing.T) {
	p := &fakeProvider{failOn: map[int]error{2: errProviderDown, 4: errProviderDown}}
	d, _ := newTestDispatcher(p)
	d.Concurrency = 3
	d.Delay = time.Millisecond

	items := append(fiveRecipients(), fiveRecipients()...)
	result := d.DispatchBulk(context.Background(), items)

	assert.Equal(t, 8, result.SuccessCount)
	assert.Equal(t, 2, result.FailureCount)
	assert.Len(t, result.Failures, 2)
	assert.Equal(t, 10, p.calls)

	var to []string
	for _, sent := range p.sent {
		to = append(to, sent.To)
	}
	sort.Strings(to)
	assert.Equal(t, "whatsapp:+919876543201", to[0])
	assert.Equal(t, "whatsapp:+919876543205", to[9])
}

func TestDispatcher_Send(t *testing.T) {
	p := &fakeProvider{failOn: map[int]error{2: errProviderDown}}
	d, slept := newTestDispatcher(p)

	require.NoError(t, d.Send(context.Background(), OutboundItem{Recipient: "9876543210", Message: "hi"}))
	assert.EqualError(t, d.Send(context.Background(), OutboundItem{Recipient: "9876543210", Message: "hi"}), errProviderDown.Error())
	assert.Empty(t, *slept)
}

func TestDispatchBulk_SlowRecorderDoesNotDelaySends(t *testing.T) {
	p := &fakeProvider{}
	d, _ := newTestDispatcher(p)
	slow := newBlockingRecorder()
	defer close(slow.release)
	d.Recorder = NewAsyncRecorder(slow, 16, time.Minute, testLogManager())

	start := time.Now()
	result := d.DispatchBulk(context.Background(), fiveRecipients())
	assert.Equal(t, 5, result.SuccessCount)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDispatchBulk_SMSSegments(t *testing.T) {
	p := &fakeProvider{}
	d, _ := newTestDispatcher(p)
	d.Addresser.Channel = ChannelSMS
	d.Metrics = NewGatewayMetrics(prometheus.NewRegistry())
	recorder := &memoryRecorder{}
	d.Recorder = recorder

	result := d.DispatchBulk(context.Background(), []OutboundItem{
		{Recipient: "9876543201", Message: strings.Repeat("a", 161)},
		{Recipient: "9876543202", Message: "रक्तदान"},
	})
	require.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, "+919876543201", p.sent[0].To)

	records := recorder.byDirection(DirectionOutbound)
	require.Len(t, records, 2)
	assert.Equal(t, EncodingGSM7, records[0].Encoding)
	assert.Equal(t, 2, records[0].Segments)
	assert.Equal(t, EncodingUCS2, records[1].Encoding)
	assert.Equal(t, 1, records[1].Segments)
	assert.Equal(t, 2.0, testutil.ToFloat64(d.Metrics.smsSegments.WithLabelValues(EncodingGSM7)))
}

func TestDispatchBulk_WhatsAppSkipsSegments(t *testing.T) {
	p := &fakeProvider{}
	d, _ := newTestDispatcher(p)
	recorder := &memoryRecorder{}
	d.Recorder = recorder

	d.DispatchBulk(context.Background(), []OutboundItem{{Recipient: "9876543201", Message: strings.Repeat("a", 161)}})
	records := recorder.byDirection(DirectionOutbound)
	require.Len(t, records, 1)
	assert.Empty(t, records[0].Encoding)
	assert.Zero(t, records[0].Segments)
}
