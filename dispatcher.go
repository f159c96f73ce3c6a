package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var ErrEmptyMessage = errors.New("message is empty")

const (
	sendStatusSent   = "sent"
	sendStatusFailed = "failed"
)

// Dispatcher fans one operator request out to individual provider sends.
//
// A failed recipient never stops the batch, nothing is retried and request cancellation is
// ignored once a batch has started. Consecutive sends are spaced by Delay.
type Dispatcher struct {
	Provider    Provider
	Addresser   *Addresser
	Sender      string
	Delay       time.Duration
	Concurrency int
	Recorder    Recorder
	Metrics     *GatewayMetrics
	LogManager  *LogManager

	sleep func(time.Duration)
	now   func() time.Time
}

func NewDispatcher(provider Provider, addresser *Addresser, sender string, lm *LogManager) *Dispatcher {
	return &Dispatcher{
		Provider:    provider,
		Addresser:   addresser,
		Sender:      sender,
		Concurrency: 1,
		LogManager:  lm,
		sleep:       time.Sleep,
		now:         time.Now,
	}
}

// Send dispatches a single message. It is a batch of one.
func (d *Dispatcher) Send(ctx context.Context, item OutboundItem) error {
	result := d.DispatchBulk(ctx, []OutboundItem{item})
	if result.FailureCount > 0 {
		return errors.New(result.Failures[0].Reason)
	}
	return nil
}

// DispatchBulk attempts every item once and reports the aggregate outcome.
// Failures are listed in completion order; for a sequential dispatch that is input order.
func (d *Dispatcher) DispatchBulk(ctx context.Context, items []OutboundItem) OutboundResult {
	result := OutboundResult{Failures: []SendFailure{}}
	if len(items) == 0 {
		return result
	}

	ctx = context.WithoutCancel(ctx)
	batchID := uuid.New().String()
	d.Metrics.ObserveBatch(len(items))

	var mu sync.Mutex
	collect := func(item OutboundItem, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			result.FailureCount++
			result.Failures = append(result.Failures, SendFailure{Recipient: item.Recipient, Reason: err.Error()})
			return
		}
		result.SuccessCount++
	}

	if d.Concurrency <= 1 {
		for i, item := range items {
			if i > 0 && d.Delay > 0 {
				d.sleepFor(d.Delay)
			}
			collect(item, d.attempt(ctx, batchID, item))
		}
	} else {
		limit := rate.Inf
		if d.Delay > 0 {
			limit = rate.Every(d.Delay)
		}
		limiter := rate.NewLimiter(limit, 1)

		var g errgroup.Group
		g.SetLimit(d.Concurrency)
		for _, item := range items {
			g.Go(func() error {
				if err := limiter.Wait(ctx); err != nil {
					collect(item, err)
					return nil
				}
				collect(item, d.attempt(ctx, batchID, item))
				return nil
			})
		}
		_ = g.Wait()
	}

	d.LogManager.SendLog(d.LogManager.BuildLog(
		"Dispatcher",
		"BatchComplete",
		logrus.InfoLevel,
		map[string]interface{}{
			"logID":  batchID,
			"sent":   result.SuccessCount,
			"failed": result.FailureCount,
		},
	))
	return result
}

// attempt performs one send and records it.
func (d *Dispatcher) attempt(ctx context.Context, batchID string, item OutboundItem) error {
	to, from, sid, err := d.send(ctx, item)

	rec := MessageRecord{
		LogID:      batchID,
		Direction:  DirectionOutbound,
		From:       from,
		To:         to,
		Body:       item.Message,
		ProviderID: sid,
		Status:     sendStatusSent,
		Timestamp:  d.clock(),
	}
	level := logrus.DebugLevel
	if err != nil {
		rec.Status = sendStatusFailed
		rec.ErrorText = err.Error()
		level = logrus.WarnLevel
	}
	if d.Addresser != nil && d.Addresser.Channel == ChannelSMS {
		rec.Encoding = BodyEncoding(item.Message)
		rec.Segments = len(SplitSegments(item.Message))
		if err == nil {
			d.Metrics.ObserveSMSSegments(rec.Encoding, rec.Segments)
		}
	}
	d.Metrics.ObserveOutbound(rec.Status)
	recordBestEffort(ctx, d.Recorder, d.LogManager, rec)

	d.LogManager.SendLog(d.LogManager.BuildLog(
		"Dispatcher",
		"SendAttempt",
		level,
		map[string]interface{}{
			"logID":     batchID,
			"to":        item.Recipient,
			"messageID": sid,
			"message":   PartiallyRedactMessage(item.Message),
			"segments":  rec.Segments,
		}, err,
	))
	return err
}

func (d *Dispatcher) send(ctx context.Context, item OutboundItem) (to, from, sid string, err error) {
	if d.Provider == nil || strings.TrimSpace(d.Sender) == "" {
		return "", "", "", ErrProviderNotConfigured
	}
	to, err = d.Addresser.Format(item.Recipient)
	if err != nil {
		return "", "", "", fmt.Errorf("invalid recipient: %w", err)
	}
	from, err = d.Addresser.Format(d.Sender)
	if err != nil {
		return to, "", "", fmt.Errorf("invalid sender number: %w", err)
	}
	if strings.TrimSpace(item.Message) == "" {
		return to, from, "", ErrEmptyMessage
	}
	sid, err = d.Provider.Send(ctx, to, from, item.Message)
	return to, from, sid, err
}

func (d *Dispatcher) sleepFor(delay time.Duration) {
	if d.sleep == nil {
		time.Sleep(delay)
		return
	}
	d.sleep(delay)
}

func (d *Dispatcher) clock() time.Time {
	if d.now == nil {
		return time.Now()
	}
	return d.now()
}
