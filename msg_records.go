package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
	DirectionStatus   = "status"
)

// MessageRecord is one message-log entry: an inbound message, an outbound attempt or a
// provider status callback.
type MessageRecord struct {
	LogID      string    `json:"log_id"`
	Direction  string    `json:"direction"`
	From       string    `json:"from_number,omitempty"`
	To         string    `json:"to_number,omitempty"`
	Body       string    `json:"body,omitempty"`
	ProviderID string    `json:"provider_id,omitempty"`
	Status     string    `json:"status,omitempty"`
	ErrorText  string    `json:"error,omitempty"`
	Encoding   string    `json:"encoding,omitempty"` // sms channel only
	Segments   int       `json:"segments,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Recorder appends message records to a log store.
type Recorder interface {
	Record(ctx context.Context, rec MessageRecord) error
}

// MultiRecorder writes to every recorder and joins their errors.
type MultiRecorder []Recorder

func (m MultiRecorder) Record(ctx context.Context, rec MessageRecord) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// recordBestEffort appends a record and only logs a failure.
func recordBestEffort(ctx context.Context, recorder Recorder, lm *LogManager, rec MessageRecord) {
	if recorder == nil {
		return
	}
	if err := recorder.Record(ctx, rec); err != nil {
		lm.SendLog(lm.BuildLog(
			"MsgRecords",
			"InsertError",
			logrus.ErrorLevel,
			map[string]interface{}{
				"logID":     rec.LogID,
				"direction": rec.Direction,
			}, err,
		))
	}
}

// ErrRecordQueueFull is returned when the background writer is backed up.
var ErrRecordQueueFull = errors.New("message record queue full")

// ErrRecorderClosed is returned for records handed over after Close.
var ErrRecorderClosed = errors.New("message recorder closed")

// AsyncRecorder queues records for a background writer so callers never wait on the log
// stores. A full queue drops the record.
type AsyncRecorder struct {
	recorder   Recorder
	timeout    time.Duration
	logManager *LogManager
	records    chan MessageRecord
	m          sync.RWMutex
	closed     bool
	done       chan struct{}
}

// NewAsyncRecorder starts the writer. Each record gets its own timeout, detached from the
// request that produced it.
func NewAsyncRecorder(recorder Recorder, buffer int, timeout time.Duration, lm *LogManager) *AsyncRecorder {
	a := &AsyncRecorder{
		recorder:   recorder,
		timeout:    timeout,
		logManager: lm,
		records:    make(chan MessageRecord, buffer),
		done:       make(chan struct{}),
	}
	go a.processRecords()
	return a
}

func (a *AsyncRecorder) Record(_ context.Context, rec MessageRecord) error {
	a.m.RLock()
	defer a.m.RUnlock()
	if a.closed {
		return ErrRecorderClosed
	}
	select {
	case a.records <- rec:
		return nil
	default:
		return ErrRecordQueueFull
	}
}

func (a *AsyncRecorder) processRecords() {
	defer close(a.done)
	for rec := range a.records {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		recordBestEffort(ctx, a.recorder, a.logManager, rec)
		cancel()
	}
}

// Close stops accepting records and waits for the queue to drain or ctx to end.
func (a *AsyncRecorder) Close(ctx context.Context) error {
	a.m.Lock()
	if !a.closed {
		a.closed = true
		close(a.records)
	}
	a.m.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MsgRecordDBItem represents the structure for storing messages in the database.
type MsgRecordDBItem struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	LogID      string    `gorm:"index" json:"log_id"`
	Direction  string    `gorm:"index" json:"direction"` // "inbound", "outbound" or "status"
	From       string    `json:"from_number"`
	To         string    `json:"to_number"`
	Body       string    `json:"body"` // redacted
	ProviderID string    `gorm:"index" json:"provider_id"`
	Status     string    `json:"status"`
	ErrorText  string    `json:"error"`
	Encoding   string    `json:"encoding,omitempty"` // "gsm7" or "ucs2"
	Segments   int       `json:"total_segments"`
	Timestamp  time.Time `json:"timestamp"`
}

func (MsgRecordDBItem) TableName() string {
	return "message_records"
}

// GormRecorder stores message records in a relational database.
type GormRecorder struct {
	db *gorm.DB
}

func NewGormRecorder(db *gorm.DB) *GormRecorder {
	return &GormRecorder{db: db}
}

// Migrate creates or updates the message_records table.
func (g *GormRecorder) Migrate() error {
	return g.db.AutoMigrate(&MsgRecordDBItem{})
}

func (g *GormRecorder) Record(ctx context.Context, rec MessageRecord) error {
	item := &MsgRecordDBItem{
		LogID:      rec.LogID,
		Direction:  rec.Direction,
		From:       rec.From,
		To:         rec.To,
		Body:       PartiallyRedactMessage(rec.Body),
		ProviderID: rec.ProviderID,
		Status:     rec.Status,
		ErrorText:  rec.ErrorText,
		Encoding:   rec.Encoding,
		Segments:   rec.Segments,
		Timestamp:  rec.Timestamp,
	}
	if err := g.db.WithContext(ctx).Create(item).Error; err != nil {
		return fmt.Errorf("insert message record: %w", err)
	}
	return nil
}

type messageCounter interface {
	CountByDirection(ctx context.Context, direction string, since time.Time) (int64, error)
}

// CountByDirection counts records of one direction since a point in time.
func (g *GormRecorder) CountByDirection(ctx context.Context, direction string, since time.Time) (int64, error) {
	var count int64
	err := g.db.WithContext(ctx).Model(&MsgRecordDBItem{}).
		Where("direction = ? AND timestamp >= ?", direction, since).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// MongoRecorder writes messages and status callbacks to separate collections.
type MongoRecorder struct {
	messages   *mongo.Collection
	statusLogs *mongo.Collection
	timeout    time.Duration
}

// NewMongoRecorder bounds every insert by timeout; zero leaves the caller's context as is.
func NewMongoRecorder(messages, statusLogs *mongo.Collection, timeout time.Duration) *MongoRecorder {
	return &MongoRecorder{messages: messages, statusLogs: statusLogs, timeout: timeout}
}

func (m *MongoRecorder) Record(ctx context.Context, rec MessageRecord) error {
	coll := m.messages
	doc := bson.M{
		"logId":     rec.LogID,
		"direction": rec.Direction,
		"from":      rec.From,
		"to":        rec.To,
		"body":      rec.Body,
		"timestamp": rec.Timestamp,
	}
	if rec.Direction == DirectionStatus {
		coll = m.statusLogs
		doc = bson.M{
			"messageSid": rec.ProviderID,
			"status":     rec.Status,
			"to":         rec.To,
			"timestamp":  rec.Timestamp,
		}
		if rec.ErrorText != "" {
			doc["errorCode"] = rec.ErrorText
		}
	} else {
		if rec.ProviderID != "" {
			doc["messageSid"] = rec.ProviderID
		}
		if rec.Status != "" {
			doc["status"] = rec.Status
		}
		if rec.ErrorText != "" {
			doc["error"] = rec.ErrorText
		}
		if rec.Segments > 0 {
			doc["encoding"] = rec.Encoding
			doc["segments"] = rec.Segments
		}
	}

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	if _, err := coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert %s record: %w", rec.Direction, err)
	}
	return nil
}
