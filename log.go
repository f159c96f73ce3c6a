package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// LogManager builds and emits structured gateway logs.
type LogManager struct {
	logger *logrus.Logger
}

// NewLogManager creates a JSON logrus logger at the given level. When lokiURL is set, every
// entry is also pushed to Loki.
func NewLogManager(level, lokiURL, lokiUser, lokiPassword string) *LogManager {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	if lokiURL != "" {
		logger.AddHook(NewLokiHook(lokiURL, lokiUser, lokiPassword))
	}

	return &LogManager{logger: logger}
}

// LogEntry is a log line waiting to be sent.
type LogEntry struct {
	Component string
	Event     string
	Level     logrus.Level
	Fields    logrus.Fields
	Err       error
}

// BuildLog assembles a LogEntry; at most one error is attached.
func (lm *LogManager) BuildLog(component, event string, level logrus.Level, fields map[string]interface{}, errs ...error) LogEntry {
	entry := LogEntry{
		Component: component,
		Event:     event,
		Level:     level,
		Fields:    logrus.Fields{},
	}
	for k, v := range fields {
		entry.Fields[k] = v
	}
	for _, err := range errs {
		if err != nil {
			entry.Err = err
			break
		}
	}
	return entry
}

// SendLog writes the entry through logrus.
func (lm *LogManager) SendLog(entry LogEntry) {
	if lm == nil || lm.logger == nil {
		return
	}
	e := lm.logger.WithFields(entry.Fields).WithField("component", entry.Component)
	if entry.Err != nil {
		e = e.WithError(entry.Err)
	}
	e.Log(entry.Level, entry.Event)
}

// LokiHook ships log entries to Loki's push API.
type LokiHook struct {
	PushURL  string
	Username string
	Password string
	client   *http.Client
}

type lokiPushData struct {
	Streams []lokiStream `json:"streams"`
}

type lokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][2]string       `json:"values"`
}

func NewLokiHook(pushURL, username, password string) *LokiHook {
	return &LokiHook{
		PushURL:  pushURL,
		Username: username,
		Password: password,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

func (h *LokiHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire pushes one entry. Failures are written to stderr and never block logging.
func (h *LokiHook) Fire(entry *logrus.Entry) error {
	line, err := entry.String()
	if err != nil {
		return nil
	}

	payload := lokiPushData{
		Streams: []lokiStream{{
			Stream: map[string]string{"job": "donor-msggw", "level": entry.Level.String()},
			Values: [][2]string{{strconv.FormatInt(entry.Time.UnixNano(), 10), line}},
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil
	}

	req, err := http.NewRequest(http.MethodPost, h.PushURL, bytes.NewReader(body))
	if err != nil {
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	if h.Username != "" && h.Password != "" {
		req.SetBasicAuth(h.Username, h.Password)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loki push failed: %v\n", err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "loki push failed: status %d\n", resp.StatusCode)
	}
	return nil
}

// PartiallyRedactMessage hides most of a message body before it reaches logs.
func PartiallyRedactMessage(message string) string {
	if message == "" {
		return ""
	}
	if len(message) <= 10 {
		return "**********"
	}
	return message[:5] + "*****"
}
