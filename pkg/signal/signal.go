// Package signal records trigger and alert requests for jobs.
//
// Execution and alert delivery belong to external systems. A Sink only
// acknowledges and records the request so an operator or a downstream
// consumer can act on it.
package signal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Kind names the requested action.
type Kind string

const (
	KindTrigger Kind = "trigger"
	KindAlert   Kind = "alert"
)

// MaxMessageLength bounds operator-supplied alert text.
const MaxMessageLength = 2000

// Request is a trigger or alert signal.
type Request struct {
	ID        string
	Kind      Kind
	JobID     string
	Message   string
	RequestID string
	At        time.Time
}

// Ack is returned to the caller once a signal is recorded.
type Ack struct {
	ID      string
	Message string
}

// Sink records signals.
type Sink interface {
	Send(ctx context.Context, req Request) (Ack, error)
}

// LogSink writes each signal as a structured log line.
type LogSink struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewLogSink returns a sink writing to logger (no-op when nil).
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("signal"), now: time.Now}
}

// Send logs the request and acknowledges it.
func (s *LogSink) Send(_ context.Context, req Request) (Ack, error) {
	var ack string
	switch req.Kind {
	case KindTrigger:
		ack = fmt.Sprintf("Job %s trigger request sent", req.JobID)
	case KindAlert:
		ack = fmt.Sprintf("Job %s alert request sent", req.JobID)
	default:
		return Ack{}, fmt.Errorf("unknown signal kind %q", req.Kind)
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.At.IsZero() {
		req.At = s.now().UTC()
	}
	msg := strings.TrimSpace(req.Message)
	if len(msg) > MaxMessageLength {
		msg = msg[:MaxMessageLength]
	}

	s.logger.Info("job signal requested",
		zap.String("signal_id", req.ID),
		zap.String("kind", string(req.Kind)),
		zap.String("job_id", req.JobID),
		zap.String("message", msg),
		zap.String("request_id", req.RequestID),
		zap.Time("at", req.At),
	)

	return Ack{ID: req.ID, Message: ack}, nil
}
