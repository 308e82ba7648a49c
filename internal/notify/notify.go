// Package notify delivers best effort, fire-and-forget notifications to the user.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/punchclock/api/schemas"
)

// ErrDropped is returned when a notification was discarded by a rate limit.
var ErrDropped = errors.New("notification dropped by rate limit")

// Notifier shows a notification and returns its identifier.
type Notifier interface {
	Notify(ctx context.Context, n schemas.Notification) (string, error)
}

// ensureID assigns a fresh identifier to notifications that arrive without one.
func ensureID(n schemas.Notification) schemas.Notification {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return n
}

// -- Log Notifier --

// LogNotifier writes notifications to the structured log. High priority
// notifications are logged as warnings so they stand out in the console.
type LogNotifier struct {
	log *zap.Logger
}

// NewLogNotifier returns a notifier backed by logger.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{log: logger.Named("notify")}
}

func (l *LogNotifier) Notify(_ context.Context, n schemas.Notification) (string, error) {
	n = ensureID(n)
	level := zapcore.InfoLevel
	if n.Priority >= schemas.PriorityHigh {
		level = zapcore.WarnLevel
	}
	fields := []zap.Field{
		zap.String("id", n.ID),
		zap.String("title", n.Title),
		zap.String("message", n.Message),
		zap.Int("priority", int(n.Priority)),
	}
	if len(n.Actions) > 0 {
		titles := make([]string, len(n.Actions))
		for i, a := range n.Actions {
			titles[i] = a.Title
		}
		fields = append(fields, zap.Strings("actions", titles))
	}
	l.log.Check(level, "Notification.").Write(fields...)
	return n.ID, nil
}

// -- Writer Notifier --

// WriterNotifier prints notifications as plain text, one block per notification.
type WriterNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterNotifier returns a notifier that prints to w.
func NewWriterNotifier(w io.Writer) *WriterNotifier {
	return &WriterNotifier{w: w}
}

func (wn *WriterNotifier) Notify(_ context.Context, n schemas.Notification) (string, error) {
	n = ensureID(n)
	var sb strings.Builder
	if n.Priority >= schemas.PriorityHigh {
		sb.WriteString("[!] ")
	}
	fmt.Fprintf(&sb, "%s\n  %s\n", n.Title, strings.ReplaceAll(n.Message, "\n", "\n  "))
	for i, a := range n.Actions {
		fmt.Fprintf(&sb, "  (%d) %s\n", i, a.Title)
	}

	wn.mu.Lock()
	defer wn.mu.Unlock()
	if _, err := io.WriteString(wn.w, sb.String()); err != nil {
		return "", fmt.Errorf("failed to write notification: %w", err)
	}
	return n.ID, nil
}

// -- Fan Out --

// FanOut delivers every notification to all of its notifiers under one identifier.
type FanOut []Notifier

func (f FanOut) Notify(ctx context.Context, n schemas.Notification) (string, error) {
	n = ensureID(n)
	var errs []error
	for _, inner := range f {
		if _, err := inner.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return n.ID, errors.Join(errs...)
}

// -- Rate Limiting --

// Limited drops notifications beyond a token-bucket rate. High priority
// notifications always pass.
type Limited struct {
	inner   Notifier
	limiter *rate.Limiter
	log     *zap.Logger
}

// NewLimited allows burst notifications at once and one more per interval after that.
func NewLimited(inner Notifier, every rate.Limit, burst int, logger *zap.Logger) *Limited {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limited{inner: inner, limiter: rate.NewLimiter(every, burst), log: logger.Named("notify")}
}

func (l *Limited) Notify(ctx context.Context, n schemas.Notification) (string, error) {
	if n.Priority < schemas.PriorityHigh && !l.limiter.Allow() {
		l.log.Debug("Notification dropped by rate limit.", zap.String("title", n.Title))
		return "", ErrDropped
	}
	return l.inner.Notify(ctx, n)
}

// -- Recorder --

// Recorder keeps every notification in memory.
type Recorder struct {
	mu   sync.Mutex
	sent []schemas.Notification
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Notify(_ context.Context, n schemas.Notification) (string, error) {
	n = ensureID(n)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return n.ID, nil
}

// Sent returns a copy of the recorded notifications in delivery order.
func (r *Recorder) Sent() []schemas.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]schemas.Notification(nil), r.sent...)
}

// Len returns the number of recorded notifications.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

// Reset forgets every recorded notification.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}
