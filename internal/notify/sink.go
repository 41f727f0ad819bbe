package notify

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xaenox/bankwatch/internal/models"
)

// Sink receives transaction notifications from the live and poll paths.
type Sink interface {
	Notify(ctx context.Context, n models.Notification) error
}

type SinkFunc func(ctx context.Context, n models.Notification) error

func (f SinkFunc) Notify(ctx context.Context, n models.Notification) error { return f(ctx, n) }

// New builds a live-path notification with a fresh id.
func New(address, body string, date int64) models.Notification {
	return models.Notification{
		ID:      uuid.NewString(),
		Address: address,
		Body:    body,
		Date:    date,
		Origin:  models.OriginLive,
	}
}

// FromMessage builds a poll-path notification for a stored message.
func FromMessage(m models.Message) models.Notification {
	return models.Notification{
		ID:        uuid.NewString(),
		MessageID: m.ID,
		Address:   m.Address,
		Body:      m.Body,
		Date:      m.Date,
		Origin:    models.OriginPoll,
	}
}

// LogSink writes notifications to the structured log.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Notify(ctx context.Context, n models.Notification) error {
	s.logger.Info("Transaction message",
		zap.String("notification_id", n.ID),
		zap.String("origin", string(n.Origin)),
		zap.String("address", n.Address),
		zap.Int64("date", n.Date),
		zap.String("body", n.Body))
	return nil
}

// Multi fans a notification out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Notify(ctx context.Context, n models.Notification) error {
	var errs []error
	for _, s := range m {
		if err := s.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func fingerprint(n models.Notification) string {
	return strings.ToUpper(strings.TrimSpace(n.Address)) + "\x00" + strings.TrimSpace(n.Body)
}
