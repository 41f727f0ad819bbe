package retrieval

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/bankwatch/internal/classifier"
	"github.com/xaenox/bankwatch/internal/models"
	"github.com/xaenox/bankwatch/internal/storage"
)

// Gate reports whether message access has been granted.
type Gate interface {
	Granted() bool
}

// Service answers inbox queries against a message store.
type Service struct {
	store   storage.MessageStore
	gate    Gate
	sender  classifier.SenderMatcher
	content classifier.ContentMatcher
	now     func() time.Time
	logger  *zap.Logger
}

func NewService(store storage.MessageStore, gate Gate, sender classifier.SenderMatcher, content classifier.ContentMatcher, logger *zap.Logger) *Service {
	return &Service{
		store:   store,
		gate:    gate,
		sender:  sender,
		content: content,
		now:     time.Now,
		logger:  logger,
	}
}

// WithClock replaces the clock used to compute day windows.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Query returns at most params.Limit messages newer than params.Since,
// newest first. With BankOnly set only messages from a financial sender
// that describe a transaction are kept. The store's own limit is treated as
// a hint; the cap is enforced here.
func (s *Service) Query(ctx context.Context, params models.QueryParams) ([]models.Message, error) {
	params = params.Normalize()

	if !s.gate.Granted() {
		return nil, ErrPermissionDenied
	}

	cursor, err := s.store.Read(ctx, storage.Filter{
		After:       params.Since,
		NewestFirst: true,
		LimitHint:   params.Limit,
	})
	if err != nil {
		s.logger.Error("Failed to read message store", zap.Error(err))
		return nil, &StoreError{Op: "read", Err: err}
	}
	defer cursor.Close()

	messages := make([]models.Message, 0, params.Limit)
	scanned := 0
	for len(messages) < params.Limit && cursor.Next() {
		scanned++
		msg := toMessage(cursor.Row())
		if params.BankOnly && !s.Matches(msg) {
			continue
		}
		messages = append(messages, msg)
	}
	if err := cursor.Err(); err != nil {
		s.logger.Error("Failed to iterate message store", zap.Error(err), zap.Int("scanned", scanned))
		return nil, &StoreError{Op: "scan", Err: err}
	}

	s.logger.Debug("Query completed",
		zap.Int("limit", params.Limit),
		zap.Int64("since", params.Since),
		zap.Bool("bank_only", params.BankOnly),
		zap.Int("scanned", scanned),
		zap.Int("returned", len(messages)))
	return messages, nil
}

// Matches reports whether a message passes both classifiers.
func (s *Service) Matches(m models.Message) bool {
	return s.sender.IsFinancialSender(m.Address) && s.content.IsTransactionMessage(m.Body)
}

func (s *Service) GetMessages(ctx context.Context, limit int, since int64) ([]models.Message, error) {
	return s.Query(ctx, models.QueryParams{Limit: limit, Since: since})
}

// GetBankMessages returns transaction messages from the last days days.
func (s *Service) GetBankMessages(ctx context.Context, limit int, days int) ([]models.Message, error) {
	if days <= 0 {
		days = models.DefaultDays
	}
	since := s.now().UnixMilli() - int64(days)*models.DayMillis
	return s.Query(ctx, models.QueryParams{Limit: limit, Since: since, BankOnly: true})
}

func toMessage(row storage.Row) models.Message {
	msg := models.Message{
		ID:   row.ID,
		Date: row.Date,
		Type: models.Direction(row.Type),
	}
	if row.Address != nil {
		msg.Address = *row.Address
	}
	if row.Body != nil {
		msg.Body = *row.Body
	}
	return msg
}
