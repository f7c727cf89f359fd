package notification

import (
	"context"
	"log/slog"
)

// Service contains the business logic for notification operations
type Service struct {
	repo      Repository
	messenger Messenger
	logger    *slog.Logger
}

// NewService creates a new notification service. messenger may be nil when
// push delivery is not configured; records are still stored.
func NewService(repo Repository, messenger Messenger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, messenger: messenger, logger: logger.With("component", "notification")}
}

// RegisterDevice registers a device token for a user.
// If the token already belongs to another user, it is reassigned.
func (s *Service) RegisterDevice(ctx context.Context, params CreateDeviceTokenParams) (*DeviceToken, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return s.repo.UpsertDeviceToken(ctx, params)
}

// DeactivateToken marks a token the push service rejected as inactive.
func (s *Service) DeactivateToken(ctx context.Context, token string) error {
	if token == "" {
		return ErrInvalidToken
	}
	return s.repo.DeactivateToken(ctx, token)
}

// SendToUser sends a push notification to every active device of a user
// and stores a notification record.
func (s *Service) SendToUser(ctx context.Context, userID int64, title, body, category string, data map[string]string) error {
	params := CreateNotificationParams{
		UserID:   userID,
		Title:    title,
		Message:  body,
		Category: category,
		Data:     data,
	}
	if err := params.Validate(); err != nil {
		return err
	}

	if params.Data == nil {
		params.Data = make(map[string]string)
	}
	if _, ok := params.Data["route"]; !ok {
		params.Data["route"] = category
	}

	tokens, err := s.repo.GetActiveTokensByUserID(ctx, userID)
	if err != nil {
		return err
	}

	if len(tokens) == 0 {
		s.logger.DebugContext(ctx, "no active device tokens", "user_id", userID)
	} else if s.messenger != nil {
		tokenStrings := make([]string, len(tokens))
		for i, t := range tokens {
			tokenStrings[i] = t.Token
		}

		push := Push{Title: title, Body: body, Data: params.Data}
		delivered, err := s.messenger.Deliver(ctx, tokenStrings, push)
		if err != nil {
			s.logger.ErrorContext(ctx, "error sending notification", "user_id", userID, "error", err)
		} else if delivered == 0 {
			s.logger.WarnContext(ctx, "notification reached no device", "user_id", userID, "tokens", len(tokenStrings))
		}
	}

	if _, err := s.repo.CreateNotification(ctx, params); err != nil {
		s.logger.ErrorContext(ctx, "error storing notification", "user_id", userID, "error", err)
	}

	return nil
}
