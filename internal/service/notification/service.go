package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/bloodbank/internal/email"
	"github.com/jwalitptl/bloodbank/internal/model"
	"github.com/jwalitptl/bloodbank/pkg/logger"
	"github.com/jwalitptl/bloodbank/pkg/messaging"
	"github.com/jwalitptl/bloodbank/pkg/metrics"
)

const (
	maxRetries = 3
	retryDelay = 500 * time.Millisecond

	ChannelEmail = "email"
	ChannelSMS   = "sms"
	ChannelInApp = "in_app"
)

// Dispatcher hands one notification to its delivery channel.
type Dispatcher interface {
	Dispatch(ctx context.Context, notification *model.Notification) error
}

type Service struct {
	emailSvc email.Service
	broker   messaging.Broker
	metrics  *metrics.Metrics
	log      *logger.Logger

	retries    int
	retryDelay time.Duration
	now        func() time.Time
}

func NewService(emailSvc email.Service, broker messaging.Broker, m *metrics.Metrics, log *logger.Logger) *Service {
	return &Service{
		emailSvc:   emailSvc,
		broker:     broker,
		metrics:    m,
		log:        log,
		retries:    maxRetries,
		retryDelay: retryDelay,
		now:        time.Now,
	}
}

// SetRetry overrides the delivery attempts and the base delay between them.
func (s *Service) SetRetry(attempts int, delay time.Duration) {
	if attempts > 0 {
		s.retries = attempts
	}
	s.retryDelay = delay
}

// Dispatch delivers the notification synchronously and records the outcome
// on it.
func (s *Service) Dispatch(ctx context.Context, notification *model.Notification) error {
	if err := validateNotification(notification); err != nil {
		return fmt.Errorf("invalid notification: %w", err)
	}

	if notification.ID == uuid.Nil {
		notification.ID = uuid.New()
	}
	notification.CreatedAt = s.now()
	notification.Status = model.NotificationStatusPending

	var err error
	switch notification.Channel {
	case ChannelEmail:
		err = s.withRetry(ctx, func() error {
			return s.emailSvc.SendCustom(ctx, notification.Recipient, notification.Subject, notification.Content)
		})
	case ChannelInApp:
		err = s.broker.Publish(ctx, messaging.ChannelNotifications, notification)
	default:
		err = fmt.Errorf("unsupported channel: %s", notification.Channel)
	}

	if err != nil {
		notification.Status = model.NotificationStatusFailed
		notification.LastError = err.Error()
		s.metrics.BroadcastDelivery.WithLabelValues(string(model.NotificationStatusFailed)).Inc()
		s.log.Warn("notification delivery failed",
			"notification_id", notification.ID.String(),
			"channel", notification.Channel,
			"error", err.Error())
		return err
	}

	notification.Status = model.NotificationStatusSent
	notification.SentAt = s.now()
	s.metrics.BroadcastDelivery.WithLabelValues(string(model.NotificationStatusSent)).Inc()
	return nil
}

func (s *Service) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; i < s.retries; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == s.retries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.retryDelay * time.Duration(i+1)):
		}
	}
	return err
}

func validateNotification(notification *model.Notification) error {
	if notification.UserID == uuid.Nil {
		return fmt.Errorf("user ID is required")
	}

	if notification.Channel == "" {
		return fmt.Errorf("channel is required")
	}

	if notification.Channel == ChannelEmail && notification.Recipient == "" {
		return fmt.Errorf("recipient is required")
	}

	if notification.Content == "" {
		return fmt.Errorf("content is required")
	}

	return nil
}
