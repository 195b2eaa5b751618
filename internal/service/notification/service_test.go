package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/bloodbank/internal/model"
	"github.com/jwalitptl/bloodbank/pkg/logger"
	"github.com/jwalitptl/bloodbank/pkg/messaging"
	"github.com/jwalitptl/bloodbank/pkg/metrics"
)

type mockEmail struct {
	mock.Mock
}

func (m *mockEmail) SendCustom(ctx context.Context, to, subject, content string) error {
	return m.Called(to, subject, content).Error(0)
}

func emailNotification() *model.Notification {
	return &model.Notification{
		UserID:    uuid.New(),
		Channel:   ChannelEmail,
		Recipient: "donor@example.org",
		Subject:   "Blood needed",
		Content:   "O- needed at the central bank.",
	}
}

func TestDispatchEmail(t *testing.T) {
	mail := new(mockEmail)
	mail.On("SendCustom", "donor@example.org", "Blood needed", "O- needed at the central bank.").Return(nil).Once()
	m := metrics.NewNop()
	svc := NewService(mail, messaging.NewMemoryBroker(), m, logger.Nop())

	n := emailNotification()
	require.NoError(t, svc.Dispatch(context.Background(), n))

	assert.Equal(t, model.NotificationStatusSent, n.Status)
	assert.NotEqual(t, uuid.Nil, n.ID)
	assert.False(t, n.SentAt.IsZero())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BroadcastDelivery.WithLabelValues("sent")))
	mail.AssertExpectations(t)
}

func TestDispatchEmailRetriesThenFails(t *testing.T) {
	mail := new(mockEmail)
	mail.On("SendCustom", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))
	m := metrics.NewNop()
	svc := NewService(mail, messaging.NewMemoryBroker(), m, logger.Nop())
	svc.SetRetry(3, 0)

	n := emailNotification()
	err := svc.Dispatch(context.Background(), n)
	require.Error(t, err)

	assert.Equal(t, model.NotificationStatusFailed, n.Status)
	assert.Equal(t, "smtp down", n.LastError)
	mail.AssertNumberOfCalls(t, "SendCustom", 3)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BroadcastDelivery.WithLabelValues("failed")))
}

func TestDispatchEmailRecoversOnRetry(t *testing.T) {
	mail := new(mockEmail)
	mail.On("SendCustom", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("timeout")).Once()
	mail.On("SendCustom", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	svc := NewService(mail, messaging.NewMemoryBroker(), metrics.NewNop(), logger.Nop())
	svc.SetRetry(3, 0)

	n := emailNotification()
	require.NoError(t, svc.Dispatch(context.Background(), n))
	assert.Equal(t, model.NotificationStatusSent, n.Status)
	mail.AssertNumberOfCalls(t, "SendCustom", 2)
}

func TestDispatchInAppPublishes(t *testing.T) {
	broker := messaging.NewMemoryBroker()
	svc := NewService(new(mockEmail), broker, metrics.NewNop(), logger.Nop())

	n := &model.Notification{UserID: uuid.New(), Channel: ChannelInApp, Content: "Thanks for donating"}
	require.NoError(t, svc.Dispatch(context.Background(), n))
	assert.Len(t, broker.Published(messaging.ChannelNotifications), 1)
}

func TestDispatchValidates(t *testing.T) {
	svc := NewService(new(mockEmail), messaging.NewMemoryBroker(), metrics.NewNop(), logger.Nop())

	n := emailNotification()
	n.Recipient = ""
	assert.Error(t, svc.Dispatch(context.Background(), n))

	n = emailNotification()
	n.Channel = ChannelSMS
	err := svc.Dispatch(context.Background(), n)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported channel")
}
