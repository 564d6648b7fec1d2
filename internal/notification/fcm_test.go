package notification

import (
	"context"
	"errors"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focusforgeAPI/internal/logger"
	"focusforgeAPI/internal/types/notification"
)

type fakeSender struct {
	sent []*messaging.Message
	fail map[string]bool
}

func (f *fakeSender) Send(ctx context.Context, m *messaging.Message) (string, error) {
	if f.fail[m.Token] {
		return "", errors.New("registration-token-not-registered")
	}
	f.sent = append(f.sent, m)
	return "projects/x/messages/1", nil
}

func TestSendPushRoutesByPlatform(t *testing.T) {
	sender := &fakeSender{}
	svc := &FCMService{client: sender, log: logger.Nop()}

	err := svc.SendPush(context.Background(), []notification.DeviceToken{
		{Token: "a", Platform: "android"},
		{Token: "i", Platform: "ios"},
		{Token: "w", Platform: "web"},
		{Token: "u", Platform: ""},
	}, "Badge earned", "You earned First Steps", map[string]any{"points_bonus": 5})
	require.NoError(t, err)

	require.Len(t, sender.sent, 3)
	assert.Equal(t, "a", sender.sent[0].Token)
	assert.NotNil(t, sender.sent[0].Android)
	assert.Equal(t, "i", sender.sent[1].Token)
	assert.NotNil(t, sender.sent[1].APNS)
	assert.Nil(t, sender.sent[1].Android)
	assert.Equal(t, "5", sender.sent[0].Data["points_bonus"])
	assert.Equal(t, "Badge earned", sender.sent[2].Notification.Title)
}

func TestSendPushPartialFailureSucceeds(t *testing.T) {
	sender := &fakeSender{fail: map[string]bool{"bad": true}}
	svc := &FCMService{client: sender, log: logger.Nop()}

	err := svc.SendPush(context.Background(), []notification.DeviceToken{
		{Token: "bad", Platform: "android"},
		{Token: "good", Platform: "android"},
	}, "t", "b", nil)
	assert.NoError(t, err)
	assert.Len(t, sender.sent, 1)
}

func TestSendPushAllFailed(t *testing.T) {
	sender := &fakeSender{fail: map[string]bool{"bad": true}}
	svc := &FCMService{client: sender, log: logger.Nop()}

	err := svc.SendPush(context.Background(), []notification.DeviceToken{{Token: "bad", Platform: "android"}}, "t", "b", nil)
	assert.ErrorIs(t, err, ErrAllPushesFailed)
}

func TestSendPushNoTokens(t *testing.T) {
	svc := &FCMService{client: &fakeSender{}, log: logger.Nop()}
	assert.NoError(t, svc.SendPush(context.Background(), nil, "t", "b", nil))
}

func TestNewFCMServiceRejectsBadCredentials(t *testing.T) {
	_, err := NewFCMService(context.Background(), "%%not-base64%%", "", logger.Nop())
	assert.Error(t, err)

	_, err = NewFCMService(context.Background(), "", "/nonexistent/serviceAccountKey.json", logger.Nop())
	assert.Error(t, err)
}
