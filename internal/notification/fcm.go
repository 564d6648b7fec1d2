// Package notification delivers stored notifications to devices through
// Firebase Cloud Messaging.
package notification

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"focusforgeAPI/internal/logger"
	"focusforgeAPI/internal/types/notification"
)

var ErrAllPushesFailed = errors.New("all push notifications failed")

type messageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

type FCMService struct {
	client messageSender
	log    *logger.Logger
}

// NewFCMService initializes FCMService. Base64 encoded credentials win over
// the local service account file.
func NewFCMService(ctx context.Context, encodedCreds, localFilePath string, log *logger.Logger) (*FCMService, error) {
	log = log.With("component", "fcm")

	var opt option.ClientOption
	if encodedCreds != "" {
		decoded, err := base64.StdEncoding.DecodeString(encodedCreds)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 firebase credentials: %w", err)
		}
		opt = option.WithCredentialsJSON(decoded)
		log.Info("initializing from FCM_SERVICE_ACCOUNT_JSON")
	} else {
		if _, err := os.Stat(localFilePath); err != nil {
			return nil, fmt.Errorf("firebase credentials file %s: %w", localFilePath, err)
		}
		opt = option.WithCredentialsFile(localFilePath)
		log.Info("initializing from credentials file", "path", localFilePath)
	}

	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	return &FCMService{client: client, log: log}, nil
}

func stringData(data map[string]any) map[string]string {
	out := make(map[string]string, len(data))
	for k, v := range data {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}

// buildMessage returns nil for platforms FCM cannot reach.
func buildMessage(t notification.DeviceToken, title, body string, data map[string]string) *messaging.Message {
	msg := &messaging.Message{
		Token: t.Token,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
	}

	switch strings.ToLower(t.Platform) {
	case "", "android":
		msg.Android = &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound: "default",
			},
		}
	case "ios":
		msg.APNS = &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: "default"},
			},
		}
	default:
		return nil
	}
	return msg
}

// SendPush sends one message per token. Sending one by one avoids the
// legacy batch endpoint; the call fails only when every send failed.
func (s *FCMService) SendPush(ctx context.Context, tokens []notification.DeviceToken, title, body string, data map[string]any) error {
	if len(tokens) == 0 {
		return nil
	}

	payload := stringData(data)
	sent, failed := 0, 0
	var lastErr error
	for _, t := range tokens {
		msg := buildMessage(t, title, body, payload)
		if msg == nil {
			continue
		}
		if _, err := s.client.Send(ctx, msg); err != nil {
			s.log.Warn("send failed", "platform", t.Platform, "error", err)
			failed++
			lastErr = err
			continue
		}
		sent++
	}

	s.log.Debug("push batch finished", "sent", sent, "failed", failed)
	if sent == 0 && failed > 0 {
		return fmt.Errorf("%w: %v", ErrAllPushesFailed, lastErr)
	}
	return nil
}
