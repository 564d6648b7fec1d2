package services

import (
	"context"
	"sync"
	"time"

	"focusforgeAPI/internal/logger"
	"focusforgeAPI/internal/types/notification"
)

type PushNotificationProvider interface {
	SendPush(ctx context.Context, tokens []notification.DeviceToken, title, body string, data map[string]any) error
}

// NotificationDispatcher pushes stored notifications to user devices from a
// small worker pool and periodically deletes expired rows.
type NotificationDispatcher struct {
	service      *NotificationService
	pushProvider PushNotificationProvider
	workers      int
	jobQueue     chan *notification.Notification
	stopChan     chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
	log          *logger.Logger
}

func NewNotificationDispatcher(service *NotificationService, provider PushNotificationProvider, log *logger.Logger) *NotificationDispatcher {
	d := &NotificationDispatcher{
		service:      service,
		pushProvider: provider,
		workers:      5,
		jobQueue:     make(chan *notification.Notification, 100),
		stopChan:     make(chan struct{}),
		log:          log.With("component", "NotificationDispatcher"),
	}

	d.startWorkers()

	d.wg.Add(1)
	go d.cleanupExpiredNotifications(24 * time.Hour)

	return d
}

func (d *NotificationDispatcher) startWorkers() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

func (d *NotificationDispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case n := <-d.jobQueue:
			d.processJob(n)
		case <-d.stopChan:
			return
		}
	}
}

func (d *NotificationDispatcher) processJob(n *notification.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st := d.service.store
	tokens, err := st.ListDeviceTokens(ctx, n.UserID)
	if err != nil {
		d.log.Warn("failed to load device tokens", "user_id", n.UserID, "error", err)
		d.mark(ctx, n, notification.StatusFailed)
		return
	}

	if len(tokens) > 0 && d.pushProvider != nil {
		if err := d.pushProvider.SendPush(ctx, tokens, n.Title, n.Message, n.Data); err != nil {
			d.log.Warn("push failed", "user_id", n.UserID, "notification_id", n.ID, "error", err)
			d.mark(ctx, n, notification.StatusFailed)
			return
		}
	} else {
		d.log.Debug("skipping push", "tokens", len(tokens), "provider_set", d.pushProvider != nil)
	}

	d.mark(ctx, n, notification.StatusSent)
}

func (d *NotificationDispatcher) mark(ctx context.Context, n *notification.Notification, status notification.NotificationStatus) {
	if err := d.service.store.MarkNotificationStatus(ctx, n.ID, status); err != nil {
		d.log.Warn("failed to update notification status", "notification_id", n.ID, "status", status, "error", err)
	}
}

// DispatchNotification queues n for delivery without waiting. When the queue
// is full the push is dropped and the row stays pending.
func (d *NotificationDispatcher) DispatchNotification(n *notification.Notification) {
	select {
	case <-d.stopChan:
		return
	default:
	}
	select {
	case d.jobQueue <- n:
	default:
		d.log.Warn("notification queue full, push dropped", "notification_id", n.ID, "user_id", n.UserID)
	}
}

func (d *NotificationDispatcher) cleanupExpiredNotifications(every time.Duration) {
	defer d.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.performCleanup()
		case <-d.stopChan:
			return
		}
	}
}

func (d *NotificationDispatcher) performCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	deleted, err := d.service.store.DeleteExpiredNotifications(ctx, time.Now())
	if err != nil {
		d.log.Error("failed to cleanup expired notifications", "error", err)
		return
	}
	if deleted > 0 {
		d.log.Info("cleaned up expired notifications", "count", deleted)
	}
}

func (d *NotificationDispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.log.Info("stopping notification dispatcher")
		close(d.stopChan)
		d.wg.Wait()
	})
}
