package connector

import (
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"strings"
	"sync"
)

// Notification is an event emitted by a management bean.
type Notification struct {
	Type    string
	Message string
}

// NotificationFunc is called by a Runtime on its own dispatch goroutine.
type NotificationFunc func(n Notification)

// Subscription is the handle returned by Runtime.Subscribe.
type Subscription interface {
	Unsubscribe() error
}

// Runtime is the management runtime that exposes beans emitting exception notifications.
type Runtime interface {
	IsRegistered(id string) bool
	Subscribe(id string, fn NotificationFunc) (Subscription, error)
}

var messageNewlines = strings.NewReplacer("\r\n", "#", "\n", "#", "\r", "#")

// notificationBridge subscribes to the exception notifications of the configured bean
// identifiers. Identifiers that are not registered yet stay pending and are retried on
// every scan.
type notificationBridge struct {
	runtime Runtime
	forward func(n Notification)
	logger  *zap.Logger

	mu      sync.Mutex
	pending []string
	subs    map[string]Subscription
}

func newNotificationBridge(runtime Runtime, ids []string, forward func(n Notification), logger *zap.Logger) *notificationBridge {
	return &notificationBridge{
		runtime: runtime,
		forward: forward,
		logger:  logger,
		pending: append([]string(nil), ids...),
		subs:    make(map[string]Subscription),
	}
}

func (b *notificationBridge) scan() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.runtime == nil || len(b.pending) == 0 {
		return
	}

	stillPending := b.pending[:0]
	for _, id := range b.pending {
		if !b.runtime.IsRegistered(id) {
			stillPending = append(stillPending, id)
			continue
		}
		sub, err := b.runtime.Subscribe(id, b.handle)
		if err != nil {
			b.logger.Warn("Failed to subscribe to exception notifications", zap.String("id", id), zap.Error(err))
			stillPending = append(stillPending, id)
			continue
		}
		b.subs[id] = sub
		b.logger.Info("Subscribed to exception notifications", zap.String("id", id))
	}
	b.pending = stillPending
}

func (b *notificationBridge) handle(n Notification) {
	b.forward(Notification{
		Type:    n.Type,
		Message: messageNewlines.Replace(n.Message),
	})
}

func (b *notificationBridge) pendingIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.pending...)
}

func (b *notificationBridge) isSubscribed(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.subs[id]
	return ok
}

// close cancels every subscription. Cancelled identifiers are not subscribed again.
func (b *notificationBridge) close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var err error
	for id, sub := range b.subs {
		err = multierr.Append(err, sub.Unsubscribe())
		delete(b.subs, id)
	}
	b.pending = nil
	return err
}
