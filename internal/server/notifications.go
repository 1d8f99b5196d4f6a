package server

import (
	"context"
	"sync"
	"time"
)

const (
	NotificationSaveSucceeded  = "save-succeeded"
	NotificationSaveFailed     = "save-failed"
	NotificationSnapshotFailed = "snapshot-failed"
	NotificationUploadFailed   = "upload-failed"

	notificationHeartbeat         = "heartbeat"
	notificationHeartbeatInterval = 25 * time.Second
)

// Notification is a transient, toast-style message for the admin UI.
type Notification struct {
	Subject    string    `json:"-"`
	EventType  string    `json:"type"`
	SessionID  string    `json:"session_id,omitempty"`
	DocumentID string    `json:"document_id,omitempty"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

// NotificationDispatcher fans notifications out to the streams of one subject.
// Slow subscribers lose messages instead of blocking publishers.
type NotificationDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*notificationSubscriber
	nextID      int64
	bufferSize  int
}

type notificationSubscriber struct {
	id     int64
	stream chan Notification
}

func NewNotificationDispatcher() *NotificationDispatcher {
	return &NotificationDispatcher{
		subscribers: make(map[string]map[int64]*notificationSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a stream for subject until ctx ends or cleanup runs.
func (d *NotificationDispatcher) Subscribe(ctx context.Context, subject string) (<-chan Notification, func()) {
	if subject == "" {
		ch := make(chan Notification)
		close(ch)
		return ch, func() {}
	}
	subscriber := &notificationSubscriber{
		id:     d.nextSequence(),
		stream: make(chan Notification, d.bufferSize),
	}
	d.registerSubscriber(subject, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(subject, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *NotificationDispatcher) Publish(notification Notification) {
	if notification.Subject == "" || notification.EventType == "" {
		return
	}
	if notification.Timestamp.IsZero() {
		notification.Timestamp = time.Now().UTC()
	}
	d.mu.RLock()
	subscribers := d.subscribers[notification.Subject]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*notificationSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- notification:
		default:
		}
	}
}

func (d *NotificationDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *NotificationDispatcher) registerSubscriber(subject string, subscriber *notificationSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[subject]; !ok {
		d.subscribers[subject] = make(map[int64]*notificationSubscriber)
	}
	d.subscribers[subject][subscriber.id] = subscriber
}

func (d *NotificationDispatcher) unregisterSubscriber(subject string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[subject]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, subject)
		}
	}
	d.mu.Unlock()
}
