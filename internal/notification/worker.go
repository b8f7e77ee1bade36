package notification

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"repair-tracker-backend/internal/model"
	"repair-tracker-backend/internal/timer"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool tells subscribers when a machine they follow is finished.
type WorkerPool struct {
	size    int
	jobs    chan uint
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan uint, size*16),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Worker %d started", id)
	for {
		select {
		case machineID := <-wp.jobs:
			log.Printf("Worker %d processing machine %d", id, machineID)
			wp.sendNotificationsForMachine(ctx, machineID)
		case <-ctx.Done():
			log.Printf("Worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues a notification job. It never blocks the caller; when the
// queue is full the job is dropped.
func (wp *WorkerPool) Dispatch(machineID uint) bool {
	select {
	case wp.jobs <- machineID:
		return true
	default:
		log.Printf("Notification queue full, dropping job for machine %d", machineID)
		return false
	}
}

// PhaseUpdated dispatches a job whenever a phase is stopped successfully.
func (wp *WorkerPool) PhaseUpdated(_ context.Context, e timer.Event) {
	if e.Err != nil || e.Action != timer.Stop {
		return
	}
	wp.Dispatch(e.MachineID)
}

func (wp *WorkerPool) sendNotificationsForMachine(ctx context.Context, machineID uint) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_machine_mapping smm ON smm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("smm.machine_id = ?", machineID).
		Find(&subscriptions).Error
	if err != nil {
		log.Printf("Error fetching subscriptions for machine %d: %v", machineID, err)
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	log.Printf("Sending %d notifications for machine %d", len(subscriptions), machineID)

	var machine model.Machine
	machineLabel := fmt.Sprintf("%d", machineID)
	if err := wp.db.WithContext(ctx).
		Select("name").
		First(&machine, machineID).Error; err != nil {
		log.Printf("Error fetching machine %d: %v", machineID, err)
	} else if machine.Name != "" {
		machineLabel = machine.Name
	}

	message := fmt.Sprintf("Machine %s is finished", machineLabel)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, []byte(message))
	}
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
