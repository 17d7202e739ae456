package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tutorbase/schedule-api/pkg/config"
	"github.com/tutorbase/schedule-api/pkg/jobs"
)

// Notification event types published at transition boundaries.
const (
	EventBookingRequested    = "booking_requested"
	EventBookingApproved     = "booking_approved"
	EventBookingDeclined     = "booking_declined"
	EventBookingRescheduled  = "booking_rescheduled"
	EventWaitlistPromoted    = "waitlist_promoted"
	EventEnrollmentConfirmed = "enrollment_confirmed"
)

// Event is the payload handed to the external messaging collaborator.
type Event struct {
	Type      string                 `json:"type"`
	Recipient string                 `json:"recipient"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	SentAt    time.Time              `json:"sent_at"`
}

// NotificationService dispatches events to the messaging collaborator through
// an in-process worker queue. Delivery is fire-and-forget with bounded
// retries; a failed delivery never rolls back the transition that caused it.
type NotificationService struct {
	dispatcher *jobs.Dispatcher
	webhookURL string
	client     *http.Client
	logger     *zap.Logger
	enabled    bool
}

// NewNotificationService constructs the dispatcher. With no webhook URL
// configured, events are logged instead of delivered.
func NewNotificationService(cfg config.NotificationsConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{
		webhookURL: cfg.WebhookURL,
		client:     &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		enabled:    cfg.Enabled,
	}
	s.dispatcher = jobs.NewDispatcher(s.deliver, jobs.Options{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
	}, logger.Named("notifications"))
	return s
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	if s.enabled {
		s.dispatcher.Start(ctx)
	}
}

// Stop drains the workers.
func (s *NotificationService) Stop() {
	if s.enabled {
		s.dispatcher.Stop()
	}
}

// Publish enqueues an event. Errors are logged and swallowed: notification is
// best-effort by contract.
func (s *NotificationService) Publish(event Event) {
	if !s.enabled {
		return
	}
	if event.SentAt.IsZero() {
		event.SentAt = time.Now().UTC()
	}
	task := jobs.Task{ID: uuid.NewString(), Kind: event.Type, Payload: event}
	if err := s.dispatcher.Submit(task); err != nil {
		s.logger.Warn("failed to enqueue notification",
			zap.String("event", event.Type),
			zap.String("recipient", event.Recipient),
			zap.Error(err))
	}
}

func (s *NotificationService) deliver(ctx context.Context, task jobs.Task) error {
	event, ok := task.Payload.(Event)
	if !ok {
		return fmt.Errorf("unexpected notification payload %T", task.Payload)
	}

	if s.webhookURL == "" {
		s.logger.Info("notification",
			zap.String("event", event.Type),
			zap.String("recipient", event.Recipient),
			zap.Any("payload", event.Payload))
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver notification: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("notification webhook returned %d", resp.StatusCode)
	}
	return nil
}
