package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openuni/registrar-api/internal/models"
	"github.com/openuni/registrar-api/pkg/jobs"
)

// Notifier receives registrar events fire-and-forget. Implementations must
// never block the calling engine or surface delivery errors into it.
type Notifier interface {
	Emit(event models.Event)
}

// NopNotifier discards events. Useful default for tests.
type NopNotifier struct{}

// Emit implements Notifier.
func (NopNotifier) Emit(models.Event) {}

// NotificationService dispatches registrar events on an in-process worker
// queue. Delivery here means handing the fact to the log sink; real channels
// (email, SMS) are downstream consumers outside this service.
type NotificationService struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewNotificationService constructs the dispatcher and its queue.
func NewNotificationService(workers, bufferSize int, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{logger: logger}
	s.queue = jobs.NewQueue("notifications", s.deliver, jobs.QueueConfig{
		Workers:    workers,
		BufferSize: bufferSize,
		Logger:     logger,
	})
	return s
}

// Start launches the queue workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Emit enqueues the event without blocking. A full buffer drops the event
// with a warning; notification loss is acceptable, enrollment latency is not.
func (s *NotificationService) Emit(event models.Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	err := s.queue.TryEnqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    string(event.Kind),
		Payload: event,
	})
	if err != nil {
		s.logger.Warn("notification dropped", zap.String("kind", string(event.Kind)), zap.Error(err))
	}
}

func (s *NotificationService) deliver(_ context.Context, job jobs.Job) error {
	event, ok := job.Payload.(models.Event)
	if !ok {
		s.logger.Warn("unexpected notification payload", zap.String("job", job.ID))
		return nil
	}
	s.logger.Info("notification",
		zap.String("kind", string(event.Kind)),
		zap.String("enrollment_id", event.EnrollmentID),
		zap.String("student_id", event.StudentID),
		zap.String("section_id", event.SectionID),
		zap.Time("occurred_at", event.OccurredAt),
	)
	return nil
}
