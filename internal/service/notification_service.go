package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arka-labs/academy-api/internal/models"
	"github.com/arka-labs/academy-api/pkg/jobs"
	"github.com/arka-labs/academy-api/pkg/mailer"
)

const jobTypeEmail = "email"

// NotificationService delivers transactional email off the request path
// through a background queue. Enqueue failures are logged, never surfaced:
// a dropped notification must not fail the mutation that triggered it.
type NotificationService struct {
	mailer mailer.Mailer
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewNotificationService constructs the service and its delivery queue.
func NewNotificationService(m mailer.Mailer, workers int, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{mailer: m, logger: logger}
	s.queue = jobs.NewQueue(jobTypeEmail, s.deliver, jobs.QueueConfig{
		Workers: workers,
		Logger:  logger,
	})
	return s
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the delivery workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// NotifyBatchAssigned emails a student that they were placed into a batch.
// Students without an email address are skipped.
func (s *NotificationService) NotifyBatchAssigned(student *models.Student, batch *models.Batch) {
	if student.Email == "" {
		s.logger.Debug("skipping assignment notification, student has no email",
			zap.String("student_id", student.ID))
		return
	}
	schedule := ""
	for i, day := range batch.DaysOfWeek {
		if i > 0 {
			schedule += ", "
		}
		schedule += day
	}
	s.enqueue(mailer.Message{
		ToName:    student.FullName,
		ToAddress: student.Email,
		Subject:   fmt.Sprintf("You have been added to %s", batch.Name),
		TextBody: fmt.Sprintf(
			"Hi %s,\n\nYou have been added to the batch %q.\nClasses run %s from %s to %s.\n\nSee you in class!",
			student.FullName, batch.Name, schedule, batch.StartTime, batch.EndTime),
	})
}

// NotifyLevelPassed emails a student that they cleared a ladder level.
func (s *NotificationService) NotifyLevelPassed(student *models.Student, level, score int) {
	if student.Email == "" {
		return
	}
	body := fmt.Sprintf(
		"Hi %s,\n\nCongratulations! You scored %d/%d and passed level %d.",
		student.FullName, score, models.MockTestMaxScore, level)
	if level < models.NumLevels {
		body += fmt.Sprintf(" Level %d is now open.", level+1)
	} else {
		body += " You have completed the full ladder!"
	}
	s.enqueue(mailer.Message{
		ToName:    student.FullName,
		ToAddress: student.Email,
		Subject:   fmt.Sprintf("Level %d passed", level),
		TextBody:  body,
	})
}

func (s *NotificationService) enqueue(msg mailer.Message) {
	err := s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    jobTypeEmail,
		Payload: msg,
	})
	if err != nil {
		s.logger.Warn("failed to enqueue notification",
			zap.String("to", msg.ToAddress),
			zap.Error(err),
		)
	}
}

func (s *NotificationService) deliver(_ context.Context, job jobs.Job) error {
	msg, ok := job.Payload.(mailer.Message)
	if !ok {
		s.logger.Error("discarding job with unexpected payload", zap.String("job_id", job.ID))
		return nil
	}
	return s.mailer.Send(msg)
}
