package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ReminderSender is the part of the review service the scheduler drives.
type ReminderSender interface {
	SendOverdueReminders(ctx context.Context) (int, error)
}

// ReminderScheduler runs the overdue reminder sweep on a cron schedule.
type ReminderScheduler struct {
	cron   *cron.Cron
	sender ReminderSender
	log    logrus.FieldLogger
	jobID  cron.EntryID
}

func NewReminderScheduler(sender ReminderSender, log logrus.FieldLogger) *ReminderScheduler {
	return &ReminderScheduler{
		cron:   cron.New(),
		sender: sender,
		log:    log,
	}
}

// Start registers the sweep under schedule (standard five-field cron syntax
// or descriptors such as "@every 1h") and starts the scheduler.
func (s *ReminderScheduler) Start(schedule string) error {
	var err error
	s.jobID, err = s.cron.AddFunc(schedule, s.RunOnce)
	if err != nil {
		return fmt.Errorf("error scheduling reminder job: %w", err)
	}
	s.cron.Start()
	s.log.WithField("schedule", schedule).Info("reminder scheduler started")
	return nil
}

// RunOnce performs a single sweep.
func (s *ReminderScheduler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	sent, err := s.sender.SendOverdueReminders(ctx)
	if err != nil {
		s.log.WithError(err).Error("overdue reminder sweep failed")
		return
	}
	s.log.WithField("sent", sent).Info("overdue reminder sweep finished")
}

// Stop waits for a running sweep to finish.
func (s *ReminderScheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("reminder scheduler stopped")
}
