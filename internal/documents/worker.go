package documents

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// RetryWorker drives Service.RetryPending on a cron schedule. A run that
// is still going when the next tick fires is skipped.
type RetryWorker struct {
	service  *Service
	schedule string
	logger   *logrus.Logger
	cron     *cron.Cron
}

func NewRetryWorker(service *Service, schedule string, logger *logrus.Logger) *RetryWorker {
	return &RetryWorker{service: service, schedule: schedule, logger: logger}
}

func (w *RetryWorker) Start(ctx context.Context) error {
	cronLogger := cron.PrintfLogger(w.logger)
	c := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	if _, err := c.AddFunc(w.schedule, func() { w.Run(ctx) }); err != nil {
		return fmt.Errorf("invalid document retry schedule %q: %w", w.schedule, err)
	}
	w.cron = c
	c.Start()

	w.logger.WithField("schedule", w.schedule).Info("Document retry worker started")
	return nil
}

func (w *RetryWorker) Run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	done, err := w.service.RetryPending(ctx)
	if err != nil {
		w.logger.WithError(err).Error("Document retry run failed")
		return
	}
	if done > 0 {
		w.logger.WithField("generated", done).Info("Document retry run finished")
	}
}

// Stop waits for a running job to finish.
func (w *RetryWorker) Stop() {
	if w.cron == nil {
		return
	}
	<-w.cron.Stop().Done()
	w.logger.Info("Document retry worker stopped")
}
