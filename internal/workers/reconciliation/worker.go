package reconciliation

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/paygo-service/paygo_service/internal/domain/services/reconciliation"
)

// Worker runs the reconciliation sweep on a cron schedule
type Worker struct {
	service  *reconciliation.Service
	schedule string
	cron     *cron.Cron
	logger   *zap.Logger
}

// NewWorker creates a reconciliation worker. The schedule accepts standard
// cron expressions and descriptors such as "@every 5m".
func NewWorker(service *reconciliation.Service, schedule string, logger *zap.Logger) *Worker {
	return &Worker{
		service:  service,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger,
	}
}

func (w *Worker) Start() error {
	_, err := w.cron.AddFunc(w.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		if _, err := w.service.Sweep(ctx); err != nil {
			w.logger.Error("Reconciliation sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	w.cron.Start()
	w.logger.Info("Reconciliation worker started", zap.String("schedule", w.schedule))
	return nil
}

func (w *Worker) Stop() {
	ctx := w.cron.Stop()
	<-ctx.Done()
	w.logger.Info("Reconciliation worker stopped")
}
