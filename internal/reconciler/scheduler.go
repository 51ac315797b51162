package reconciler

import (
	"context"
	"time"

	"github.com/lkadlec/cashier/internal/telegram"
	"github.com/lkadlec/cashier/pkg/logger"
)

// Scheduler triggers the two reconciliation cycles periodically. The
// cycles are independent and run as separate workers; within one worker
// a cycle either finishes or fails before the next trigger is honored,
// so runs of the same cycle never overlap. A failed cycle is logged and
// reported, never fatal to the process.
type Scheduler struct {
	service             *Service
	notifier            telegram.Notifier
	transactionInterval time.Duration
	flightInterval      time.Duration
	runOnStartup        bool
	logger              *logger.Logger
}

// NewScheduler creates a cycle scheduler
func NewScheduler(service *Service, notifier telegram.Notifier, transactionInterval, flightInterval time.Duration, runOnStartup bool, logger *logger.Logger) *Scheduler {
	return &Scheduler{
		service:             service,
		notifier:            notifier,
		transactionInterval: transactionInterval,
		flightInterval:      flightInterval,
		runOnStartup:        runOnStartup,
		logger:              logger.Named("scheduler"),
	}
}

// Start launches both cycle workers. They stop when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.runLoop(ctx, "transaction", s.transactionInterval, s.service.RunTransactionCycle)
	go s.runLoop(ctx, "flight", s.flightInterval, s.service.RunFlightCycle)
}

// runLoop runs one cycle worker: an optional startup run, then one run
// per tick.
func (s *Scheduler) runLoop(ctx context.Context, name string, interval time.Duration, cycle func(context.Context) error) {
	s.logger.Info("Starting cycle worker",
		logger.String("cycle", name),
		logger.Duration("interval", interval),
	)

	if s.runOnStartup {
		s.runCycle(ctx, name, cycle)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping cycle worker", logger.String("cycle", name))
			return
		case <-ticker.C:
			s.runCycle(ctx, name, cycle)
		}
	}
}

// runCycle executes one cycle run and contains its failure
func (s *Scheduler) runCycle(ctx context.Context, name string, cycle func(context.Context) error) {
	s.logger.Info("Executing cycle", logger.String("cycle", name))
	start := time.Now()

	err := cycle(ctx)
	if err == nil {
		s.logger.Info("Cycle finished",
			logger.String("cycle", name),
			logger.Duration("duration", time.Since(start)),
		)
		return
	}
	if ctx.Err() != nil {
		return
	}

	s.logger.Error("Cycle failed",
		logger.String("cycle", name),
		logger.Error(err),
	)
	if sendErr := s.notifier.Send(ctx, CycleFailureMsg(name, err)); sendErr != nil {
		s.logger.Error("Failed to send cycle failure alert", logger.Error(sendErr))
	}
}
