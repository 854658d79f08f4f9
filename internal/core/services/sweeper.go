package services

import (
	"context"
	"sync"
	"time"

	"github.com/suchimauz/clinic-workflow-engine/internal/config"
	"github.com/suchimauz/clinic-workflow-engine/internal/core/domain"
	"github.com/suchimauz/clinic-workflow-engine/internal/core/ports/in"
	"github.com/suchimauz/clinic-workflow-engine/internal/core/ports/out"
)

// Фоновый запуск авто-отмены по таймеру, сама логика прохода живет
// в AppointmentUseCase.SweepLate
type Sweeper struct {
	useCase  in.AppointmentUseCase
	cfg      *config.Config
	logger   out.LoggerPort
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewSweeper(useCase in.AppointmentUseCase, cfg *config.Config, logger out.LoggerPort) *Sweeper {
	return &Sweeper{
		useCase:  useCase,
		cfg:      cfg,
		logger:   logger.WithModule("Sweeper"),
		stopChan: make(chan struct{}),
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	if !s.cfg.Sweeper.Enabled {
		s.logger.Info("sweeper.disabled", out.LogFields{})
		return
	}

	s.logger.Info("sweeper.started", out.LogFields{
		"interval": s.cfg.Sweeper.Interval.String(),
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.cfg.Sweeper.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()
}

func (s *Sweeper) runOnce(ctx context.Context) {
	report, err := s.useCase.SweepLate(ctx, domain.SystemActor())
	if err != nil {
		s.logger.Error("sweeper.pass_failed", out.LogFields{
			"error": err.Error(),
		})
		return
	}

	s.logger.Debug("sweeper.pass_done", out.LogFields{
		"swept":   report.Swept,
		"skipped": report.Skipped,
	})
}

func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
}
