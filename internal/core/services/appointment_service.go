package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/suchimauz/clinic-workflow-engine/internal/config"
	"github.com/suchimauz/clinic-workflow-engine/internal/core/domain"
	"github.com/suchimauz/clinic-workflow-engine/internal/core/ports/in"
	"github.com/suchimauz/clinic-workflow-engine/internal/core/ports/out"
	"github.com/suchimauz/clinic-workflow-engine/internal/utils"
)

// Жесткая граница политики отмены пациентом, не настраивается per-call
const patientCancelCutoff = 12 * time.Hour

// Фиксированная системная причина авто-отмены
const sweepCancelReason = "auto-cancelled: patient no-show"

var _ in.AppointmentUseCase = (*AppointmentService)(nil)

type AppointmentService struct {
	appointmentStore out.AppointmentStorePort
	recordStore      out.RecordStorePort
	feeCatalog       out.FeeCatalogPort
	cachePort        out.CachePort
	logger           out.LoggerPort
	cfg              *config.Config
	now              func() time.Time
}

func NewAppointmentService(
	appointmentStore out.AppointmentStorePort,
	recordStore out.RecordStorePort,
	feeCatalog out.FeeCatalogPort,
	cachePort out.CachePort,
	cfg *config.Config,
	logger out.LoggerPort,
) *AppointmentService {
	return &AppointmentService{
		appointmentStore: appointmentStore,
		recordStore:      recordStore,
		feeCatalog:       feeCatalog,
		cachePort:        cachePort,
		cfg:              cfg,
		logger:           logger.WithModule("AppointmentService"),
		now:              time.Now,
	}
}

func (s *AppointmentService) DoctorQueue(ctx context.Context, actor domain.Actor, doctorID uuid.UUID, day time.Time) ([]in.QueueEntry, error) {
	if !actor.Is(domain.RoleStaff, domain.RoleDoctor, domain.RoleSystem) {
		return nil, fmt.Errorf("doctor queue requires staff or doctor role: %w", domain.ErrUnauthorized)
	}

	// Проход авто-отмены при каждом обновлении очереди
	if s.cfg.Sweeper.OnRefresh {
		if _, err := s.SweepLate(ctx, domain.SystemActor()); err != nil {
			s.logger.Warn("queue.sweep_on_refresh.failed", out.LogFields{
				"error": err.Error(),
			})
		}
	}

	day = utils.StartCurrentDay(day)
	appointments, err := s.dayAppointments(ctx, doctorID, day)
	if err != nil {
		s.logger.Error("queue.fetch_failed", out.LogFields{
			"doctorId": doctorID,
			"day":      day.Format("2006-01-02"),
			"error":    err.Error(),
		})
		return nil, fmt.Errorf("queue.fetch_failed: %w", err)
	}

	now := s.now()
	entries := make([]in.QueueEntry, 0, len(appointments))
	for _, appointment := range appointments {
		// Отмененные записи в рабочую очередь не попадают
		if appointment.Status == domain.AppointmentStatusCancelled {
			continue
		}
		entries = append(entries, in.QueueEntry{
			Appointment: appointment,
			Class:       appointment.QueueClass(now),
		})
	}

	entries = queueSlice(entries).quickSort()

	s.logger.Debug("queue.built", out.LogFields{
		"doctorId": doctorID,
		"day":      day.Format("2006-01-02"),
		"count":    len(entries),
	})

	return entries, nil
}

func (s *AppointmentService) dayAppointments(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]domain.Appointment, error) {
	if s.cachePort != nil && s.cfg.Cache.Enabled {
		if appointments, exists := s.cachePort.GetDayAppointments(ctx, doctorID, day); exists {
			s.logger.Debug("queue.cache.hit", out.LogFields{
				"doctorId": doctorID,
				"count":    len(appointments),
			})
			return appointments, nil
		}
	}

	appointments, err := s.appointmentStore.ListAppointmentsByDate(ctx, doctorID, day)
	if err != nil {
		return nil, err
	}

	if s.cachePort != nil && s.cfg.Cache.Enabled {
		s.cachePort.StoreDayAppointments(ctx, doctorID, day, appointments)
	}

	return appointments, nil
}

func (s *AppointmentService) CheckIn(ctx context.Context, actor domain.Actor, appointmentID uuid.UUID) (*domain.Appointment, error) {
	if !actor.Is(domain.RoleStaff) {
		return nil, fmt.Errorf("check-in requires staff role: %w", domain.ErrUnauthorized)
	}

	appointment, err := s.appointmentStore.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	fee, err := s.selectExaminationFee(ctx, appointment.DoctorSpecialty)
	if err != nil {
		s.logger.Error("appointment.checkin.fee_selection_failed", out.LogFields{
			"appointmentId": appointmentID,
			"specialty":     appointment.DoctorSpecialty,
			"error":         err.Error(),
		})
		return nil, err
	}

	checkedAt := s.now()
	updated, err := s.appointmentStore.CompareAndSwapStatus(ctx, appointmentID,
		domain.AppointmentStatusBooked, domain.AppointmentStatusChecked,
		out.AppointmentUpdate{
			ExaminationFeeID: &fee.ID,
			CheckedAt:        &checkedAt,
		})
	if err != nil {
		s.logger.Warn("appointment.checkin.cas_conflict", out.LogFields{
			"appointmentId": appointmentID,
			"error":         err.Error(),
		})
		return nil, err
	}

	s.invalidateDay(ctx, updated.Time.Date)

	s.logger.Info("appointment.checkin.done", out.LogFields{
		"appointmentId": appointmentID,
		"feeId":         fee.ID,
		"fee":           fee.Fee,
	})

	return updated, nil
}

// Подбор стоимости осмотра: совпадение по специальности, затем запись без
// специальности, затем первая активная. Пустой каталог - отказ по precondition.
func (s *AppointmentService) selectExaminationFee(ctx context.Context, specialty string) (*domain.ExaminationFee, error) {
	fees, err := s.activeFees(ctx)
	if err != nil {
		return nil, fmt.Errorf("fee catalog fetch failed: %w", err)
	}
	if len(fees) == 0 {
		return nil, fmt.Errorf("no active examination fee: %w", domain.ErrPreconditionFailed)
	}

	for i := range fees {
		if fees[i].MatchesSpecialty(specialty) {
			return &fees[i], nil
		}
	}
	for i := range fees {
		if fees[i].Specialty == nil {
			return &fees[i], nil
		}
	}

	return &fees[0], nil
}

func (s *AppointmentService) activeFees(ctx context.Context) ([]domain.ExaminationFee, error) {
	if s.cachePort != nil && s.cfg.Cache.Enabled {
		if fees, exists := s.cachePort.GetFeeCatalog(ctx); exists {
			return fees, nil
		}
	}

	s.logger.Debug("feecatalog.cache.miss", out.LogFields{})

	fees, err := s.feeCatalog.ListActiveExaminationFees(ctx)
	if err != nil {
		return nil, err
	}

	if s.cachePort != nil && s.cfg.Cache.Enabled {
		s.cachePort.StoreFeeCatalog(ctx, fees)
	}

	return fees, nil
}

func (s *AppointmentService) Cancel(ctx context.Context, actor domain.Actor, appointmentID uuid.UUID, reason string) (*domain.Appointment, error) {
	appointment, err := s.appointmentStore.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	expected := appointment.Status
	switch {
	case actor.Is(domain.RoleStaff, domain.RoleSystem):
		// Персонал может отменить любую незавершенную запись
		if expected.IsTerminal() {
			return nil, &domain.TransitionError{
				AppointmentID: appointmentID,
				From:          expected,
				To:            domain.AppointmentStatusCancelled,
				Current:       expected,
			}
		}
	case actor.Is(domain.RolePatient):
		if appointment.Patient.ID != actor.ID {
			return nil, fmt.Errorf("patient may cancel only own appointment: %w", domain.ErrUnauthorized)
		}
		if expected != domain.AppointmentStatusBooked {
			return nil, &domain.TransitionError{
				AppointmentID: appointmentID,
				From:          expected,
				To:            domain.AppointmentStatusCancelled,
				Current:       expected,
			}
		}
		// Жесткая граница: до приема должно оставаться не меньше 12 часов
		if appointment.Time.Date.Sub(s.now()) < patientCancelCutoff {
			return nil, fmt.Errorf("patient cancellation window closed: %w", domain.ErrUnauthorized)
		}
	default:
		return nil, fmt.Errorf("cancel requires staff or patient role: %w", domain.ErrUnauthorized)
	}

	updated, err := s.appointmentStore.CompareAndSwapStatus(ctx, appointmentID,
		expected, domain.AppointmentStatusCancelled,
		out.AppointmentUpdate{AppendNotes: reason})
	if err != nil {
		s.logger.Warn("appointment.cancel.cas_conflict", out.LogFields{
			"appointmentId": appointmentID,
			"error":         err.Error(),
		})
		return nil, err
	}

	s.invalidateDay(ctx, updated.Time.Date)

	s.logger.Info("appointment.cancel.done", out.LogFields{
		"appointmentId": appointmentID,
		"actorRole":     actor.Role,
		"reason":        reason,
	})

	return updated, nil
}

// Повторная попытка завершения после того, как медкарта уже была создана,
// но переход checked -> completed не прошел
func (s *AppointmentService) Complete(ctx context.Context, actor domain.Actor, appointmentID uuid.UUID) (*domain.Appointment, error) {
	if !actor.Is(domain.RoleDoctor) {
		return nil, fmt.Errorf("complete requires doctor role: %w", domain.ErrUnauthorized)
	}

	// Завершение требует существующей медкарты
	if _, err := s.recordStore.GetMedicalRecordByAppointment(ctx, appointmentID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("no medical record for appointment %s: %w", appointmentID, domain.ErrPreconditionFailed)
		}
		return nil, err
	}

	updated, err := s.appointmentStore.CompareAndSwapStatus(ctx, appointmentID,
		domain.AppointmentStatusChecked, domain.AppointmentStatusCompleted,
		out.AppointmentUpdate{})
	if err != nil {
		return nil, err
	}

	s.invalidateDay(ctx, updated.Time.Date)

	s.logger.Info("appointment.complete.done", out.LogFields{
		"appointmentId": appointmentID,
	})

	return updated, nil
}

func (s *AppointmentService) SweepLate(ctx context.Context, actor domain.Actor) (*in.SweepReport, error) {
	if !actor.Is(domain.RoleStaff, domain.RoleSystem) {
		return nil, fmt.Errorf("sweep requires staff or system role: %w", domain.ErrUnauthorized)
	}

	now := s.now()
	appointments, err := s.appointmentStore.ListAppointmentsByPeriod(ctx, now.Add(-s.cfg.Sweeper.Lookback), now)
	if err != nil {
		return nil, fmt.Errorf("sweep.fetch_failed: %w", err)
	}

	report := &in.SweepReport{}
	touchedDays := make(map[time.Time]struct{})

	for _, appointment := range appointments {
		if !appointment.IsLate(now) {
			continue
		}

		_, err := s.appointmentStore.CompareAndSwapStatus(ctx, appointment.ID,
			domain.AppointmentStatusBooked, domain.AppointmentStatusCancelled,
			out.AppointmentUpdate{AppendNotes: sweepCancelReason})
		if err != nil {
			// Запись успела уйти из booked - ожидаемый no-op, не ошибка
			if errors.Is(err, domain.ErrInvalidTransition) {
				report.Skipped++
				continue
			}
			s.logger.Error("sweep.cancel_failed", out.LogFields{
				"appointmentId": appointment.ID,
				"error":         err.Error(),
			})
			report.Skipped++
			continue
		}

		report.Swept++
		touchedDays[utils.StartCurrentDay(appointment.Time.Date)] = struct{}{}
	}

	for day := range touchedDays {
		s.invalidateDay(ctx, day)
	}

	if report.Swept > 0 {
		s.logger.Info("sweep.done", out.LogFields{
			"swept":   report.Swept,
			"skipped": report.Skipped,
		})
	}

	return report, nil
}

func (s *AppointmentService) invalidateDay(ctx context.Context, day time.Time) {
	if s.cachePort != nil && s.cfg.Cache.Enabled {
		s.cachePort.InvalidateDay(ctx, utils.StartCurrentDay(day))
	}
}
