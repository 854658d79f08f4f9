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

var _ in.RecordUseCase = (*RecordService)(nil)

type RecordService struct {
	appointmentStore out.AppointmentStorePort
	recordStore      out.RecordStorePort
	inventory        out.InventoryPort
	cachePort        out.CachePort
	logger           out.LoggerPort
	cfg              *config.Config
	now              func() time.Time
}

func NewRecordService(
	appointmentStore out.AppointmentStorePort,
	recordStore out.RecordStorePort,
	inventory out.InventoryPort,
	cachePort out.CachePort,
	cfg *config.Config,
	logger out.LoggerPort,
) *RecordService {
	return &RecordService{
		appointmentStore: appointmentStore,
		recordStore:      recordStore,
		inventory:        inventory,
		cachePort:        cachePort,
		cfg:              cfg,
		logger:           logger.WithModule("RecordService"),
		now:              time.Now,
	}
}

func (s *RecordService) CreateRecord(ctx context.Context, actor domain.Actor, appointmentID uuid.UUID,
	fields in.ClinicalFields, lines []domain.MedicationLine) (*domain.MedicalRecord, error) {
	if !actor.Is(domain.RoleDoctor) {
		return nil, fmt.Errorf("record creation requires doctor role: %w", domain.ErrUnauthorized)
	}

	appointment, err := s.appointmentStore.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appointment.Status != domain.AppointmentStatusChecked {
		return nil, &domain.TransitionError{
			AppointmentID: appointmentID,
			From:          domain.AppointmentStatusChecked,
			To:            domain.AppointmentStatusCompleted,
			Current:       appointment.Status,
		}
	}

	medications, err := s.filterLines(ctx, appointmentID, lines)
	if err != nil {
		return nil, err
	}

	record := domain.MedicalRecord{
		ID:                      uuid.New(),
		AppointmentID:           appointmentID,
		Diagnosis:               fields.Diagnosis,
		Treatment:               fields.Treatment,
		Symptoms:                fields.Symptoms,
		FollowUpRecommendations: fields.FollowUpRecommendations,
		Notes:                   fields.Notes,
		Medications:             medications,
		Status:                  domain.RecordStatusPrescribed,
	}

	created, err := s.recordStore.CreateMedicalRecord(ctx, record)
	if err != nil {
		s.logger.Error("record.create.failed", out.LogFields{
			"appointmentId": appointmentID,
			"error":         err.Error(),
		})
		return nil, fmt.Errorf("record.create.failed: %w", err)
	}

	// Завершение записи на прием - часть той же логической операции. Если оно
	// не прошло, медкарта уже создана: отдаем ее вместе с ошибкой, оператор
	// повторяет завершение отдельной операцией.
	if _, err := s.appointmentStore.CompareAndSwapStatus(ctx, appointmentID,
		domain.AppointmentStatusChecked, domain.AppointmentStatusCompleted,
		out.AppointmentUpdate{}); err != nil {
		s.logger.Error("record.create.completion_failed", out.LogFields{
			"appointmentId": appointmentID,
			"recordId":      created.ID,
			"error":         err.Error(),
		})
		return created, &domain.CompletionPendingError{
			AppointmentID: appointmentID,
			RecordID:      created.ID,
			Cause:         err,
		}
	}

	s.invalidateDay(ctx, appointment.Time.Date)

	s.logger.Info("record.create.done", out.LogFields{
		"appointmentId": appointmentID,
		"recordId":      created.ID,
		"lines":         len(medications),
	})

	return created, nil
}

// Отсев строк назначения: препарат должен существовать, быть активным,
// непросроченным и с достаточным остатком, строка - корректно заполненной.
// Некорректные строки молча не сохраняются, клиент предупреждает до отправки.
func (s *RecordService) filterLines(ctx context.Context, appointmentID uuid.UUID, lines []domain.MedicationLine) ([]domain.MedicationLine, error) {
	if len(lines) == 0 {
		return []domain.MedicationLine{}, nil
	}

	medicineIDs := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		medicineIDs = append(medicineIDs, line.Medicine.ID)
	}

	medicines, err := s.inventory.GetMedicines(ctx, medicineIDs)
	if err != nil {
		return nil, fmt.Errorf("record.create.medicines_fetch_failed: %w", err)
	}

	now := s.now()
	kept := make([]domain.MedicationLine, 0, len(lines))
	for _, line := range lines {
		medicine, exists := medicines[line.Medicine.ID]
		if !line.WellFormed() || !exists || !medicine.Dispensable(now, line.Quantity) {
			s.logger.Warn("record.create.line_dropped", out.LogFields{
				"appointmentId": appointmentID,
				"medicineId":    line.Medicine.ID,
				"quantity":      line.Quantity,
			})
			continue
		}
		// Раскрываем ссылку на препарат один раз на границе данных
		line.Medicine.Display = medicine.DrugName
		kept = append(kept, line)
	}

	return kept, nil
}

func (s *RecordService) Dispense(ctx context.Context, actor domain.Actor, recordID uuid.UUID) (*domain.MedicalRecord, error) {
	if !actor.Is(domain.RolePharmacist, domain.RoleStaff) {
		return nil, fmt.Errorf("dispense requires pharmacist or staff role: %w", domain.ErrUnauthorized)
	}

	record, err := s.recordStore.GetMedicalRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if record.Status == domain.RecordStatusDispensed {
		return nil, fmt.Errorf("record %s: %w", recordID, domain.ErrAlreadyDispensed)
	}

	// CAS первым: конкурентные выдачи сериализуются здесь, проигравший
	// получает AlreadyDispensed и не трогает остатки
	dispensed, err := s.recordStore.CompareAndSwapRecordStatus(ctx, recordID,
		domain.RecordStatusPrescribed, domain.RecordStatusDispensed)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			return nil, fmt.Errorf("record %s: %w", recordID, domain.ErrAlreadyDispensed)
		}
		return nil, err
	}

	decrements := make([]out.StockDecrement, 0, len(dispensed.Medications))
	for _, line := range dispensed.Medications {
		decrements = append(decrements, out.StockDecrement{
			MedicineID: line.Medicine.ID,
			Quantity:   line.Quantity,
		})
	}

	// Списание атомарно по всем строкам: либо все, либо ничего
	if err := s.inventory.DecrementStock(ctx, decrements); err != nil {
		// Возвращаем медкарту в prescribed, выдачу можно повторить
		if _, rollbackErr := s.recordStore.CompareAndSwapRecordStatus(ctx, recordID,
			domain.RecordStatusDispensed, domain.RecordStatusPrescribed); rollbackErr != nil {
			s.logger.Error("dispense.rollback_failed", out.LogFields{
				"recordId": recordID,
				"error":    rollbackErr.Error(),
			})
		}
		s.logger.Warn("dispense.stock_failed", out.LogFields{
			"recordId": recordID,
			"error":    err.Error(),
		})
		return nil, err
	}

	// Привязываем фармацевта к записи на прием: с этого момента визит
	// участвует в сверке выручки
	appointment, err := s.bindPharmacist(ctx, dispensed.AppointmentID, actor.Reference())
	if err != nil {
		s.logger.Warn("dispense.pharmacist_bind_failed", out.LogFields{
			"recordId":      recordID,
			"appointmentId": dispensed.AppointmentID,
			"error":         err.Error(),
		})
	} else {
		s.invalidateDay(ctx, appointment.Time.Date)
	}

	s.logger.Info("dispense.done", out.LogFields{
		"recordId":      recordID,
		"appointmentId": dispensed.AppointmentID,
		"lines":         len(decrements),
	})

	return dispensed, nil
}

// Привязка не зависит от статуса записи на прием: выдача могла произойти
// раньше, чем оператор повторил зависшее завершение. CAS текущий -> текущий,
// при конкурентной смене статуса одна повторная попытка.
func (s *RecordService) bindPharmacist(ctx context.Context, appointmentID uuid.UUID, pharmacist domain.Reference) (*domain.Appointment, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		appointment, err := s.appointmentStore.GetAppointment(ctx, appointmentID)
		if err != nil {
			return nil, err
		}

		bound, err := s.appointmentStore.CompareAndSwapStatus(ctx, appointmentID,
			appointment.Status, appointment.Status,
			out.AppointmentUpdate{Pharmacist: &pharmacist})
		if err == nil {
			return bound, nil
		}
		if !errors.Is(err, domain.ErrInvalidTransition) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (s *RecordService) invalidateDay(ctx context.Context, day time.Time) {
	if s.cachePort != nil && s.cfg.Cache.Enabled {
		s.cachePort.InvalidateDay(ctx, utils.StartCurrentDay(day))
	}
}
