package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/suchimauz/clinic-workflow-engine/internal/config"
	"github.com/suchimauz/clinic-workflow-engine/internal/core/domain"
	"github.com/suchimauz/clinic-workflow-engine/internal/core/json_types"
	"github.com/suchimauz/clinic-workflow-engine/internal/core/ports/in"
	"github.com/suchimauz/clinic-workflow-engine/internal/core/ports/out"
	"github.com/suchimauz/clinic-workflow-engine/internal/utils"
)

var _ in.RevenueUseCase = (*RevenueService)(nil)

type RevenueService struct {
	appointmentStore out.AppointmentStorePort
	recordStore      out.RecordStorePort
	inventory        out.InventoryPort
	feeCatalog       out.FeeCatalogPort
	logger           out.LoggerPort
	cfg              *config.Config
}

func NewRevenueService(
	appointmentStore out.AppointmentStorePort,
	recordStore out.RecordStorePort,
	inventory out.InventoryPort,
	feeCatalog out.FeeCatalogPort,
	cfg *config.Config,
	logger out.LoggerPort,
) *RevenueService {
	return &RevenueService{
		appointmentStore: appointmentStore,
		recordStore:      recordStore,
		inventory:        inventory,
		feeCatalog:       feeCatalog,
		cfg:              cfg,
		logger:           logger.WithModule("RevenueService"),
	}
}

// Сверка выручки: только завершенные визиты с привязанным фармацевтом.
// Все суммы - неотрицательные целые в минимальных единицах валюты.
func (s *RevenueService) ComputeRevenue(ctx context.Context, actor domain.Actor, startDate, endDate time.Time) (*domain.RevenueReport, []domain.DebugInfo, error) {
	if !actor.Is(domain.RoleStaff) {
		return nil, nil, fmt.Errorf("revenue report requires staff role: %w", domain.ErrUnauthorized)
	}

	debugInfo := make([]domain.DebugInfo, 0, 3)

	// Границы периода - календарные дни, конечный день входит целиком
	periodStart := utils.StartCurrentDay(startDate)
	periodEnd := utils.StartNextDay(endDate)

	fetch_appointments_debug := domain.DebugInfo{
		Event: "revenue.appointments.fetch",
	}
	fetch_appointments_debug.Start()
	fetch_appointments_debug.AddOption("start", periodStart.Format("2006-01-02"))
	fetch_appointments_debug.AddOption("end", endDate.Format("2006-01-02"))

	appointments, err := s.appointmentStore.ListAppointmentsByPeriod(ctx, periodStart, periodEnd)
	if err != nil {
		s.logger.Error("revenue.appointments.fetch_failed", out.LogFields{
			"error": err.Error(),
		})
		return nil, nil, fmt.Errorf("revenue.appointments.fetch_failed: %w", err)
	}

	fetch_appointments_debug.Elapse()
	debugInfo = append(debugInfo, fetch_appointments_debug)

	// Визит попадает в отчет, когда он завершен и его выдача (если была)
	// состоялась: выручка по препаратам реализуется в момент выдачи
	qualifying := make([]domain.Appointment, 0, len(appointments))
	for _, appointment := range appointments {
		if appointment.Status != domain.AppointmentStatusCompleted || appointment.Pharmacist == nil {
			continue
		}
		qualifying = append(qualifying, appointment)
	}

	fetch_records_debug := domain.DebugInfo{
		Event: "revenue.records.fetch",
	}
	fetch_records_debug.Start()

	appointmentIDs := make([]uuid.UUID, 0, len(qualifying))
	for _, appointment := range qualifying {
		appointmentIDs = append(appointmentIDs, appointment.ID)
	}

	// Одна пакетная выборка медкарт вместо запроса на каждый визит
	records, err := s.recordStore.GetMedicalRecordsByAppointments(ctx, appointmentIDs)
	if err != nil {
		s.logger.Error("revenue.records.fetch_failed", out.LogFields{
			"error": err.Error(),
		})
		return nil, nil, fmt.Errorf("revenue.records.fetch_failed: %w", err)
	}

	fetch_records_debug.Elapse()
	debugInfo = append(debugInfo, fetch_records_debug)

	compute_debug := domain.DebugInfo{
		Event: "revenue.compute",
	}
	compute_debug.Start()
	compute_debug.AddOption("qualifying", strconv.Itoa(len(qualifying)))

	fees, err := s.qualifyingFees(ctx, qualifying)
	if err != nil {
		return nil, nil, err
	}

	medicines, err := s.dispensedMedicines(ctx, records)
	if err != nil {
		return nil, nil, err
	}

	report := &domain.RevenueReport{
		TotalAppointments: len(qualifying),
		Period: domain.RevenuePeriod{
			Start: json_types.Date{Date: startDate},
			End:   json_types.Date{Date: endDate},
		},
	}

	for _, appointment := range qualifying {
		report.ExaminationRevenue += s.examinationAmount(&appointment, fees)

		// Отсутствие медкарты у исторического визита - ноль по препаратам,
		// не ошибка
		record, exists := records[appointment.ID]
		if !exists || record.Status != domain.RecordStatusDispensed {
			continue
		}

		for _, line := range record.Medications {
			medicine, exists := medicines[line.Medicine.ID]
			if !exists {
				s.logger.Warn("revenue.medicine_missing", out.LogFields{
					"recordId":   record.ID,
					"medicineId": line.Medicine.ID,
				})
				continue
			}
			report.MedicineRevenue += int64(line.Quantity) * medicine.Price
			report.TotalMedicinesSold += line.Quantity
		}
	}

	report.TotalRevenue = report.ExaminationRevenue + report.MedicineRevenue

	compute_debug.Elapse()
	debugInfo = append(debugInfo, compute_debug)

	s.logger.Info("revenue.computed", out.LogFields{
		"totalAppointments":  report.TotalAppointments,
		"examinationRevenue": report.ExaminationRevenue,
		"medicineRevenue":    report.MedicineRevenue,
		"totalRevenue":       report.TotalRevenue,
	})

	return report, debugInfo, nil
}

func (s *RevenueService) examinationAmount(appointment *domain.Appointment, fees map[uuid.UUID]*domain.ExaminationFee) int64 {
	if appointment.ExaminationFeeID == nil {
		// Совместимость со старыми записями с встроенной суммой
		return appointment.LegacyExaminationFee
	}

	fee, exists := fees[*appointment.ExaminationFeeID]
	if !exists {
		s.logger.Warn("revenue.fee_missing", out.LogFields{
			"appointmentId": appointment.ID,
			"feeId":         *appointment.ExaminationFeeID,
		})
		return 0
	}

	return fee.Fee
}

func (s *RevenueService) qualifyingFees(ctx context.Context, appointments []domain.Appointment) (map[uuid.UUID]*domain.ExaminationFee, error) {
	feeIDs := make([]uuid.UUID, 0, len(appointments))
	seen := make(map[uuid.UUID]struct{})
	for _, appointment := range appointments {
		if appointment.ExaminationFeeID == nil {
			continue
		}
		if _, exists := seen[*appointment.ExaminationFeeID]; exists {
			continue
		}
		seen[*appointment.ExaminationFeeID] = struct{}{}
		feeIDs = append(feeIDs, *appointment.ExaminationFeeID)
	}

	if len(feeIDs) == 0 {
		return map[uuid.UUID]*domain.ExaminationFee{}, nil
	}

	fees, err := s.feeCatalog.GetExaminationFees(ctx, feeIDs)
	if err != nil {
		return nil, fmt.Errorf("revenue.fees.fetch_failed: %w", err)
	}

	return fees, nil
}

func (s *RevenueService) dispensedMedicines(ctx context.Context, records map[uuid.UUID]*domain.MedicalRecord) (map[uuid.UUID]*domain.Medicine, error) {
	medicineIDs := make([]uuid.UUID, 0)
	seen := make(map[uuid.UUID]struct{})
	for _, record := range records {
		if record.Status != domain.RecordStatusDispensed {
			continue
		}
		for _, line := range record.Medications {
			if _, exists := seen[line.Medicine.ID]; exists {
				continue
			}
			seen[line.Medicine.ID] = struct{}{}
			medicineIDs = append(medicineIDs, line.Medicine.ID)
		}
	}

	if len(medicineIDs) == 0 {
		return map[uuid.UUID]*domain.Medicine{}, nil
	}

	medicines, err := s.inventory.GetMedicines(ctx, medicineIDs)
	if err != nil {
		return nil, fmt.Errorf("revenue.medicines.fetch_failed: %w", err)
	}

	return medicines, nil
}
