package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/suchimauz/clinic-workflow-engine/internal/core/domain"
	"github.com/suchimauz/clinic-workflow-engine/internal/core/json_types"
	"github.com/suchimauz/clinic-workflow-engine/internal/core/ports/out"
	"github.com/suchimauz/clinic-workflow-engine/internal/utils"
)

var (
	_ out.AppointmentStorePort = (*MemStore)(nil)
	_ out.RecordStorePort      = (*MemStore)(nil)
	_ out.InventoryPort        = (*MemStore)(nil)
	_ out.FeeCatalogPort       = (*MemStore)(nil)
)

// Запись журнала ручных корректировок остатка
type StockAuditEntry struct {
	At         time.Time      `json:"at"`
	Actor      domain.Actor   `json:"actor"`
	MedicineID uuid.UUID      `json:"medicineId"`
	Delta      int            `json:"delta"`
	Reason     string         `json:"reason"`
}

// Хранилище в памяти: локальный режим и тесты. Все операции под одним
// мьютексом, поэтому compare-and-set и списание по строкам атомарны.
type MemStore struct {
	mu                  sync.RWMutex
	appointments        map[uuid.UUID]*domain.Appointment
	records             map[uuid.UUID]*domain.MedicalRecord
	recordByAppointment map[uuid.UUID]uuid.UUID
	medicines           map[uuid.UUID]*domain.Medicine
	fees                []domain.ExaminationFee
	audit               []StockAuditEntry
	logger              out.LoggerPort
}

func NewMemStore(logger out.LoggerPort) *MemStore {
	return &MemStore{
		appointments:        make(map[uuid.UUID]*domain.Appointment),
		records:             make(map[uuid.UUID]*domain.MedicalRecord),
		recordByAppointment: make(map[uuid.UUID]uuid.UUID),
		medicines:           make(map[uuid.UUID]*domain.Medicine),
		fees:                []domain.ExaminationFee{},
		logger:              logger.WithModule("MemStore"),
	}
}

// Засев данных для локального режима и тестов

func (s *MemStore) PutAppointment(appointment domain.Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appointments[appointment.ID] = cloneAppointment(&appointment)
}

func (s *MemStore) PutMedicine(medicine domain.Medicine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := medicine
	s.medicines[medicine.ID] = &copied
}

func (s *MemStore) PutExaminationFee(fee domain.ExaminationFee) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fees = append(s.fees, fee)
}

// AppointmentStorePort

func (s *MemStore) GetAppointment(ctx context.Context, appointmentID uuid.UUID) (*domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	appointment, exists := s.appointments[appointmentID]
	if !exists {
		return nil, fmt.Errorf("appointment %s: %w", appointmentID, domain.ErrNotFound)
	}

	return cloneAppointment(appointment), nil
}

func (s *MemStore) ListAppointmentsByDate(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Appointment, 0)
	for _, appointment := range s.appointments {
		if !utils.SameDay(day, appointment.Time.Date) {
			continue
		}
		if doctorID != uuid.Nil && appointment.Doctor.ID != doctorID {
			continue
		}
		result = append(result, *cloneAppointment(appointment))
	}

	sortAppointments(result)
	return result, nil
}

func (s *MemStore) ListAppointmentsByPeriod(ctx context.Context, startDate, endDate time.Time) ([]domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Appointment, 0)
	for _, appointment := range s.appointments {
		// Полуинтервал: конец не включается
		at := appointment.Time.Date
		if at.Before(startDate) || !at.Before(endDate) {
			continue
		}
		result = append(result, *cloneAppointment(appointment))
	}

	sortAppointments(result)
	return result, nil
}

func (s *MemStore) CompareAndSwapStatus(ctx context.Context, appointmentID uuid.UUID,
	expected, next domain.AppointmentStatus, update out.AppointmentUpdate) (*domain.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appointment, exists := s.appointments[appointmentID]
	if !exists {
		return nil, fmt.Errorf("appointment %s: %w", appointmentID, domain.ErrNotFound)
	}

	if appointment.Status != expected {
		return nil, &domain.TransitionError{
			AppointmentID: appointmentID,
			From:          expected,
			To:            next,
			Current:       appointment.Status,
		}
	}

	appointment.Status = next
	if update.ExaminationFeeID != nil {
		feeID := *update.ExaminationFeeID
		appointment.ExaminationFeeID = &feeID
	}
	if update.CheckedAt != nil {
		appointment.CheckedAt = json_types.DateTimeOrEmpty{Date: *update.CheckedAt}
	}
	if update.Pharmacist != nil {
		pharmacist := *update.Pharmacist
		appointment.Pharmacist = &pharmacist
	}
	if update.AppendNotes != "" {
		if appointment.Notes == "" {
			appointment.Notes = update.AppendNotes
		} else {
			appointment.Notes = appointment.Notes + "; " + update.AppendNotes
		}
	}

	return cloneAppointment(appointment), nil
}

// RecordStorePort

func (s *MemStore) CreateMedicalRecord(ctx context.Context, record domain.MedicalRecord) (*domain.MedicalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.recordByAppointment[record.AppointmentID]; exists {
		return nil, fmt.Errorf("appointment %s already has a medical record: %w",
			record.AppointmentID, domain.ErrPreconditionFailed)
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	stored := cloneRecord(&record)
	s.records[record.ID] = stored
	s.recordByAppointment[record.AppointmentID] = record.ID

	return cloneRecord(stored), nil
}

func (s *MemStore) GetMedicalRecord(ctx context.Context, recordID uuid.UUID) (*domain.MedicalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.records[recordID]
	if !exists {
		return nil, fmt.Errorf("medical record %s: %w", recordID, domain.ErrNotFound)
	}

	return cloneRecord(record), nil
}

func (s *MemStore) GetMedicalRecordByAppointment(ctx context.Context, appointmentID uuid.UUID) (*domain.MedicalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recordID, exists := s.recordByAppointment[appointmentID]
	if !exists {
		return nil, fmt.Errorf("medical record for appointment %s: %w", appointmentID, domain.ErrNotFound)
	}

	return cloneRecord(s.records[recordID]), nil
}

func (s *MemStore) GetMedicalRecordsByAppointments(ctx context.Context, appointmentIDs []uuid.UUID) (map[uuid.UUID]*domain.MedicalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[uuid.UUID]*domain.MedicalRecord)
	for _, appointmentID := range appointmentIDs {
		recordID, exists := s.recordByAppointment[appointmentID]
		if !exists {
			continue
		}
		result[appointmentID] = cloneRecord(s.records[recordID])
	}

	return result, nil
}

func (s *MemStore) CompareAndSwapRecordStatus(ctx context.Context, recordID uuid.UUID,
	expected, next domain.RecordStatus) (*domain.MedicalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, exists := s.records[recordID]
	if !exists {
		return nil, fmt.Errorf("medical record %s: %w", recordID, domain.ErrNotFound)
	}

	if record.Status != expected {
		return nil, fmt.Errorf("medical record %s: status %s, expected %s: %w",
			recordID, record.Status, expected, domain.ErrInvalidTransition)
	}

	record.Status = next
	return cloneRecord(record), nil
}

// InventoryPort

func (s *MemStore) ListMedicines(ctx context.Context, onlyActive bool) ([]domain.Medicine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Medicine, 0, len(s.medicines))
	for _, medicine := range s.medicines {
		if onlyActive && !medicine.Active {
			continue
		}
		result = append(result, *medicine)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].DrugName < result[j].DrugName
	})

	return result, nil
}

func (s *MemStore) GetMedicines(ctx context.Context, medicineIDs []uuid.UUID) (map[uuid.UUID]*domain.Medicine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[uuid.UUID]*domain.Medicine)
	for _, medicineID := range medicineIDs {
		medicine, exists := s.medicines[medicineID]
		if !exists {
			continue
		}
		copied := *medicine
		result[medicineID] = &copied
	}

	return result, nil
}

func (s *MemStore) DecrementStock(ctx context.Context, decrements []out.StockDecrement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Сначала проверяем все строки, потом применяем: частичных списаний нет
	for _, decrement := range decrements {
		medicine, exists := s.medicines[decrement.MedicineID]
		if !exists {
			return fmt.Errorf("medicine %s: %w", decrement.MedicineID, domain.ErrNotFound)
		}
		if medicine.StockQuantity < decrement.Quantity {
			return &domain.InsufficientStockError{
				Medicine:  domain.Reference{ID: medicine.ID, Display: medicine.DrugName},
				Requested: decrement.Quantity,
				Available: medicine.StockQuantity,
			}
		}
	}

	for _, decrement := range decrements {
		s.medicines[decrement.MedicineID].StockQuantity -= decrement.Quantity
	}

	return nil
}

func (s *MemStore) AdjustStock(ctx context.Context, actor domain.Actor, medicineID uuid.UUID, delta int, reason string) (*domain.Medicine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	medicine, exists := s.medicines[medicineID]
	if !exists {
		return nil, fmt.Errorf("medicine %s: %w", medicineID, domain.ErrNotFound)
	}

	if medicine.StockQuantity+delta < 0 {
		return nil, &domain.InsufficientStockError{
			Medicine:  domain.Reference{ID: medicine.ID, Display: medicine.DrugName},
			Requested: -delta,
			Available: medicine.StockQuantity,
		}
	}

	medicine.StockQuantity += delta
	s.audit = append(s.audit, StockAuditEntry{
		At:         time.Now(),
		Actor:      actor,
		MedicineID: medicineID,
		Delta:      delta,
		Reason:     reason,
	})

	s.logger.Info("inventory.adjusted", out.LogFields{
		"medicineId": medicineID,
		"delta":      delta,
		"reason":     reason,
		"actor":      actor.Name,
	})

	copied := *medicine
	return &copied, nil
}

// Журнал корректировок, только чтение
func (s *MemStore) StockAudit() []StockAuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]StockAuditEntry, len(s.audit))
	copy(result, s.audit)
	return result
}

// FeeCatalogPort

func (s *MemStore) ListActiveExaminationFees(ctx context.Context) ([]domain.ExaminationFee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ExaminationFee, 0, len(s.fees))
	for _, fee := range s.fees {
		if !fee.Active {
			continue
		}
		result = append(result, fee)
	}

	return result, nil
}

func (s *MemStore) GetExaminationFees(ctx context.Context, feeIDs []uuid.UUID) (map[uuid.UUID]*domain.ExaminationFee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[uuid.UUID]*domain.ExaminationFee)
	for _, feeID := range feeIDs {
		for i := range s.fees {
			if s.fees[i].ID == feeID {
				copied := s.fees[i]
				result[feeID] = &copied
				break
			}
		}
	}

	return result, nil
}

func sortAppointments(appointments []domain.Appointment) {
	sort.Slice(appointments, func(i, j int) bool {
		return appointments[i].Time.Date.Before(appointments[j].Time.Date)
	})
}

func cloneAppointment(appointment *domain.Appointment) *domain.Appointment {
	copied := *appointment
	if appointment.ExaminationFeeID != nil {
		feeID := *appointment.ExaminationFeeID
		copied.ExaminationFeeID = &feeID
	}
	if appointment.Pharmacist != nil {
		pharmacist := *appointment.Pharmacist
		copied.Pharmacist = &pharmacist
	}
	return &copied
}

func cloneRecord(record *domain.MedicalRecord) *domain.MedicalRecord {
	copied := *record
	copied.Medications = make([]domain.MedicationLine, len(record.Medications))
	copy(copied.Medications, record.Medications)
	return &copied
}
