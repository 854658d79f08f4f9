package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suchimauz/clinic-workflow-engine/internal/adapters/out/memstore"
	"github.com/suchimauz/clinic-workflow-engine/internal/core/domain"
	"github.com/suchimauz/clinic-workflow-engine/internal/core/json_types"
	"github.com/suchimauz/clinic-workflow-engine/internal/utils"
)

func newRevenueService(store *memstore.MemStore) *RevenueService {
	return NewRevenueService(store, store, store, store, newTestConfig(), nopLogger{})
}

func seedQualifyingAppointment(store *memstore.MemStore, at time.Time, feeID *uuid.UUID, legacyFee int64) domain.Appointment {
	pharmacist := domain.Reference{ID: uuid.New(), Display: "pharmacy"}
	appointment := domain.Appointment{
		ID:                   uuid.New(),
		Patient:              domain.Reference{ID: uuid.New()},
		Doctor:               domain.Reference{ID: uuid.New()},
		Time:                 json_types.DateTime{Date: at},
		Status:               domain.AppointmentStatusCompleted,
		ExaminationFeeID:     feeID,
		LegacyExaminationFee: legacyFee,
		Pharmacist:           &pharmacist,
	}
	store.PutAppointment(appointment)
	return appointment
}

func TestComputeRevenueExaminationAndMedicines(t *testing.T) {
	store := memstore.NewMemStore(nopLogger{})
	svc := newRevenueService(store)

	fee := domain.ExaminationFee{ID: uuid.New(), ExaminationType: "General", Fee: 50000, Active: true}
	store.PutExaminationFee(fee)
	medicine := seedMedicine(store, "Paracetamol", 10000, 50)

	appointment := seedQualifyingAppointment(store, testNow, &fee.ID, 0)
	_, err := store.CreateMedicalRecord(context.Background(), domain.MedicalRecord{
		AppointmentID: appointment.ID,
		Diagnosis:     "ОРВИ",
		Treatment:     "покой",
		Medications:   []domain.MedicationLine{line(medicine.ID, 2)},
		Status:        domain.RecordStatusDispensed,
	})
	require.NoError(t, err)

	report, debug, err := svc.ComputeRevenue(context.Background(), staffActor(),
		testNow.AddDate(0, 0, -1), testNow.AddDate(0, 0, 1))
	require.NoError(t, err)

	assert.Equal(t, 1, report.TotalAppointments)
	assert.Equal(t, int64(50000), report.ExaminationRevenue)
	assert.Equal(t, int64(20000), report.MedicineRevenue)
	assert.Equal(t, int64(70000), report.TotalRevenue)
	assert.Equal(t, 2, report.TotalMedicinesSold)
	require.Len(t, debug, 3)
	assert.Equal(t, "1", debug[2].Options["qualifying"])
}

func TestComputeRevenueSkipsUndispensedMedicines(t *testing.T) {
	store := memstore.NewMemStore(nopLogger{})
	svc := newRevenueService(store)

	fee := domain.ExaminationFee{ID: uuid.New(), ExaminationType: "General", Fee: 50000, Active: true}
	store.PutExaminationFee(fee)
	medicine := seedMedicine(store, "Paracetamol", 10000, 50)

	appointment := seedQualifyingAppointment(store, testNow, &fee.ID, 0)
	_, err := store.CreateMedicalRecord(context.Background(), domain.MedicalRecord{
		AppointmentID: appointment.ID,
		Diagnosis:     "ОРВИ",
		Treatment:     "покой",
		Medications:   []domain.MedicationLine{line(medicine.ID, 2)},
		Status:        domain.RecordStatusPrescribed,
	})
	require.NoError(t, err)

	report, _, err := svc.ComputeRevenue(context.Background(), staffActor(),
		testNow.AddDate(0, 0, -1), testNow.AddDate(0, 0, 1))
	require.NoError(t, err)

	// Назначено, но не выдано: выручка по препаратам не реализована
	assert.Equal(t, int64(50000), report.ExaminationRevenue)
	assert.Equal(t, int64(0), report.MedicineRevenue)
	assert.Equal(t, 0, report.TotalMedicinesSold)
	assert.Equal(t, int64(50000), report.TotalRevenue)
}

func TestComputeRevenueExcludesWithoutPharmacist(t *testing.T) {
	store := memstore.NewMemStore(nopLogger{})
	svc := newRevenueService(store)

	fee := domain.ExaminationFee{ID: uuid.New(), ExaminationType: "General", Fee: 50000, Active: true}
	store.PutExaminationFee(fee)

	// Завершен, но фармацевт не привязан - в сверку не попадает
	appointment := domain.Appointment{
		ID:               uuid.New(),
		Time:             json_types.DateTime{Date: testNow},
		Status:           domain.AppointmentStatusCompleted,
		ExaminationFeeID: &fee.ID,
	}
	store.PutAppointment(appointment)

	// Checked тоже не попадает
	seedAppointment(store, uuid.New(), testNow, domain.AppointmentStatusChecked)

	report, _, err := svc.ComputeRevenue(context.Background(), staffActor(),
		testNow.AddDate(0, 0, -1), testNow.AddDate(0, 0, 1))
	require.NoError(t, err)

	assert.Equal(t, 0, report.TotalAppointments)
	assert.Equal(t, int64(0), report.TotalRevenue)
}

func TestComputeRevenueLegacyFee(t *testing.T) {
	store := memstore.NewMemStore(nopLogger{})
	svc := newRevenueService(store)

	seedQualifyingAppointment(store, testNow, nil, 30000)

	report, _, err := svc.ComputeRevenue(context.Background(), staffActor(),
		testNow.AddDate(0, 0, -1), testNow.AddDate(0, 0, 1))
	require.NoError(t, err)

	assert.Equal(t, int64(30000), report.ExaminationRevenue)
	assert.Equal(t, int64(30000), report.TotalRevenue)
}

func TestComputeRevenueMissingRecordIsZeroMedicines(t *testing.T) {
	store := memstore.NewMemStore(nopLogger{})
	svc := newRevenueService(store)

	fee := domain.ExaminationFee{ID: uuid.New(), ExaminationType: "General", Fee: 50000, Active: true}
	store.PutExaminationFee(fee)

	// Исторический визит без медкарты: осмотр в отчете, препараты - ноль
	seedQualifyingAppointment(store, testNow, &fee.ID, 0)

	report, _, err := svc.ComputeRevenue(context.Background(), staffActor(),
		testNow.AddDate(0, 0, -1), testNow.AddDate(0, 0, 1))
	require.NoError(t, err)

	assert.Equal(t, 1, report.TotalAppointments)
	assert.Equal(t, int64(50000), report.TotalRevenue)
}

func TestComputeRevenueMissingCatalogFee(t *testing.T) {
	store := memstore.NewMemStore(nopLogger{})
	svc := newRevenueService(store)

	// Ссылка на удаленную запись каталога: ноль по осмотру, не ошибка
	missingFeeID := uuid.New()
	seedQualifyingAppointment(store, testNow, &missingFeeID, 0)

	report, _, err := svc.ComputeRevenue(context.Background(), staffActor(),
		testNow.AddDate(0, 0, -1), testNow.AddDate(0, 0, 1))
	require.NoError(t, err)

	assert.Equal(t, 1, report.TotalAppointments)
	assert.Equal(t, int64(0), report.TotalRevenue)
}

func TestComputeRevenuePeriodBounds(t *testing.T) {
	store := memstore.NewMemStore(nopLogger{})
	svc := newRevenueService(store)

	seedQualifyingAppointment(store, testNow, nil, 10000)
	seedQualifyingAppointment(store, testNow.AddDate(0, 0, -10), nil, 99999)

	report, _, err := svc.ComputeRevenue(context.Background(), staffActor(),
		testNow.AddDate(0, 0, -1), testNow.AddDate(0, 0, 1))
	require.NoError(t, err)

	assert.Equal(t, 1, report.TotalAppointments)
	assert.Equal(t, int64(10000), report.TotalRevenue)
}

func TestComputeRevenueIncludesEndDayFully(t *testing.T) {
	store := memstore.NewMemStore(nopLogger{})
	svc := newRevenueService(store)

	// Границы периода приходят полуночами календарных дней, визит в середине
	// конечного дня входит в отчет целиком
	seedQualifyingAppointment(store, testNow, nil, 30000)
	seedQualifyingAppointment(store, utils.StartNextDay(testNow).Add(time.Hour), nil, 99999)

	report, _, err := svc.ComputeRevenue(context.Background(), staffActor(),
		utils.StartCurrentDay(testNow.AddDate(0, 0, -1)), utils.StartCurrentDay(testNow))
	require.NoError(t, err)

	assert.Equal(t, 1, report.TotalAppointments)
	assert.Equal(t, int64(30000), report.TotalRevenue)
}

func TestComputeRevenueRequiresStaff(t *testing.T) {
	store := memstore.NewMemStore(nopLogger{})
	svc := newRevenueService(store)

	_, _, err := svc.ComputeRevenue(context.Background(), doctorActor(), testNow, testNow)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}
