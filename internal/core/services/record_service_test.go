package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suchimauz/clinic-workflow-engine/internal/adapters/out/memstore"
	"github.com/suchimauz/clinic-workflow-engine/internal/core/domain"
	"github.com/suchimauz/clinic-workflow-engine/internal/core/json_types"
	"github.com/suchimauz/clinic-workflow-engine/internal/core/ports/in"
	"github.com/suchimauz/clinic-workflow-engine/internal/core/ports/out"
)

var _ out.AppointmentStorePort = (*mockAppointmentStore)(nil)

// Мок с функциями-полями для инъекции отказов хранилища
type mockAppointmentStore struct {
	GetAppointmentFn       func(ctx context.Context, appointmentID uuid.UUID) (*domain.Appointment, error)
	CompareAndSwapStatusFn func(ctx context.Context, appointmentID uuid.UUID,
		expected, next domain.AppointmentStatus, update out.AppointmentUpdate) (*domain.Appointment, error)
}

func (m *mockAppointmentStore) GetAppointment(ctx context.Context, appointmentID uuid.UUID) (*domain.Appointment, error) {
	return m.GetAppointmentFn(ctx, appointmentID)
}

func (m *mockAppointmentStore) ListAppointmentsByDate(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]domain.Appointment, error) {
	return nil, nil
}

func (m *mockAppointmentStore) ListAppointmentsByPeriod(ctx context.Context, startDate, endDate time.Time) ([]domain.Appointment, error) {
	return nil, nil
}

func (m *mockAppointmentStore) CompareAndSwapStatus(ctx context.Context, appointmentID uuid.UUID,
	expected, next domain.AppointmentStatus, update out.AppointmentUpdate) (*domain.Appointment, error) {
	return m.CompareAndSwapStatusFn(ctx, appointmentID, expected, next, update)
}

func newRecordService(store *memstore.MemStore) *RecordService {
	svc := NewRecordService(store, store, store, nil, newTestConfig(), nopLogger{})
	svc.now = func() time.Time { return testNow }
	return svc
}

func pharmacistActor() domain.Actor {
	return domain.Actor{ID: uuid.New(), Name: "pharmacy", Role: domain.RolePharmacist}
}

func seedMedicine(store *memstore.MemStore, name string, price int64, stock int) domain.Medicine {
	medicine := domain.Medicine{
		ID:            uuid.New(),
		DrugName:      name,
		Unit:          "tablet",
		Price:         price,
		StockQuantity: stock,
		ExpiryDate:    json_types.Date{Date: testNow.AddDate(1, 0, 0)},
		Active:        true,
	}
	store.PutMedicine(medicine)
	return medicine
}

func line(medicineID uuid.UUID, quantity int) domain.MedicationLine {
	return domain.MedicationLine{
		Medicine:  domain.Reference{ID: medicineID},
		Quantity:  quantity,
		Dosage:    "500mg",
		Frequency: "2x/day",
		Duration:  "5 days",
	}
}

func clinicalFields() in.ClinicalFields {
	return in.ClinicalFields{
		Diagnosis: "ОРВИ",
		Treatment: "постельный режим",
	}
}

func TestCreateRecordCompletesAppointment(t *testing.T) {
	store := memstore.NewMemStore(nopLogger{})
	svc := newRecordService(store)

	appointment := seedAppointment(store, uuid.New(), testNow, domain.AppointmentStatusChecked)
	medicine := seedMedicine(store, "Paracetamol", 10000, 50)

	record, err := svc.CreateRecord(context.Background(), doctorActor(), appointment.ID,
		clinicalFields(), []domain.MedicationLine{line(medicine.ID, 2)})
	require.NoError(t, err)

	assert.Equal(t, domain.RecordStatusPrescribed, record.Status)
	require.Len(t, record.Medications, 1)
	assert.Equal(t, "Paracetamol", record.Medications[0].Medicine.Display)

	completed, err := store.GetAppointment(context.Background(), appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AppointmentStatusCompleted, completed.Status)
}

func TestCreateRecordDropsBadLines(t *testing.T) {
	store := memstore.NewMemStore(nopLogger{})
	svc := newRecordService(store)

	appointment := seedAppointment(store, uuid.New(), testNow, domain.AppointmentStatusChecked)

	good := seedMedicine(store, "Amoxicillin", 20000, 30)
	short := seedMedicine(store, "Ibuprofen", 5000, 1)
	expired := seedMedicine(store, "Aspirin", 3000, 100)
	expired.ExpiryDate = json_types.Date{Date: testNow.AddDate(0, -1, 0)}
	store.PutMedicine(expired)
	inactive := seedMedicine(store, "Analgin", 2000, 100)
	inactive.Active = false
	store.PutMedicine(inactive)

	malformed := line(good.ID, 2)
	malformed.Dosage = ""

	lines := []domain.MedicationLine{
		line(good.ID, 2),
		line(short.ID, 5),       // остатка не хватает
		line(expired.ID, 1),     // просрочен
		line(inactive.ID, 1),    // неактивен
		line(uuid.New(), 1),     // не существует
		malformed,               // не заполнена дозировка
	}

	record, err := svc.CreateRecord(context.Background(), doctorActor(), appointment.ID, clinicalFields(), lines)
	require.NoError(t, err)

	require.Len(t, record.Medications, 1)
	assert.Equal(t, good.ID, record.Medications[0].Medicine.ID)

	// Назначение не списывает остатки, списание происходит при выдаче
	stored, err := store.GetMedicines(context.Background(), []uuid.UUID{good.ID})
	require.NoError(t, err)
	assert.Equal(t, 30, stored[good.ID].StockQuantity)
}

func TestCreateRecordRequiresCheckedStatus(t *testing.T) {
	store := memstore.NewMemStore(nopLogger{})
	svc := newRecordService(store)

	booked := seedAppointment(store, uuid.New(), testNow, domain.AppointmentStatusBooked)

	_, err := svc.CreateRecord(context.Background(), doctorActor(), booked.ID, clinicalFields(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	var transitionErr *domain.TransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, domain.AppointmentStatusBooked, transitionErr.Current)
}

func TestCreateRecordRequiresDoctor(t *testing.T) {
	store := memstore.NewMemStore(nopLogger{})
	svc := newRecordService(store)

	appointment := seedAppointment(store, uuid.New(), testNow, domain.AppointmentStatusChecked)

	_, err := svc.CreateRecord(context.Background(), staffActor(), appointment.ID, clinicalFields(), nil)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestCreateRecordOnePerAppointment(t *testing.T) {
	store := memstore.NewMemStore(nopLogger{})
	svc := newRecordService(store)

	appointment := seedAppointment(store, uuid.New(), testNow, domain.AppointmentStatusChecked)

	_, err := svc.CreateRecord(context.Background(), doctorActor(), appointment.ID, clinicalFields(), nil)
	require.NoError(t, err)

	// Запись уже completed, вторая медкарта не проходит по статусу
	_, err = svc.CreateRecord(context.Background(), doctorActor(), appointment.ID, clinicalFields(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestCreateRecordSurfacesPendingCompletion(t *testing.T) {
	store := memstore.NewMemStore(nopLogger{})
	appointmentID := uuid.New()

	// Хранилище отдает checked запись, но завершение падает по конфликту
	appointments := &mockAppointmentStore{
		GetAppointmentFn: func(ctx context.Context, id uuid.UUID) (*domain.Appointment, error) {
			return &domain.Appointment{
				ID:     appointmentID,
				Time:   json_types.DateTime{Date: testNow},
				Status: domain.AppointmentStatusChecked,
			}, nil
		},
		CompareAndSwapStatusFn: func(ctx context.Context, id uuid.UUID,
			expected, next domain.AppointmentStatus, update out.AppointmentUpdate) (*domain.Appointment, error) {
			return nil, &domain.TransitionError{
				AppointmentID: id,
				From:          expected,
				To:            next,
				Current:       domain.AppointmentStatusCancelled,
			}
		},
	}

	svc := NewRecordService(appointments, store, store, nil, newTestConfig(), nopLogger{})
	svc.now = func() time.Time { return testNow }

	record, err := svc.CreateRecord(context.Background(), doctorActor(), appointmentID, clinicalFields(), nil)

	var pending *domain.CompletionPendingError
	require.ErrorAs(t, err, &pending)
	require.NotNil(t, record)
	assert.Equal(t, record.ID, pending.RecordID)
	assert.Equal(t, appointmentID, pending.AppointmentID)

	// Медкарта при этом создана и доступна
	stored, err := store.GetMedicalRecord(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RecordStatusPrescribed, stored.Status)
}

func seedDispensableRecord(t *testing.T, store *memstore.MemStore, lines []domain.MedicationLine) (domain.Appointment, *domain.MedicalRecord) {
	t.Helper()

	appointment := seedAppointment(store, uuid.New(), testNow, domain.AppointmentStatusCompleted)
	record, err := store.CreateMedicalRecord(context.Background(), domain.MedicalRecord{
		AppointmentID: appointment.ID,
		Diagnosis:     "ОРВИ",
		Treatment:     "покой",
		Medications:   lines,
		Status:        domain.RecordStatusPrescribed,
	})
	require.NoError(t, err)
	return appointment, record
}

func TestDispenseDecrementsStockOnce(t *testing.T) {
	store := memstore.NewMemStore(nopLogger{})
	svc := newRecordService(store)

	first := seedMedicine(store, "Paracetamol", 10000, 50)
	second := seedMedicine(store, "Amoxicillin", 20000, 20)
	appointment, record := seedDispensableRecord(t, store, []domain.MedicationLine{
		line(first.ID, 2),
		line(second.ID, 3),
	})

	pharmacist := pharmacistActor()
	dispensed, err := svc.Dispense(context.Background(), pharmacist, record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RecordStatusDispensed, dispensed.Status)

	medicines, err := store.GetMedicines(context.Background(), []uuid.UUID{first.ID, second.ID})
	require.NoError(t, err)
	assert.Equal(t, 48, medicines[first.ID].StockQuantity)
	assert.Equal(t, 17, medicines[second.ID].StockQuantity)

	// Фармацевт привязан к визиту
	updated, err := store.GetAppointment(context.Background(), appointment.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.Pharmacist)
	assert.Equal(t, pharmacist.ID, updated.Pharmacist.ID)

	// Повторная выдача не проходит и остатки не трогает
	_, err = svc.Dispense(context.Background(), pharmacist, record.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyDispensed)

	medicines, err = store.GetMedicines(context.Background(), []uuid.UUID{first.ID, second.ID})
	require.NoError(t, err)
	assert.Equal(t, 48, medicines[first.ID].StockQuantity)
	assert.Equal(t, 17, medicines[second.ID].StockQuantity)
}

func TestDispenseOnCheckedAppointmentKeepsPharmacist(t *testing.T) {
	store := memstore.NewMemStore(nopLogger{})
	svc := newRecordService(store)

	// Медкарта создана, но завершение записи на прием не прошло: визит
	// остался в checked, выдача при этом возможна
	appointment := seedAppointment(store, uuid.New(), testNow, domain.AppointmentStatusChecked)
	medicine := seedMedicine(store, "Paracetamol", 10000, 50)
	record, err := store.CreateMedicalRecord(context.Background(), domain.MedicalRecord{
		AppointmentID: appointment.ID,
		Diagnosis:     "ОРВИ",
		Treatment:     "покой",
		Medications:   []domain.MedicationLine{line(medicine.ID, 2)},
		Status:        domain.RecordStatusPrescribed,
	})
	require.NoError(t, err)

	pharmacist := pharmacistActor()
	_, err = svc.Dispense(context.Background(), pharmacist, record.ID)
	require.NoError(t, err)

	// Фармацевт привязан, статус записи выдачей не меняется
	checked, err := store.GetAppointment(context.Background(), appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AppointmentStatusChecked, checked.Status)
	require.NotNil(t, checked.Pharmacist)
	assert.Equal(t, pharmacist.ID, checked.Pharmacist.ID)

	// Повторное завершение привязку не теряет
	appointments := newAppointmentService(store, newTestConfig())
	completed, err := appointments.Complete(context.Background(), doctorActor(), appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AppointmentStatusCompleted, completed.Status)
	require.NotNil(t, completed.Pharmacist)
	assert.Equal(t, pharmacist.ID, completed.Pharmacist.ID)
}

func TestDispenseInsufficientStockRollsBack(t *testing.T) {
	store := memstore.NewMemStore(nopLogger{})
	svc := newRecordService(store)

	plenty := seedMedicine(store, "Paracetamol", 10000, 50)
	scarce := seedMedicine(store, "Amoxicillin", 20000, 1)

	// Остаток упал между назначением и выдачей
	_, record := seedDispensableRecord(t, store, []domain.MedicationLine{
		line(plenty.ID, 2),
		line(scarce.ID, 5),
	})

	_, err := svc.Dispense(context.Background(), pharmacistActor(), record.ID)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	var stockErr *domain.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, scarce.ID, stockErr.Medicine.ID)
	assert.Equal(t, 5, stockErr.Requested)
	assert.Equal(t, 1, stockErr.Available)

	// Списание атомарно: первая строка тоже не тронута
	medicines, err := store.GetMedicines(context.Background(), []uuid.UUID{plenty.ID, scarce.ID})
	require.NoError(t, err)
	assert.Equal(t, 50, medicines[plenty.ID].StockQuantity)
	assert.Equal(t, 1, medicines[scarce.ID].StockQuantity)

	// Медкарта вернулась в prescribed, выдачу можно повторить после пополнения
	stored, err := store.GetMedicalRecord(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RecordStatusPrescribed, stored.Status)

	_, err = store.AdjustStock(context.Background(), staffActor(), scarce.ID, 10, "restock")
	require.NoError(t, err)

	_, err = svc.Dispense(context.Background(), pharmacistActor(), record.ID)
	assert.NoError(t, err)
}

func TestDispenseConcurrentSingleWinner(t *testing.T) {
	store := memstore.NewMemStore(nopLogger{})
	svc := newRecordService(store)

	medicine := seedMedicine(store, "Paracetamol", 10000, 100)
	_, record := seedDispensableRecord(t, store, []domain.MedicationLine{line(medicine.ID, 2)})

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Dispense(context.Background(), pharmacistActor(), record.ID)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, domain.ErrAlreadyDispensed))
	}
	assert.Equal(t, 1, succeeded)

	medicines, err := store.GetMedicines(context.Background(), []uuid.UUID{medicine.ID})
	require.NoError(t, err)
	assert.Equal(t, 98, medicines[medicine.ID].StockQuantity)
}

func TestDispenseRequiresRole(t *testing.T) {
	store := memstore.NewMemStore(nopLogger{})
	svc := newRecordService(store)

	_, err := svc.Dispense(context.Background(), doctorActor(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}
