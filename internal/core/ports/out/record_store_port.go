package out

import (
	"context"

	"github.com/google/uuid"
	"github.com/suchimauz/clinic-workflow-engine/internal/core/domain"
)

type RecordStorePort interface {
	CreateMedicalRecord(ctx context.Context, record domain.MedicalRecord) (*domain.MedicalRecord, error)
	GetMedicalRecord(ctx context.Context, recordID uuid.UUID) (*domain.MedicalRecord, error)
	GetMedicalRecordByAppointment(ctx context.Context, appointmentID uuid.UUID) (*domain.MedicalRecord, error)

	// Пакетная выборка по набору записей на прием, ключ - id записи на прием.
	// Отсутствующие медкарты просто не попадают в результат.
	GetMedicalRecordsByAppointments(ctx context.Context, appointmentIDs []uuid.UUID) (map[uuid.UUID]*domain.MedicalRecord, error)

	// Атомарный compare-and-set статуса медкарты
	CompareAndSwapRecordStatus(ctx context.Context, recordID uuid.UUID,
		expected, next domain.RecordStatus) (*domain.MedicalRecord, error)
}
