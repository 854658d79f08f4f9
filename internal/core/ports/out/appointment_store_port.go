package out

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/suchimauz/clinic-workflow-engine/internal/core/domain"
)

// Частичное обновление, применяется вместе со сменой статуса
type AppointmentUpdate struct {
	ExaminationFeeID *uuid.UUID
	// Дописывается в конец notes (причина отмены и т.п.)
	AppendNotes string
	Pharmacist  *domain.Reference
	CheckedAt   *time.Time
}

type AppointmentStorePort interface {
	GetAppointment(ctx context.Context, appointmentID uuid.UUID) (*domain.Appointment, error)

	// Записи за календарный день; doctorID == uuid.Nil - по всем врачам
	ListAppointmentsByDate(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]domain.Appointment, error)

	// Полуинтервал [startDate, endDate): конец не включается, границы
	// календарных дней нормализует вызывающий
	ListAppointmentsByPeriod(ctx context.Context, startDate, endDate time.Time) ([]domain.Appointment, error)

	// Единственная точка смены статуса: атомарный compare-and-set по ожидаемому
	// текущему статусу. При несовпадении возвращает *domain.TransitionError.
	CompareAndSwapStatus(ctx context.Context, appointmentID uuid.UUID,
		expected, next domain.AppointmentStatus, update AppointmentUpdate) (*domain.Appointment, error)
}
