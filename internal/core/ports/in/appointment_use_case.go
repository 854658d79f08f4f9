package in

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/suchimauz/clinic-workflow-engine/internal/core/domain"
)

// Элемент рабочей очереди врача: запись плюс вычисленный класс отображения
type QueueEntry struct {
	Appointment domain.Appointment `json:"appointment"`
	Class       domain.QueueClass  `json:"class"`
}

// Итог прохода авто-отмены
type SweepReport struct {
	Swept   int `json:"swept"`
	Skipped int `json:"skipped"`
}

type AppointmentUseCase interface {
	// Рабочая очередь врача за день, отсортированная по классу и времени.
	// Отмененные записи в очередь не попадают.
	DoctorQueue(ctx context.Context, actor domain.Actor, doctorID uuid.UUID, day time.Time) ([]QueueEntry, error)

	// Регистрация прихода пациента: подбор стоимости осмотра + booked -> checked
	CheckIn(ctx context.Context, actor domain.Actor, appointmentID uuid.UUID) (*domain.Appointment, error)

	// Отмена записи персоналом или пациентом (для пациента - правило 12 часов)
	Cancel(ctx context.Context, actor domain.Actor, appointmentID uuid.UUID, reason string) (*domain.Appointment, error)

	// Повторная попытка завершения checked -> completed, медкарта уже должна быть
	Complete(ctx context.Context, actor domain.Actor, appointmentID uuid.UUID) (*domain.Appointment, error)

	// Проход авто-отмены по опоздавшим записям, идемпотентный
	SweepLate(ctx context.Context, actor domain.Actor) (*SweepReport, error)
}
