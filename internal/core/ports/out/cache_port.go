package out

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/suchimauz/clinic-workflow-engine/internal/core/domain"
)

type CachePort interface {
	// Кэширование списков записей за день
	GetDayAppointments(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]domain.Appointment, bool)
	StoreDayAppointments(ctx context.Context, doctorID uuid.UUID, day time.Time, appointments []domain.Appointment)
	// Инвалидация всех врачей за день
	InvalidateDay(ctx context.Context, day time.Time)

	// Кэширование каталога стоимостей осмотра
	GetFeeCatalog(ctx context.Context) ([]domain.ExaminationFee, bool)
	StoreFeeCatalog(ctx context.Context, fees []domain.ExaminationFee)
	InvalidateFeeCatalog(ctx context.Context)
}
