package in

import (
	"context"
	"time"

	"github.com/suchimauz/clinic-workflow-engine/internal/core/domain"
)

type RevenueUseCase interface {
	// Сверка выручки за период, всегда пересчет от живого состояния
	ComputeRevenue(ctx context.Context, actor domain.Actor, startDate, endDate time.Time) (*domain.RevenueReport, []domain.DebugInfo, error)
}
