package out

import (
	"context"

	"github.com/google/uuid"
	"github.com/suchimauz/clinic-workflow-engine/internal/core/domain"
)

// Каталог стоимостей осмотра, только чтение
type FeeCatalogPort interface {
	ListActiveExaminationFees(ctx context.Context) ([]domain.ExaminationFee, error)
	GetExaminationFees(ctx context.Context, feeIDs []uuid.UUID) (map[uuid.UUID]*domain.ExaminationFee, error)
}
