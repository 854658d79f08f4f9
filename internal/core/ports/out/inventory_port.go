package out

import (
	"context"

	"github.com/google/uuid"
	"github.com/suchimauz/clinic-workflow-engine/internal/core/domain"
)

type StockDecrement struct {
	MedicineID uuid.UUID
	Quantity   int
}

type InventoryPort interface {
	ListMedicines(ctx context.Context, onlyActive bool) ([]domain.Medicine, error)
	GetMedicines(ctx context.Context, medicineIDs []uuid.UUID) (map[uuid.UUID]*domain.Medicine, error)

	// Списание остатков по всем строкам как одно целое: либо применяются все,
	// либо ни одно. При нехватке возвращает *domain.InsufficientStockError.
	DecrementStock(ctx context.Context, decrements []StockDecrement) error

	// Ручная корректировка остатка, отдельная аудируемая операция вне выдачи
	AdjustStock(ctx context.Context, actor domain.Actor, medicineID uuid.UUID, delta int, reason string) (*domain.Medicine, error)
}
