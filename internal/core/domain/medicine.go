package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/suchimauz/clinic-workflow-engine/internal/core/json_types"
)

type Medicine struct {
	ID            uuid.UUID       `json:"id"`
	DrugName      string          `json:"drugName"`
	Unit          string          `json:"unit"`
	Price         int64           `json:"price"`
	StockQuantity int             `json:"stockQuantity"`
	ExpiryDate    json_types.Date `json:"expiryDate"`
	Active        bool            `json:"isActive"`
}

func (m *Medicine) Expired(now time.Time) bool {
	return !m.ExpiryDate.Date.IsZero() && m.ExpiryDate.Date.Before(now)
}

// Препарат можно назначить: активен, не просрочен, остатка хватает
func (m *Medicine) Dispensable(now time.Time, quantity int) bool {
	return m.Active && !m.Expired(now) && quantity > 0 && m.StockQuantity >= quantity
}
