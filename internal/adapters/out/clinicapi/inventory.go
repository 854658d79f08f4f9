package clinicapi

import (
	"context"
	"fmt"
	"net/http"
	nurl "net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/suchimauz/clinic-workflow-engine/internal/core/domain"
	"github.com/suchimauz/clinic-workflow-engine/internal/core/ports/out"
)

var _ out.InventoryPort = (*ClinicAPIAdapter)(nil)
var _ out.FeeCatalogPort = (*ClinicAPIAdapter)(nil)

func (a *ClinicAPIAdapter) ListMedicines(ctx context.Context, onlyActive bool) ([]domain.Medicine, error) {
	query := nurl.Values{}
	if onlyActive {
		query.Add("active", "true")
	}

	var medicines []domain.Medicine
	if err := a.do(ctx, http.MethodGet, "/Medicine", query, nil, &medicines); err != nil {
		a.logger.Error("clinicapi.medicines.fetch_failed", out.LogFields{
			"error": err.Error(),
		})
		return nil, err
	}
	return medicines, nil
}

func (a *ClinicAPIAdapter) GetMedicines(ctx context.Context, medicineIDs []uuid.UUID) (map[uuid.UUID]*domain.Medicine, error) {
	result := make(map[uuid.UUID]*domain.Medicine, len(medicineIDs))
	if len(medicineIDs) == 0 {
		return result, nil
	}

	ids := make([]string, 0, len(medicineIDs))
	for _, id := range medicineIDs {
		ids = append(ids, id.String())
	}

	query := nurl.Values{}
	query.Add("id", strings.Join(ids, ","))

	var medicines []domain.Medicine
	if err := a.do(ctx, http.MethodGet, "/Medicine", query, nil, &medicines); err != nil {
		a.logger.Error("clinicapi.medicines.fetch_failed", out.LogFields{
			"count": len(medicineIDs),
			"error": err.Error(),
		})
		return nil, err
	}

	for i := range medicines {
		medicine := medicines[i]
		result[medicine.ID] = &medicine
	}
	return result, nil
}

type decrementRequest struct {
	Decrements []decrementLine `json:"decrements"`
}

type decrementLine struct {
	MedicineID uuid.UUID `json:"medicineId"`
	Quantity   int       `json:"quantity"`
}

func (a *ClinicAPIAdapter) DecrementStock(ctx context.Context, decrements []out.StockDecrement) error {
	lines := make([]decrementLine, 0, len(decrements))
	for _, d := range decrements {
		lines = append(lines, decrementLine{MedicineID: d.MedicineID, Quantity: d.Quantity})
	}

	err := a.do(ctx, http.MethodPost, "/Medicine/$decrement", nil, decrementRequest{Decrements: lines}, nil)
	if err != nil {
		a.logger.Warn("clinicapi.stock.decrement_failed", out.LogFields{
			"count": len(decrements),
			"error": err.Error(),
		})
		return err
	}
	return nil
}

type adjustRequest struct {
	Delta  int              `json:"delta"`
	Reason string           `json:"reason"`
	Actor  domain.Reference `json:"actor"`
}

func (a *ClinicAPIAdapter) AdjustStock(ctx context.Context, actor domain.Actor, medicineID uuid.UUID, delta int, reason string) (*domain.Medicine, error) {
	body := adjustRequest{
		Delta:  delta,
		Reason: reason,
		Actor:  actor.Reference(),
	}

	var medicine domain.Medicine
	err := a.do(ctx, http.MethodPost, fmt.Sprintf("/Medicine/%s/$adjust", medicineID), nil, body, &medicine)
	if err != nil {
		a.logger.Warn("clinicapi.stock.adjust_failed", out.LogFields{
			"medicineId": medicineID,
			"delta":      delta,
			"error":      err.Error(),
		})
		return nil, err
	}
	return &medicine, nil
}

// FeeCatalogPort

func (a *ClinicAPIAdapter) ListActiveExaminationFees(ctx context.Context) ([]domain.ExaminationFee, error) {
	query := nurl.Values{}
	query.Add("active", "true")

	var fees []domain.ExaminationFee
	if err := a.do(ctx, http.MethodGet, "/ExaminationFee", query, nil, &fees); err != nil {
		a.logger.Error("clinicapi.fees.fetch_failed", out.LogFields{
			"error": err.Error(),
		})
		return nil, err
	}
	return fees, nil
}

func (a *ClinicAPIAdapter) GetExaminationFees(ctx context.Context, feeIDs []uuid.UUID) (map[uuid.UUID]*domain.ExaminationFee, error) {
	result := make(map[uuid.UUID]*domain.ExaminationFee, len(feeIDs))
	if len(feeIDs) == 0 {
		return result, nil
	}

	ids := make([]string, 0, len(feeIDs))
	for _, id := range feeIDs {
		ids = append(ids, id.String())
	}

	query := nurl.Values{}
	query.Add("id", strings.Join(ids, ","))

	var fees []domain.ExaminationFee
	if err := a.do(ctx, http.MethodGet, "/ExaminationFee", query, nil, &fees); err != nil {
		a.logger.Error("clinicapi.fees.fetch_failed", out.LogFields{
			"count": len(feeIDs),
			"error": err.Error(),
		})
		return nil, err
	}

	for i := range fees {
		fee := fees[i]
		result[fee.ID] = &fee
	}
	return result, nil
}
