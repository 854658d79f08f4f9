package in

import (
	"context"

	"github.com/google/uuid"
	"github.com/suchimauz/clinic-workflow-engine/internal/core/domain"
)

type ClinicalFields struct {
	Diagnosis               string `json:"diagnosis" binding:"required"`
	Treatment               string `json:"treatment" binding:"required"`
	Symptoms                string `json:"symptoms"`
	FollowUpRecommendations string `json:"followUpRecommendations"`
	Notes                   string `json:"notes"`
}

type RecordUseCase interface {
	// Создание медкарты визита и завершение записи на прием одной логической
	// операцией. Если завершение упало после создания медкарты, возвращает
	// созданную медкарту вместе с *domain.CompletionPendingError.
	CreateRecord(ctx context.Context, actor domain.Actor, appointmentID uuid.UUID,
		fields ClinicalFields, lines []domain.MedicationLine) (*domain.MedicalRecord, error)

	// Выдача по медкарте: списание остатков строго один раз
	Dispense(ctx context.Context, actor domain.Actor, recordID uuid.UUID) (*domain.MedicalRecord, error)
}
