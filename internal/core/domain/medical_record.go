package domain

import "github.com/google/uuid"

type RecordStatus string

const (
	RecordStatusPrescribed RecordStatus = "prescribed"
	RecordStatusDispensed  RecordStatus = "dispensed"
)

// Строка назначения, порядок строк сохраняется
type MedicationLine struct {
	Medicine     Reference `json:"medicine"`
	Quantity     int       `json:"quantity"`
	Dosage       string    `json:"dosage"`
	Frequency    string    `json:"frequency"`
	Duration     string    `json:"duration"`
	Instructions string    `json:"instructions,omitempty"`
}

// Строка корректно заполнена для сохранения
func (l *MedicationLine) WellFormed() bool {
	return !l.Medicine.IsZero() && l.Quantity > 0 && l.Dosage != "" && l.Frequency != "" && l.Duration != ""
}

// Медкарта визита, один-к-одному с завершенной записью на прием
type MedicalRecord struct {
	ID                      uuid.UUID        `json:"id"`
	AppointmentID           uuid.UUID        `json:"appointmentId"`
	Diagnosis               string           `json:"diagnosis"`
	Treatment               string           `json:"treatment"`
	Symptoms                string           `json:"symptoms,omitempty"`
	FollowUpRecommendations string           `json:"followUpRecommendations,omitempty"`
	Notes                   string           `json:"notes,omitempty"`
	Medications             []MedicationLine `json:"medicationsPrescribed"`
	Status                  RecordStatus     `json:"status"`
}
