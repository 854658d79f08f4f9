package domain

import "github.com/google/uuid"

// Запись каталога стоимостей осмотра, неизменяемая в рамках периода.
// Суммы всегда в минимальных единицах валюты.
type ExaminationFee struct {
	ID              uuid.UUID `json:"id"`
	ExaminationType string    `json:"examinationType"`
	Fee             int64     `json:"fee"`
	// nil - применима к любой специальности
	Specialty *string `json:"specialty,omitempty"`
	Active    bool    `json:"isActive"`
}

func (f *ExaminationFee) MatchesSpecialty(specialty string) bool {
	return f.Specialty != nil && *f.Specialty == specialty
}
