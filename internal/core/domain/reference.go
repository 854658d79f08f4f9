package domain

import "github.com/google/uuid"

// Нормализованная ссылка на сущность: id + опционально раскрытое имя.
// Раскрытие решается один раз на границе доступа к данным.
type Reference struct {
	ID      uuid.UUID `json:"id"`
	Display string    `json:"display,omitempty"`
}

func (r Reference) IsZero() bool {
	return r.ID == uuid.Nil
}
