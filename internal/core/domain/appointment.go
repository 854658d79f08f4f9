package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/suchimauz/clinic-workflow-engine/internal/core/json_types"
)

type AppointmentStatus string

const (
	AppointmentStatusBooked    AppointmentStatus = "booked"
	AppointmentStatusChecked   AppointmentStatus = "checked"
	AppointmentStatusCompleted AppointmentStatus = "completed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
)

// Терминальные статусы, из них переходов нет
func (s AppointmentStatus) IsTerminal() bool {
	return s == AppointmentStatusCompleted || s == AppointmentStatusCancelled
}

// Класс записи для отображения в очереди врача
// "late" - не хранимый статус, он всегда вычисляется от текущего времени
type QueueClass string

const (
	QueueClassChecked   QueueClass = "checked"
	QueueClassLate      QueueClass = "late"
	QueueClassBooked    QueueClass = "booked"
	QueueClassCompleted QueueClass = "completed"
)

// Приоритет сортировки очереди: checked(1) < late(2) < booked(3) < completed(4)
func (c QueueClass) Priority() int {
	switch c {
	case QueueClassChecked:
		return 1
	case QueueClassLate:
		return 2
	case QueueClassBooked:
		return 3
	case QueueClassCompleted:
		return 4
	}
	return 5
}

type Appointment struct {
	ID              uuid.UUID           `json:"id"`
	Patient         Reference           `json:"patient"`
	Doctor          Reference           `json:"doctor"`
	DoctorSpecialty string              `json:"doctorSpecialty,omitempty"`
	Time            json_types.DateTime `json:"time"`
	Status          AppointmentStatus   `json:"status"`
	ExaminationFeeID *uuid.UUID         `json:"examinationFeeId,omitempty"`
	// Встроенная сумма осмотра у старых записей, у которых нет ссылки на каталог
	LegacyExaminationFee int64                      `json:"examinationFee,omitempty"`
	Symptoms             string                     `json:"symptoms,omitempty"`
	Notes                string                     `json:"notes,omitempty"`
	Pharmacist           *Reference                 `json:"pharmacist,omitempty"`
	CheckedAt            json_types.DateTimeOrEmpty `json:"checkedAt,omitempty"`
}

// Запись опоздавшая: время приема прошло, а статус так и остался booked
func (a *Appointment) IsLate(now time.Time) bool {
	return a.Status == AppointmentStatusBooked && a.Time.Date.Before(now)
}

func (a *Appointment) QueueClass(now time.Time) QueueClass {
	switch a.Status {
	case AppointmentStatusChecked:
		return QueueClassChecked
	case AppointmentStatusCompleted:
		return QueueClassCompleted
	default:
		if a.IsLate(now) {
			return QueueClassLate
		}
		return QueueClassBooked
	}
}
