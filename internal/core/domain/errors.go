package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// Переход запрещен из текущего статуса
	ErrInvalidTransition = errors.New("invalid transition")
	// Не хватает зависимости для перехода (нет активной стоимости, нет медкарты)
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrAlreadyDispensed   = errors.New("record already dispensed")
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInsufficientStock  = errors.New("insufficient stock")
)

// Конфликт compare-and-set по статусу записи на прием
type TransitionError struct {
	AppointmentID uuid.UUID
	From          AppointmentStatus
	To            AppointmentStatus
	Current       AppointmentStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("appointment %s: transition %s -> %s rejected, current status %s",
		e.AppointmentID, e.From, e.To, e.Current)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// Нехватка остатка конкретного препарата при выдаче
type InsufficientStockError struct {
	Medicine  Reference
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("medicine %s (%s): requested %d, available %d",
		e.Medicine.ID, e.Medicine.Display, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// Медкарта создана, но запись на прием не удалось перевести в completed.
// Состояние восстанавливается повторной попыткой завершения, не авто-ретраем.
type CompletionPendingError struct {
	AppointmentID uuid.UUID
	RecordID      uuid.UUID
	Cause         error
}

func (e *CompletionPendingError) Error() string {
	return fmt.Sprintf("medical record %s created but appointment %s completion failed: %v",
		e.RecordID, e.AppointmentID, e.Cause)
}

func (e *CompletionPendingError) Unwrap() error {
	return e.Cause
}
