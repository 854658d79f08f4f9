package services

import (
	"github.com/suchimauz/clinic-workflow-engine/internal/core/domain"
	"github.com/suchimauz/clinic-workflow-engine/internal/core/ports/in"
)

type queueSlice []in.QueueEntry

// Ключ для разрешения ничьих внутри одного класса: для checked - время
// регистрации прихода (кто раньше пришел, тот раньше на прием), для остальных -
// плановое время записи
func queueTieKey(e in.QueueEntry) int64 {
	if e.Class == domain.QueueClassChecked && !e.Appointment.CheckedAt.Date.IsZero() {
		return e.Appointment.CheckedAt.Date.UnixNano()
	}
	return e.Appointment.Time.Date.UnixNano()
}

func queueLess(a, b in.QueueEntry) bool {
	pa, pb := a.Class.Priority(), b.Class.Priority()
	if pa != pb {
		return pa < pb
	}
	return queueTieKey(a) < queueTieKey(b)
}

// quickSort — функция для сортировки queueSlice
func (s queueSlice) quickSort() queueSlice {
	if len(s) < 2 {
		return s
	}

	// Выбираем опорный элемент
	pivot := s[len(s)/2]

	// Разделяем слайс на три части
	less := queueSlice{}
	equal := queueSlice{}
	greater := queueSlice{}

	for _, entry := range s {
		if queueLess(entry, pivot) {
			less = append(less, entry)
		} else if queueLess(pivot, entry) {
			greater = append(greater, entry)
		} else {
			equal = append(equal, entry)
		}
	}

	// Рекурсивно сортируем подмассивы и объединяем их
	return append(append(less.quickSort(), equal...), greater.quickSort()...)
}
