package utils

import (
	"fmt"
	"time"
)

// StartCurrentDay возвращает начало календарного дня в таймзоне переданной даты.
func StartCurrentDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// StartNextDay возвращает начало следующего календарного дня, таймзона остается прежней.
func StartNextDay(t time.Time) time.Time {
	newDate := t.AddDate(0, 0, 1)
	return time.Date(newDate.Year(), newDate.Month(), newDate.Day(), 0, 0, 0, 0, newDate.Location())
}

// SameDay сравнивает две даты по границам календарного дня.
func SameDay(a, b time.Time) bool {
	return StartCurrentDay(a).Equal(StartCurrentDay(b.In(a.Location())))
}

// ParseDate парсит дату из строки в формате RFC3339, если не удается, то пробует
// дату со временем без таймзоны, затем дату без времени. Таймзона для форматов
// без таймзоны передается вызывающим.
func ParseDate(str string, location *time.Location) (time.Time, error) {
	parsedDate, err := time.Parse(time.RFC3339, str)
	if err != nil {
		parsedDate, err = time.ParseInLocation("2006-01-02T15:04:05", str, location)
		if err != nil {
			parsedDate, err = time.ParseInLocation("2006-01-02", str, location)
			if err != nil {
				return time.Time{}, fmt.Errorf("failed to parse time: %v", err)
			}
		}
	}

	return parsedDate, nil
}
