package clinicapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	nurl "net/url"
	"time"

	"github.com/google/uuid"
	"github.com/suchimauz/clinic-workflow-engine/internal/config"
	"github.com/suchimauz/clinic-workflow-engine/internal/core/domain"
	"github.com/suchimauz/clinic-workflow-engine/internal/core/ports/out"
)

var _ out.AppointmentStorePort = (*ClinicAPIAdapter)(nil)

// Адаптер к REST-бэкенду клиники: он является источником истины, все
// транзакционные гарантии (CAS по статусу, атомарное списание) на его стороне
type ClinicAPIAdapter struct {
	client   *http.Client
	baseURL  string
	username string
	password string
	logger   out.LoggerPort
}

func NewClinicAPIAdapter(cfg *config.Config, logger out.LoggerPort) *ClinicAPIAdapter {
	return &ClinicAPIAdapter{
		client:   &http.Client{Timeout: 10 * time.Second},
		baseURL:  cfg.ClinicAPI.URL,
		username: cfg.ClinicAPI.Username,
		password: cfg.ClinicAPI.Password,
		logger:   logger,
	}
}

// Тело ответа бэкенда при конфликте или отказе операции
type apiError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Current   string `json:"current,omitempty"`
	Medicine  *struct {
		ID        uuid.UUID `json:"id"`
		Display   string    `json:"display"`
		Requested int       `json:"requested"`
		Available int       `json:"available"`
	} `json:"medicine,omitempty"`
}

func (a *ClinicAPIAdapter) do(ctx context.Context, method, path string, query nurl.Values, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if query != nil {
		req.URL.RawQuery = query.Encode()
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.SetBasicAuth(a.username, a.password)

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return a.decodeError(resp)
	}

	if result == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(result)
}

// Перевод ответов бэкенда в доменную таксономию ошибок
func (a *ClinicAPIAdapter) decodeError(resp *http.Response) error {
	if resp.StatusCode == http.StatusNotFound {
		return domain.ErrNotFound
	}

	var body apiError
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	switch body.Code {
	case "invalid_transition":
		return fmt.Errorf("%s: %w", body.Message, domain.ErrInvalidTransition)
	case "precondition_failed":
		return fmt.Errorf("%s: %w", body.Message, domain.ErrPreconditionFailed)
	case "already_dispensed":
		return fmt.Errorf("%s: %w", body.Message, domain.ErrAlreadyDispensed)
	case "insufficient_stock":
		if body.Medicine != nil {
			return &domain.InsufficientStockError{
				Medicine:  domain.Reference{ID: body.Medicine.ID, Display: body.Medicine.Display},
				Requested: body.Medicine.Requested,
				Available: body.Medicine.Available,
			}
		}
		return fmt.Errorf("%s: %w", body.Message, domain.ErrInsufficientStock)
	case "unauthorized":
		return fmt.Errorf("%s: %w", body.Message, domain.ErrUnauthorized)
	}

	return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
}

// AppointmentStorePort

func (a *ClinicAPIAdapter) GetAppointment(ctx context.Context, appointmentID uuid.UUID) (*domain.Appointment, error) {
	var appointment domain.Appointment
	if err := a.do(ctx, http.MethodGet, fmt.Sprintf("/Appointment/%s", appointmentID), nil, nil, &appointment); err != nil {
		return nil, err
	}
	return &appointment, nil
}

func (a *ClinicAPIAdapter) ListAppointmentsByDate(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]domain.Appointment, error) {
	a.logger.Debug("clinicapi.appointments.fetch", out.LogFields{
		"doctorId": doctorID,
		"day":      day.Format("2006-01-02"),
	})

	query := nurl.Values{}
	query.Add("date", day.Format("2006-01-02"))
	if doctorID != uuid.Nil {
		query.Add("doctor", doctorID.String())
	}

	var appointments []domain.Appointment
	if err := a.do(ctx, http.MethodGet, "/Appointment", query, nil, &appointments); err != nil {
		a.logger.Error("clinicapi.appointments.fetch_failed", out.LogFields{
			"error": err.Error(),
		})
		return nil, err
	}

	return appointments, nil
}

func (a *ClinicAPIAdapter) ListAppointmentsByPeriod(ctx context.Context, startDate, endDate time.Time) ([]domain.Appointment, error) {
	query := nurl.Values{}
	query.Add("start", startDate.Format(time.RFC3339))
	query.Add("end", endDate.Format(time.RFC3339))

	var appointments []domain.Appointment
	if err := a.do(ctx, http.MethodGet, "/Appointment", query, nil, &appointments); err != nil {
		a.logger.Error("clinicapi.appointments.fetch_failed", out.LogFields{
			"error": err.Error(),
		})
		return nil, err
	}

	return appointments, nil
}

type transitionRequest struct {
	ExpectedStatus domain.AppointmentStatus `json:"expectedStatus"`
	Status         domain.AppointmentStatus `json:"status"`
	ExaminationFee *uuid.UUID               `json:"examinationFeeId,omitempty"`
	Notes          string                   `json:"notes,omitempty"`
	Pharmacist     *domain.Reference        `json:"pharmacist,omitempty"`
	CheckedAt      *time.Time               `json:"checkedAt,omitempty"`
}

func (a *ClinicAPIAdapter) CompareAndSwapStatus(ctx context.Context, appointmentID uuid.UUID,
	expected, next domain.AppointmentStatus, update out.AppointmentUpdate) (*domain.Appointment, error) {
	a.logger.Debug("clinicapi.appointment.transition", out.LogFields{
		"appointmentId": appointmentID,
		"expected":      expected,
		"next":          next,
	})

	body := transitionRequest{
		ExpectedStatus: expected,
		Status:         next,
		ExaminationFee: update.ExaminationFeeID,
		Notes:          update.AppendNotes,
		Pharmacist:     update.Pharmacist,
		CheckedAt:      update.CheckedAt,
	}

	var appointment domain.Appointment
	err := a.do(ctx, http.MethodPost, fmt.Sprintf("/Appointment/%s/$transition", appointmentID), nil, body, &appointment)
	if err != nil {
		a.logger.Warn("clinicapi.appointment.transition_failed", out.LogFields{
			"appointmentId": appointmentID,
			"error":         err.Error(),
		})
		return nil, err
	}

	return &appointment, nil
}
