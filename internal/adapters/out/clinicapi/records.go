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

var _ out.RecordStorePort = (*ClinicAPIAdapter)(nil)

func (a *ClinicAPIAdapter) CreateMedicalRecord(ctx context.Context, record domain.MedicalRecord) (*domain.MedicalRecord, error) {
	var created domain.MedicalRecord
	err := a.do(ctx, http.MethodPost, "/MedicalRecord", nil, record, &created)
	if err != nil {
		a.logger.Warn("clinicapi.record.create_failed", out.LogFields{
			"appointmentId": record.AppointmentID,
			"error":         err.Error(),
		})
		return nil, err
	}
	return &created, nil
}

func (a *ClinicAPIAdapter) GetMedicalRecord(ctx context.Context, recordID uuid.UUID) (*domain.MedicalRecord, error) {
	var record domain.MedicalRecord
	if err := a.do(ctx, http.MethodGet, fmt.Sprintf("/MedicalRecord/%s", recordID), nil, nil, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (a *ClinicAPIAdapter) GetMedicalRecordByAppointment(ctx context.Context, appointmentID uuid.UUID) (*domain.MedicalRecord, error) {
	query := nurl.Values{}
	query.Add("appointment", appointmentID.String())

	var records []domain.MedicalRecord
	if err := a.do(ctx, http.MethodGet, "/MedicalRecord", query, nil, &records); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, domain.ErrNotFound
	}
	return &records[0], nil
}

func (a *ClinicAPIAdapter) GetMedicalRecordsByAppointments(ctx context.Context, appointmentIDs []uuid.UUID) (map[uuid.UUID]*domain.MedicalRecord, error) {
	result := make(map[uuid.UUID]*domain.MedicalRecord, len(appointmentIDs))
	if len(appointmentIDs) == 0 {
		return result, nil
	}

	ids := make([]string, 0, len(appointmentIDs))
	for _, id := range appointmentIDs {
		ids = append(ids, id.String())
	}

	query := nurl.Values{}
	query.Add("appointment", strings.Join(ids, ","))

	var records []domain.MedicalRecord
	if err := a.do(ctx, http.MethodGet, "/MedicalRecord", query, nil, &records); err != nil {
		a.logger.Error("clinicapi.records.fetch_failed", out.LogFields{
			"count": len(appointmentIDs),
			"error": err.Error(),
		})
		return nil, err
	}

	for i := range records {
		record := records[i]
		result[record.AppointmentID] = &record
	}
	return result, nil
}

type recordTransitionRequest struct {
	ExpectedStatus domain.RecordStatus `json:"expectedStatus"`
	Status         domain.RecordStatus `json:"status"`
}

func (a *ClinicAPIAdapter) CompareAndSwapRecordStatus(ctx context.Context, recordID uuid.UUID,
	expected, next domain.RecordStatus) (*domain.MedicalRecord, error) {
	body := recordTransitionRequest{
		ExpectedStatus: expected,
		Status:         next,
	}

	var record domain.MedicalRecord
	err := a.do(ctx, http.MethodPost, fmt.Sprintf("/MedicalRecord/%s/$transition", recordID), nil, body, &record)
	if err != nil {
		a.logger.Warn("clinicapi.record.transition_failed", out.LogFields{
			"recordId": recordID,
			"error":    err.Error(),
		})
		return nil, err
	}
	return &record, nil
}
